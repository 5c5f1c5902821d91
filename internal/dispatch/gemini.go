package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"FirewallAlertPump/internal/models"
)

// Enricher заполняет Suggestion уведомления текстом рекомендации.
// Единственное поле, которое меняется после создания сообщения.
type Enricher interface {
	Suggest(ctx context.Context, m models.NotificationMessage) (string, error)
}

const (
	geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
	geminiTimeout  = 30 * time.Second
)

// GeminiEnricher запрашивает у LLM короткую рекомендацию по реагированию.
// Без API-ключа конструктор возвращает nil — шаг обогащения просто
// пропускается, это не ошибка.
type GeminiEnricher struct {
	apiKey string
	model  string
	client *http.Client
}

func NewGeminiEnricher(apiKey, model string) *GeminiEnricher {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiEnricher{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: geminiTimeout},
	}
}

func (g *GeminiEnricher) Suggest(ctx context.Context, m models.NotificationMessage) (string, error) {
	prompt := fmt.Sprintf(
		"防火牆偵測到高風險事件。嚴重度 %d，來源 %s，共 %d 筆。事件描述：%s。請以兩句話內給出具體的處置建議。",
		m.Severity, m.SourceIP, m.AggregatedCount, m.Description,
	)
	body, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf(geminiEndpoint, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: HTTP %d", resp.StatusCode)
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("gemini: parse: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: пустой ответ")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
