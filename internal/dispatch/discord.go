package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Лимит длины сообщения Discord в символах.
const discordContentLimit = 2000

const (
	discordTimeout    = 15 * time.Second
	discordMaxRetries = 3
)

// DiscordChannel отправляет текст в вебхук Discord:
// POST {"content": ...}, успех — HTTP 200/204.
// 429 ждёт Retry-After и повторяет, сетевые ошибки повторяются с бэкоффом,
// прочие 4xx — постоянные, без повторов.
type DiscordChannel struct {
	webhookURL string
	client     *http.Client
	lg         *zap.Logger
}

func NewDiscordChannel(webhookURL string, lg *zap.Logger) *DiscordChannel {
	return &DiscordChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: discordTimeout},
		lg:         lg,
	}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"content": truncateRunes(text, discordContentLimit),
	})
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= discordMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("discord: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			// Сетевая ошибка — транзиентная, пробуем ещё
			lastErr = fmt.Errorf("discord: %w", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp)
			d.lg.Warn("Discord отдал 429, ждём Retry-After", zap.Duration("wait", wait))
			lastErr = fmt.Errorf("discord: HTTP 429")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("discord: HTTP %d", resp.StatusCode)
		default:
			// Постоянная ошибка (битый URL, права) — повторять бессмысленно
			return fmt.Errorf("discord: HTTP %d", resp.StatusCode)
		}
	}
	return lastErr
}

// retryAfter вытаскивает паузу из заголовка Retry-After, по умолчанию 2s.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if sec, err := strconv.ParseFloat(v, 64); err == nil && sec > 0 {
			return time.Duration(sec * float64(time.Second))
		}
	}
	return 2 * time.Second
}
