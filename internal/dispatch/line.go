package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	linePushURL  = "https://api.line.me/v2/bot/message/push"
	lineTimeout  = 15 * time.Second
	lineTextMax  = 5000
	lineRetryMax = 2
)

// LineChannel шлёт push-уведомления LINE всем зарегистрированным
// получателям. Список получателей — текстовый файл, по одному user id на
// строку; он перечитывается при каждой отправке, чтобы регистрация новых
// пользователей подхватывалась без перезапуска.
// Отдельный сбой получателя не прерывает рассылку остальным.
type LineChannel struct {
	token          string
	recipientsFile string
	endpoint       string
	client         *http.Client
	lg             *zap.Logger
}

func NewLineChannel(token, recipientsFile string, lg *zap.Logger) *LineChannel {
	return &LineChannel{
		token:          token,
		recipientsFile: recipientsFile,
		endpoint:       linePushURL,
		client:         &http.Client{Timeout: lineTimeout},
		lg:             lg,
	}
}

func (l *LineChannel) Name() string { return "line" }

// Send рассылает текст всем получателям. Канал считается успешным,
// если доставка удалась хотя бы одному.
func (l *LineChannel) Send(ctx context.Context, text string) error {
	recipients, err := l.loadRecipients()
	if err != nil {
		return fmt.Errorf("line: %w", err)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("line: список получателей пуст")
	}

	delivered := 0
	var lastErr error
	for _, to := range recipients {
		if err := l.pushOne(ctx, to, text); err != nil {
			l.lg.Warn("LINE push не доставлен", zap.String("to", to), zap.Error(err))
			lastErr = err
			continue
		}
		l.lg.Debug("LINE push доставлен", zap.String("to", to))
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("line: ни один из %d получателей не получил сообщение: %w", len(recipients), lastErr)
	}
	if lastErr != nil {
		l.lg.Warn("LINE: часть получателей не получила сообщение",
			zap.Int("delivered", delivered), zap.Int("total", len(recipients)))
	}
	return nil
}

func (l *LineChannel) loadRecipients() ([]string, error) {
	bs, err := os.ReadFile(l.recipientsFile)
	if err != nil {
		return nil, fmt.Errorf("read recipients: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(bs), "\n") {
		id := strings.TrimSpace(line)
		if id != "" && !strings.HasPrefix(id, "#") {
			out = append(out, id)
		}
	}
	return out, nil
}

func (l *LineChannel) pushOne(ctx context.Context, to, text string) error {
	body, err := json.Marshal(map[string]any{
		"to": to,
		"messages": []map[string]string{
			{"type": "text", "text": truncateRunes(text, lineTextMax)},
		},
	})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= lineRetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * time.Second):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+l.token)

		resp, err := l.client.Do(req)
		if err != nil {
			lastErr = err // сетевая ошибка, пробуем ещё
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		default:
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
	}
	return lastErr
}
