package dispatch

import (
	"context"

	"go.uber.org/zap"

	"FirewallAlertPump/internal/models"
)

// Channel — одно направление доставки уведомления.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// ChannelStatus — итог доставки одного сообщения в один канал.
type ChannelStatus struct {
	Channel string
	OK      bool
	Detail  string
}

// Report — итог доставки одного сообщения по всем каналам.
// Delivered=true, если успешен хотя бы один канал.
type Report struct {
	Message   models.NotificationMessage
	Text      string
	Delivered bool
	Channels  []ChannelStatus
}

// Gate решает, отправлялись ли алерты файла раньше, и рассылает
// сошедшиеся сообщения по каналам.
type Gate struct {
	cache    *DedupCache
	channels []Channel
	enricher Enricher
	lg       *zap.Logger
}

func NewGate(cache *DedupCache, channels []Channel, enricher Enricher, lg *zap.Logger) *Gate {
	return &Gate{cache: cache, channels: channels, enricher: enricher, lg: lg}
}

// DispatchFile отправляет сообщения, сошедшиеся из файла результатов
// resultPath. Если файл уже отправлялся (по ключу дедупликации), вся
// пачка пропускается без какой-либо работы: skipped=true.
func (g *Gate) DispatchFile(ctx context.Context, resultPath string, msgs []models.NotificationMessage) (reports []Report, skipped bool, err error) {
	key, err := g.cache.Key(resultPath)
	if err != nil {
		return nil, false, err
	}
	if g.cache.Seen(key) {
		g.lg.Info("Файл уже отправлялся, пропускаем", zap.String("file", resultPath), zap.String("key", key))
		return nil, true, nil
	}

	anyDelivered := false
	for _, m := range msgs {
		reports = append(reports, g.dispatchOne(ctx, m))
		if reports[len(reports)-1].Delivered {
			anyDelivered = true
		}
	}

	// Ключ запоминается после первой успешной отправки; пустая пачка
	// тоже помечается, чтобы не гонять конвергенцию по тому же файлу
	if anyDelivered || len(msgs) == 0 {
		g.cache.Mark(key)
	}
	return reports, false, nil
}

func (g *Gate) dispatchOne(ctx context.Context, m models.NotificationMessage) Report {
	if g.enricher != nil {
		if suggestion, err := g.enricher.Suggest(ctx, m); err != nil {
			// Обогащение — необязательный шаг, без него сообщение всё равно уходит
			g.lg.Warn("LLM-обогащение не удалось", zap.Error(err))
		} else {
			m.Suggestion = suggestion
		}
	}

	text := RenderMessage(m)
	rep := Report{Message: m, Text: text}

	for _, ch := range g.channels {
		st := ChannelStatus{Channel: ch.Name()}
		if err := ch.Send(ctx, text); err != nil {
			st.Detail = err.Error()
			g.lg.Warn("Канал не доставил сообщение",
				zap.String("channel", ch.Name()), zap.Error(err))
		} else {
			st.OK = true
			st.Detail = "ok"
			rep.Delivered = true
		}
		rep.Channels = append(rep.Channels, st)
	}

	if len(g.channels) == 0 {
		g.lg.Debug("Каналы доставки не настроены, сообщение никуда не ушло")
	}
	return rep
}
