package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"FirewallAlertPump/internal/models"
)

// Sink — приёмник пачек классифицированных строк.
type Sink interface {
	InsertRows(ctx context.Context, rows []models.ClassifiedRow) error
}

// Batcher накапливает классифицированные строки и сбрасывает их в архив
// пачками: по достижении batchSize или по таймеру batchInterval.
type Batcher struct {
	batchSize     int
	batchInterval time.Duration
	logger        *zap.Logger
	sink          Sink
}

// NewBatcher создаёт batcher. batchInterval в секундах.
func NewBatcher(batchSize int, batchInterval int, logger *zap.Logger, sink Sink) *Batcher {
	return &Batcher{
		batchSize:     batchSize,
		batchInterval: time.Duration(batchInterval) * time.Second,
		logger:        logger,
		sink:          sink,
	}
}

// Run собирает строки из канала и отправляет их в архив.
// Завершается по отмене контекста, сбросив накопленный хвост.
func (b *Batcher) Run(ctx context.Context, in <-chan models.ClassifiedRow) {
	buf := make([]models.ClassifiedRow, 0, b.batchSize)
	timer := time.NewTimer(b.batchInterval)
	defer timer.Stop()

	flush := func(reason string) {
		if len(buf) == 0 {
			return
		}
		b.logger.Info("Отправляем batch в архив", zap.Int("count", len(buf)), zap.String("reason", reason))
		if err := b.sink.InsertRows(ctx, buf); err != nil {
			b.logger.Error("Ошибка при отправке batch в архив", zap.Error(err))
		} else {
			b.logger.Info("Batch успешно отправлен", zap.Int("count", len(buf)))
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush("graceful shutdown")
			return
		case row, ok := <-in:
			if !ok {
				flush("input closed")
				return
			}
			buf = append(buf, row)
			if len(buf) >= b.batchSize {
				flush("batch size reached")
				timer.Reset(b.batchInterval)
			}
		case <-timer.C:
			flush("interval")
			timer.Reset(b.batchInterval)
		}
	}
}
