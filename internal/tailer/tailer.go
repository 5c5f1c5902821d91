package tailer

import (
	"context"
	"strings"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"FirewallAlertPump/internal/features"
	"FirewallAlertPump/internal/mapper"
	"FirewallAlertPump/internal/models"
	"FirewallAlertPump/internal/parser"
)

// Tailer — живой режим приёма: следит за растущим файлом syslog и
// прогоняет строки через парсер и маппер на лету, минуя модели.
// IsAttack в этом режиме определяется только правилом серьёзности.
// Результат уходит в канал батчера и дальше в архив.
type Tailer struct {
	parser parser.Parser
	mapper *mapper.Mapper
	lg     *zap.Logger
}

func New(vendor string, lg *zap.Logger) (*Tailer, error) {
	p, err := parser.ForVendor(vendor)
	if err != nil {
		return nil, err
	}
	return &Tailer{parser: p, mapper: mapper.New(vendor), lg: lg}, nil
}

// Follow читает файл до конца и дальше ждёт дозаписи; при ротации
// файл переоткрывается. Завершается по отмене контекста.
func (t *Tailer) Follow(ctx context.Context, path string, out chan<- models.ClassifiedRow) error {
	tf, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		t.lg.Error("Ошибка открытия tail", zap.String("file", path), zap.Error(err))
		return err
	}
	defer tf.Stop()
	t.lg.Info("Запущен tail для файла", zap.String("file", path))

	defer func() {
		if r := recover(); r != nil {
			t.lg.Error("Паника в tailer восстановлена", zap.Any("error", r))
		}
	}()

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-tf.Lines:
			if !ok {
				return nil
			}
			lineNo++
			clean := strings.ReplaceAll(line.Text, "\x00", "")
			if clean != line.Text {
				t.lg.Warn("Обнаружены нулевые байты в строке", zap.String("file", path))
			}
			rec, ok := t.parser.Parse(models.RawLogLine{Text: clean, File: path, Number: lineNo})
			if !ok {
				continue
			}
			mapped := t.mapper.MapChunk([]*models.NormalizedRecord{rec})
			if len(mapped) == 0 {
				continue // строка отфильтрована правилом серьёзности
			}
			row := models.ClassifiedRow{FeatureRow: features.Enrich(mapped[0])}
			select {
			case <-ctx.Done():
				return nil
			case out <- row:
			}
		}
	}
}
