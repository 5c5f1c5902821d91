package etl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"

	"go.uber.org/zap"

	"FirewallAlertPump/internal/encdetect"
	"FirewallAlertPump/internal/features"
	"FirewallAlertPump/internal/mapper"
	"FirewallAlertPump/internal/models"
	"FirewallAlertPump/internal/parser"
)

// RunStats — итог одного прогона ETL.
type RunStats struct {
	BatchID        int
	ProcessedCount int
	SkippedLines   int
	Step1Path      string
	Step2Path      string
}

const (
	// Проверка памяти раз в memCheckEvery чанков
	memCheckEvery = 4
	// Порог кучи, после которого принудительно отдаём память ОС
	memHeapLimit = 1 << 30 // 1 GiB
)

// Driver прогоняет один сырой лог через парсер → маппер → признаки,
// порциями фиксированного размера, и пишет два staged-выхода.
type Driver struct {
	vendor    string
	chunkSize int
	parser    parser.Parser
	mapper    *mapper.Mapper
	lg        *zap.Logger
}

// NewDriver создаёт драйвер для вендора. chunkSize ограничивает память,
// на семантику выходных данных он не влияет.
func NewDriver(vendor string, chunkSize int, lg *zap.Logger) (*Driver, error) {
	p, err := parser.ForVendor(vendor)
	if err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = 50000
	}
	return &Driver{
		vendor:    vendor,
		chunkSize: chunkSize,
		parser:    p,
		mapper:    mapper.New(vendor),
		lg:        lg,
	}, nil
}

// Run обрабатывает файл целиком и возвращает статистику прогона вместе с
// признаковыми строками для классификатора. batch_id назначается один раз
// в начале прогона и штампуется на каждую строку.
// Битая строка пропускается и считается; ошибка ввода-вывода прерывает прогон.
func (d *Driver) Run(ctx context.Context, rawLogPath, outputDir string) (*RunStats, []models.FeatureRow, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output dir: %w", err)
	}

	format := encdetect.DetectFormat(rawLogPath)
	switch format {
	case encdetect.FormatEmpty:
		d.lg.Warn("Файл пуст, обрабатывать нечего", zap.String("file", rawLogPath))
		return &RunStats{BatchID: NextBatchID(outputDir)}, nil, nil
	case encdetect.FormatCompressed:
		return nil, nil, fmt.Errorf("файл %s выглядит как архив, распакуйте его перед обработкой", rawLogPath)
	}

	batchID := NextBatchID(outputDir)
	d.lg.Info("Старт ETL",
		zap.String("file", rawLogPath),
		zap.Int("batch_id", batchID),
		zap.String("format", string(format)))

	f, err := os.Open(rawLogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", rawLogPath, err)
	}
	defer f.Close()
	// Файл читается потоково: в памяти живёт не более одной порции строк
	decoded, enc := encdetect.DecodeReader(f)
	d.lg.Debug("Кодировка определена", zap.String("encoding", string(enc)))

	stats := &RunStats{
		BatchID:   batchID,
		Step1Path: filepath.Join(outputDir, Step1FileName),
		Step2Path: filepath.Join(outputDir, Step2FileName),
	}

	step1, err := newStagedWriter(stats.Step1Path, Step1Header())
	if err != nil {
		return nil, nil, err
	}
	defer step1.close()
	step2, err := newStagedWriter(stats.Step2Path, Step2Header())
	if err != nil {
		return nil, nil, err
	}
	defer step2.close()

	uniques := newUniqueTracker()
	seen := make(map[models.MappedRecord]struct{})
	var featured []models.FeatureRow

	chunk := make([]*models.NormalizedRecord, 0, d.chunkSize)
	chunkNo := 0

	flushChunk := func() error {
		if len(chunk) == 0 {
			return nil
		}
		chunkNo++
		mapped := d.mapper.MapChunk(chunk)
		// Дедупликация сквозная по всему прогону, с сохранением порядка
		fresh := mapper.DeduplicateSeen(mapped, seen)
		rows := features.EnrichChunk(fresh)
		for _, r := range rows {
			if err := step2.writeRow(step2Row(r)); err != nil {
				return fmt.Errorf("write step2: %w", err)
			}
		}
		featured = append(featured, rows...)
		stats.ProcessedCount += len(rows)
		chunk = chunk[:0]

		if chunkNo%memCheckEvery == 0 {
			maybeFreeMemory(d.lg)
		}
		return nil
	}

	sc := bufio.NewScanner(decoded)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		lineNo++
		line := models.RawLogLine{Text: sc.Text(), File: rawLogPath, Number: lineNo}
		rec, ok := d.parser.Parse(line)
		if !ok {
			stats.SkippedLines++
			continue
		}
		rec.BatchID = batchID
		if err := step1.writeRow(step1Row(rec)); err != nil {
			return nil, nil, fmt.Errorf("write step1: %w", err)
		}
		uniques.observe(rec)
		chunk = append(chunk, rec)
		if len(chunk) >= d.chunkSize {
			if err := flushChunk(); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", rawLogPath, err)
	}
	if err := flushChunk(); err != nil {
		return nil, nil, err
	}

	if err := uniques.save(filepath.Join(outputDir, UniqueValuesFileName)); err != nil {
		// Файл уникальных значений информационный, прогон из-за него не роняем
		d.lg.Warn("Не удалось сохранить уникальные значения", zap.Error(err))
	}

	d.lg.Info("ETL завершён",
		zap.Int("batch_id", batchID),
		zap.Int("processed", stats.ProcessedCount),
		zap.Int("skipped", stats.SkippedLines))
	return stats, featured, nil
}

// maybeFreeMemory отдаёт память ОС, если куча разрослась.
// Чисто ресурсная мера, на результаты не влияет.
func maybeFreeMemory(lg *zap.Logger) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > memHeapLimit {
		lg.Warn("Куча превысила порог, принудительно отдаём память ОС",
			zap.Uint64("heap_alloc", ms.HeapAlloc))
		debug.FreeOSMemory()
	}
}

// uniqueTracker собирает наблюдавшиеся значения категориальных колонок.
type uniqueTracker struct {
	cols map[string]map[string]struct{}
}

func newUniqueTracker() *uniqueTracker {
	return &uniqueTracker{cols: map[string]map[string]struct{}{
		"Severity": {}, "Protocol": {}, "Action": {}, "SyslogID": {},
	}}
}

func (u *uniqueTracker) observe(r *models.NormalizedRecord) {
	u.cols["Severity"][r.Severity] = struct{}{}
	u.cols["Protocol"][r.Protocol] = struct{}{}
	u.cols["Action"][r.Action] = struct{}{}
	u.cols["SyslogID"][r.SyslogID] = struct{}{}
}

func (u *uniqueTracker) save(path string) error {
	out := make(map[string][]string, len(u.cols))
	for col, vals := range u.cols {
		list := make([]string, 0, len(vals))
		for v := range vals {
			list = append(list, v)
		}
		sort.Strings(list)
		out[col] = list
	}
	bs, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, bs, 0o644)
}
