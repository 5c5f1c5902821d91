package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"FirewallAlertPump/internal/classify"
	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/converge"
	"FirewallAlertPump/internal/dispatch"
	"FirewallAlertPump/internal/etl"
	"FirewallAlertPump/internal/models"
)

// RunResult — структурированный итог одного прогона для UI-слоя.
// Через публичную границу конвейера не пролетает ни одна паника:
// либо успешная сводка, либо заполненный Debug.
type RunResult struct {
	RunID           string
	OK              bool
	Debug           string
	BatchID         int
	ProcessedCount  int
	SkippedLines    int
	AttackCount     int
	MessageCount    int
	Step1Path       string
	Step2Path       string
	ResultsPath     string
	SummaryPath     string
	DispatchSkipped bool
	Reports         []dispatch.Report
}

// Runner прогоняет один файл через все стадии строго по порядку:
// парсинг → маппинг → признаки → классификация → конвергенция → отправка.
// Одновременно живёт не больше одного прогона.
type Runner struct {
	cfg        *config.Config
	driver     *etl.Driver
	binary     classify.Classifier
	multiclass classify.Classifier
	gate       *dispatch.Gate
	archiveCh  chan<- models.ClassifiedRow // nil, если архив выключен
	lg         *zap.Logger

	mu sync.Mutex // не больше одного прогона одновременно
}

func NewRunner(
	cfg *config.Config,
	driver *etl.Driver,
	binary, multiclass classify.Classifier,
	gate *dispatch.Gate,
	archiveCh chan<- models.ClassifiedRow,
	lg *zap.Logger,
) *Runner {
	return &Runner{
		cfg:        cfg,
		driver:     driver,
		binary:     binary,
		multiclass: multiclass,
		gate:       gate,
		archiveCh:  archiveCh,
		lg:         lg,
	}
}

// TryRun запускает прогон, если никакой другой сейчас не идёт.
// Занято — триггер отбрасывается с записью в лог, без очереди и повторов.
func (r *Runner) TryRun(ctx context.Context, rawLogPath string) (*RunResult, bool) {
	if !r.mu.TryLock() {
		r.lg.Info("Прогон уже идёт, триггер пропущен", zap.String("file", rawLogPath))
		return nil, false
	}
	defer r.mu.Unlock()
	return r.run(ctx, rawLogPath), true
}

// Run — синхронный запуск (ручной сценарий из UI). Ждёт мьютекс.
func (r *Runner) Run(ctx context.Context, rawLogPath string) *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx, rawLogPath)
}

func (r *Runner) run(ctx context.Context, rawLogPath string) (res *RunResult) {
	res = &RunResult{RunID: uuid.NewString()}
	lg := r.lg.With(zap.String("run_id", res.RunID), zap.String("file", rawLogPath))

	defer func() {
		if rec := recover(); rec != nil {
			res.OK = false
			res.Debug = fmt.Sprintf("panic: %v\n%s", rec, debug.Stack())
			lg.Error("Паника в прогоне восстановлена", zap.Any("error", rec))
		}
	}()

	fail := func(stage string, err error) *RunResult {
		res.OK = false
		res.Debug = fmt.Sprintf("%s: %T: %v", stage, err, err)
		lg.Error("Прогон завершился ошибкой", zap.String("stage", stage), zap.Error(err))
		return res
	}

	// ETL
	stats, rows, err := r.driver.Run(ctx, rawLogPath, r.cfg.OutputDir)
	if err != nil {
		return fail("etl", err)
	}
	res.BatchID = stats.BatchID
	res.ProcessedCount = stats.ProcessedCount
	res.SkippedLines = stats.SkippedLines
	res.Step1Path = stats.Step1Path
	res.Step2Path = stats.Step2Path

	// Классификация: бинарная на всех строках, многоклассовая — только
	// на строках, помеченных как атака
	classified, err := r.classifyRows(rows, lg)
	if err != nil {
		return fail("classify", err)
	}
	for _, c := range classified {
		if c.IsAttack == 1 {
			res.AttackCount++
		}
	}

	if path, err := classify.WriteSummary(r.cfg.OutputDir, labelsOf(classified, false), labelsOf(classified, true)); err != nil {
		lg.Warn("Не удалось записать сводку классификации", zap.Error(err))
	} else {
		res.SummaryPath = path
	}

	resultsPath, err := etl.AppendResults(r.cfg.OutputDir, classified)
	if err != nil {
		return fail("append_results", err)
	}
	res.ResultsPath = resultsPath

	// Архив — необязательный побочный поток
	if r.archiveCh != nil {
		for _, c := range classified {
			select {
			case r.archiveCh <- c:
			case <-ctx.Done():
				return fail("archive", ctx.Err())
			}
		}
	}

	// Конвергенция и отправка
	msgs := converge.Converge(toFrameRows(classified), converge.Config{
		WindowMinutes:    r.cfg.Convergence.WindowMinutes,
		GroupFields:      r.cfg.Convergence.GroupFields,
		ActionableLevels: r.cfg.Convergence.ActionableLevels,
	})
	res.MessageCount = len(msgs)
	lg.Info("Конвергенция завершена",
		zap.Int("rows", len(classified)), zap.Int("messages", len(msgs)))

	reports, skipped, err := r.gate.DispatchFile(ctx, resultsPath, msgs)
	if err != nil {
		return fail("dispatch", err)
	}
	res.DispatchSkipped = skipped
	res.Reports = reports

	res.OK = true
	lg.Info("Прогон завершён",
		zap.Int("batch_id", res.BatchID),
		zap.Int("processed", res.ProcessedCount),
		zap.Int("attacks", res.AttackCount),
		zap.Int("messages", res.MessageCount))
	return res
}

// classifyRows навешивает метки моделей. Бинарная модель может
// переопределить is_attack; crlevel получают только атаки.
func (r *Runner) classifyRows(rows []models.FeatureRow, lg *zap.Logger) ([]models.ClassifiedRow, error) {
	classified := make([]models.ClassifiedRow, len(rows))
	for i, row := range rows {
		classified[i] = models.ClassifiedRow{FeatureRow: row}
	}
	if len(rows) == 0 {
		return classified, nil
	}

	frame := classify.FrameFromRows(rows)
	fallback := r.cfg.Models.FallbackFeatures

	if r.binary != nil {
		labels, err := classify.PredictBinary(frame, r.binary, fallback, lg)
		if err != nil {
			return nil, err
		}
		for i := range classified {
			classified[i].IsAttack = labels[i]
		}
	}

	mask := make([]bool, len(classified))
	for i := range classified {
		mask[i] = classified[i].IsAttack == 1
	}

	if r.multiclass != nil {
		levels, err := classify.PredictMulticlass(frame, r.multiclass, fallback, mask, lg)
		if err != nil {
			return nil, err
		}
		for i := range classified {
			classified[i].CRLevel = levels[i]
		}
	}
	return classified, nil
}

// toFrameRows превращает классифицированные строки в колоночное
// представление для движка конвергенции. Имена колонок совпадают со
// схемой all_results.csv — их же резолвит таблица алиасов.
func toFrameRows(rows []models.ClassifiedRow) []converge.Row {
	out := make([]converge.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, converge.Row{
			"crlevel":         strconv.Itoa(r.CRLevel),
			"Datetime":        r.Datetime,
			"SourceIP":        r.SourceIP,
			"DestinationIP":   r.DestinationIP,
			"Protocol":        strconv.Itoa(r.Protocol),
			"DestinationPort": strconv.Itoa(r.DestinationPort),
			"Description":     r.Description,
		})
	}
	return out
}

func labelsOf(rows []models.ClassifiedRow, multiclass bool) []int {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		if multiclass {
			out = append(out, r.CRLevel)
		} else {
			out = append(out, r.IsAttack)
		}
	}
	return out
}
