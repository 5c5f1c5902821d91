package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/storage"
)

// TriggerEvent — сигнал «файл стабилен, можно обрабатывать».
// Watcher только кладёт события в канал; кто и когда запускает конвейер,
// решает читающая сторона. Общего изменяемого состояния между ними нет.
type TriggerEvent struct {
	Path string
	Size int64
}

// Config — зависимости watcher-а.
type Config struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Store      storage.ProcessedStore
	// Clock подменяется в тестах; nil означает time.Now
	Clock func() time.Time
}

// Watcher опрашивает каталог с фиксированным интервалом и отслеживает
// последний кандидатский файл по (путь, размер). Файл объявляется готовым,
// когда его размер не менялся два опроса подряд; повторные срабатывания
// по той же паре (путь, размер) гасятся множеством processed с TTL.
type Watcher struct {
	cfg       Config
	store     storage.ProcessedStore
	triggerCh chan<- TriggerEvent
	clock     func() time.Time

	// Состояние машины опроса. Владеет им горутина watcher-а;
	// ручной ScanNow сериализуется через scanMu.
	scanMu        sync.Mutex
	candidatePath string
	candidateSize int64
	stableCount   int

	processed map[string]int64 // "путь|размер" → unix-время добавления

	paused atomic.Bool

	// cfgMu защищает cfg.Config при горячей перезагрузке
	cfgMu sync.RWMutex

	ctx context.Context
}

// New создаёт watcher. processed загружается из стора: перезапуск сервиса
// не должен приводить к повторной отправке уже обработанных файлов.
func New(cfg Config, triggerCh chan<- TriggerEvent) *Watcher {
	processed, err := cfg.Store.Load()
	if err != nil {
		cfg.Logger.Error("Не удалось загрузить processed_files", zap.Error(err))
		processed = make(map[string]int64)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Watcher{
		cfg:       cfg,
		store:     cfg.Store,
		triggerCh: triggerCh,
		clock:     clock,
		processed: processed,
	}
}

// Start запускает цикл опроса и наблюдение за конфигом. Блокируется до
// отмены контекста; незавершённый прогон конвейера никто не убивает —
// watcher просто перестаёт выдавать новые триггеры.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx

	go w.watchConfig()

	interval := w.pollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.cfg.Logger.Info("Watcher запущен",
		zap.String("dir", w.snapshot().Watcher.WatchDir),
		zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			w.cfg.Logger.Info("Watcher остановлен по сигналу shutdown")
			if err := w.store.Save(w.processedSnapshot()); err != nil {
				w.cfg.Logger.Error("Не удалось сохранить processed_files", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			w.ScanNow()
			// Горячая перезагрузка конфига могла сменить интервал опроса
			if next := w.pollInterval(); next != interval {
				w.cfg.Logger.Info("Интервал опроса изменён", zap.Duration("interval", next))
				interval = next
				ticker.Reset(next)
			}
		}
	}
}

// pollInterval читает интервал опроса из актуального снимка конфига.
func (w *Watcher) pollInterval() time.Duration {
	return time.Duration(w.snapshot().Watcher.PollInterval) * time.Second
}

// ScanNow — однократный скан вне таймера (ручной запуск из UI).
func (w *Watcher) ScanNow() {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()
	w.scanOnce()
}

// Pause приостанавливает выдачу триггеров, не останавливая цикл опроса.
// Используется внешними housekeeping-процедурами (чистка каталогов).
func (w *Watcher) Pause() {
	w.paused.Store(true)
	w.cfg.Logger.Info("Watcher приостановлен")
}

// Resume снимает паузу.
func (w *Watcher) Resume() {
	w.paused.Store(false)
	w.cfg.Logger.Info("Watcher возобновлён")
}

// applyConfig подменяет конфиг под блокировкой (горячая перезагрузка).
func (w *Watcher) applyConfig(cfg *config.Config) {
	w.cfgMu.Lock()
	w.cfg.Config = cfg
	w.cfgMu.Unlock()
}

// snapshot отдаёт актуальный конфиг под читающей блокировкой.
func (w *Watcher) snapshot() *config.Config {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()
	return w.cfg.Config
}

func (w *Watcher) processedSnapshot() map[string]int64 {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()
	out := make(map[string]int64, len(w.processed))
	for k, v := range w.processed {
		out[k] = v
	}
	return out
}

// watchConfig следит за изменениями YAML-конфига и перечитывает его на лету.
func (w *Watcher) watchConfig() {
	if w.cfg.ConfigPath == "" {
		return
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.cfg.Logger.Error("Не удалось создать watcher для конфига", zap.Error(err))
		return
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.ConfigPath); err != nil {
		w.cfg.Logger.Error("Не удалось подписаться на конфиг", zap.String("path", w.cfg.ConfigPath), zap.Error(err))
		return
	}
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-fw.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.cfg.Logger.Info("Конфиг изменился, перечитываем", zap.String("path", w.cfg.ConfigPath))
				newCfg, err := config.LoadConfig(w.cfg.ConfigPath)
				if err != nil {
					w.cfg.Logger.Error("Ошибка загрузки конфига", zap.Error(err))
					continue
				}
				w.applyConfig(newCfg)
			}
		case err := <-fw.Errors:
			w.cfg.Logger.Error("Ошибка watcher-а конфига", zap.Error(err))
		}
	}
}
