package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"FirewallAlertPump/internal/archive"
	"FirewallAlertPump/internal/batch"
	"FirewallAlertPump/internal/classify"
	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/dispatch"
	"FirewallAlertPump/internal/etl"
	"FirewallAlertPump/internal/logger"
	"FirewallAlertPump/internal/models"
	"FirewallAlertPump/internal/pipeline"
	"FirewallAlertPump/internal/storage"
	"FirewallAlertPump/internal/tailer"
	"FirewallAlertPump/internal/watcher"
)

func main() {
	configPath := flag.String("config", "config.yaml", "путь к YAML-конфигу")
	settingsPath := flag.String("settings", "monitor_settings.json", "путь к JSON-настройкам мониторинга")
	runOnce := flag.String("run", "", "обработать один файл и выйти (ручной запуск)")
	tailPath := flag.String("tail", "", "живой режим: следить за растущим файлом syslog (требует включённого архива)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// Логгер ещё не поднят, настройки логирования лежат в конфиге
		panic("Ошибка загрузки конфига: " + err.Error())
	}

	rootLogger, err := logger.InitZap(&cfg.Logging)
	if err != nil {
		panic("Ошибка инициализации логгера: " + err.Error())
	}
	lg := rootLogger.Named("main")
	defer lg.Sync()
	lg.Info("Сервис FirewallAlertPump стартует…",
		zap.String("vendor", cfg.Vendor), zap.String("config", *configPath))

	// Настройки из интерфейса накладываются поверх YAML-конфига
	settings, err := config.LoadMonitorSettings(*settingsPath)
	if err != nil {
		lg.Warn("Настройки мониторинга не прочитаны, используется конфиг как есть",
			zap.String("path", *settingsPath), zap.Error(err))
	} else {
		settings.ApplyTo(cfg)
		if settings.WatchDir != "" || settings.OutputDir != "" {
			lg.Info("Применены настройки мониторинга",
				zap.String("watch_dir", cfg.Watcher.WatchDir), zap.String("output_dir", cfg.OutputDir))
		}
	}

	// Хранилище обработанных файлов: файл на диске или Redis
	var store storage.ProcessedStore
	switch cfg.ProcessedStorage {
	case "redis":
		store, err = storage.NewRedisStore(&cfg.Redis, "firewallalertpump:processed_files")
		if err != nil {
			lg.Fatal("Ошибка подключения к Redis", zap.Error(err))
		}
		lg.Info("Хранилище processed_files: Redis")
	default:
		store = storage.NewFileStore("processed_files.json")
		lg.Info("Хранилище processed_files: файл")
	}

	// Модели классификации необязательны: без них is_attack определяется
	// только правилом серьёзности, а crlevel остаётся нулевым
	var binary, multiclass classify.Classifier
	if cfg.Models.BinaryPath != "" {
		binary, err = classify.LoadClassifier(cfg.Models.BinaryPath)
		if err != nil {
			lg.Fatal("Ошибка загрузки бинарной модели", zap.Error(err))
		}
		lg.Info("Бинарная модель загружена", zap.String("path", cfg.Models.BinaryPath))
	}
	if cfg.Models.MulticlassPath != "" {
		multiclass, err = classify.LoadClassifier(cfg.Models.MulticlassPath)
		if err != nil {
			lg.Fatal("Ошибка загрузки многоклассовой модели", zap.Error(err))
		}
		lg.Info("Многоклассовая модель загружена", zap.String("path", cfg.Models.MulticlassPath))
	}

	// Каналы доставки
	var channels []dispatch.Channel
	if cfg.Dispatch.Discord.WebhookURL != "" {
		channels = append(channels, dispatch.NewDiscordChannel(cfg.Dispatch.Discord.WebhookURL, lg.Named("discord")))
	}
	if cfg.Dispatch.Line.ChannelToken != "" && cfg.Dispatch.Line.RecipientsFile != "" {
		channels = append(channels, dispatch.NewLineChannel(cfg.Dispatch.Line.ChannelToken, cfg.Dispatch.Line.RecipientsFile, lg.Named("line")))
	}
	if len(channels) == 0 {
		lg.Warn("Ни один канал доставки не настроен, уведомления будут только в логе")
	}

	cache, err := dispatch.NewDedupCache(cfg.Dispatch.DedupStrategy, time.Duration(cfg.Dispatch.DedupWindow)*time.Minute)
	if err != nil {
		lg.Fatal("Ошибка настройки дедупликации", zap.Error(err))
	}

	// Интерфейсу нельзя присваивать типизированный nil напрямую
	var enricher dispatch.Enricher
	if g := dispatch.NewGeminiEnricher(cfg.Dispatch.Gemini.APIKey, cfg.Dispatch.Gemini.Model); g != nil {
		enricher = g
		lg.Info("LLM-обогащение включено", zap.String("model", cfg.Dispatch.Gemini.Model))
	}

	gate := dispatch.NewGate(cache, channels, enricher, lg.Named("dispatch"))

	driver, err := etl.NewDriver(cfg.Vendor, cfg.ChunkSize, lg.Named("etl"))
	if err != nil {
		lg.Fatal("Ошибка создания ETL-драйвера", zap.Error(err))
	}

	var wg sync.WaitGroup

	// Необязательный архив в ClickHouse
	var archiveCh chan models.ClassifiedRow
	if cfg.Archive.Enabled {
		chClient, err := archive.New(cfg.Archive, lg.Named("clickhouse"))
		if err != nil {
			lg.Fatal("Ошибка подключения к ClickHouse", zap.Error(err))
		}
		defer chClient.Close()

		archiveCh = make(chan models.ClassifiedRow, cfg.Archive.BatchSize*2)
		batcher := batch.NewBatcher(cfg.Archive.BatchSize, cfg.Archive.BatchInterval, lg.Named("batcher"), chClient)
		wg.Add(1)
		go func() { defer wg.Done(); batcher.Run(ctx, archiveCh) }()
		lg.Info("Архив в ClickHouse включён", zap.String("table", cfg.Archive.Table))
	}

	runner := pipeline.NewRunner(cfg, driver, binary, multiclass, gate, archiveCh, lg.Named("pipeline"))

	switch {
	case *runOnce != "":
		// Ручной режим: один файл, один прогон, выход
		res := runner.Run(ctx, *runOnce)
		if !res.OK {
			lg.Error("Прогон не удался", zap.String("debug", res.Debug))
			cancel()
			wg.Wait()
			os.Exit(1)
		}
		cancel()
		wg.Wait()
		return

	case *tailPath != "":
		// Живой режим: tail растущего syslog-файла прямо в архив
		if archiveCh == nil {
			lg.Fatal("Живой режим требует включённого архива (Archive.Enabled)")
		}
		t, err := tailer.New(cfg.Vendor, lg.Named("tailer"))
		if err != nil {
			lg.Fatal("Ошибка создания tailer-а", zap.Error(err))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.Follow(ctx, *tailPath, archiveCh); err != nil {
				lg.Error("Tailer завершился с ошибкой", zap.Error(err))
			}
		}()

	default:
		// Основной режим: watcher каталога + прогоны по триггерам
		triggerCh := make(chan watcher.TriggerEvent, 16)
		w := watcher.New(watcher.Config{
			Config:     cfg,
			ConfigPath: *configPath,
			Logger:     lg.Named("watcher"),
			Store:      store,
		}, triggerCh)

		wg.Add(1)
		go func() { defer wg.Done(); w.Start(ctx) }()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-triggerCh:
					lg.Info("Файл стабилен, запускаем прогон",
						zap.String("file", ev.Path), zap.Int64("size", ev.Size))
					if res, ok := runner.TryRun(ctx, ev.Path); ok && !res.OK {
						lg.Error("Прогон не удался", zap.String("debug", res.Debug))
					}
				}
			}
		}()
	}

	<-stop
	lg.Info("Получен сигнал остановки, начинаем завершение работы")
	cancel()
	wg.Wait()
	lg.Info("Сервис завершил работу")
}
