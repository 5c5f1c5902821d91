package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// processedKey — ключ гашения повторных срабатываний: путь плюс размер.
// Файл, который дописали (размер изменился), даёт новый ключ и может
// сработать снова; неизменный файл — не может, пока запись не устареет.
func processedKey(path string, size int64) string {
	return fmt.Sprintf("%s|%d", path, size)
}

// scanOnce — один такт машины состояний. Вызывается только под scanMu.
//
// Переходы:
//   - нового кандидата нет → состояние сбрасывается;
//   - кандидат сменился → запоминаем (путь, размер), stable=1, не триггерим;
//   - размер изменился → stable=1, новый размер, не триггерим;
//   - размер не изменился → stable++; на StableChecks — триггер, один раз
//     на пару (путь, размер).
func (w *Watcher) scanOnce() {
	if w.paused.Load() {
		return
	}
	cfg := w.snapshot().Watcher

	w.pruneProcessed(time.Duration(cfg.ProcessedTTL) * time.Minute)

	path, size, ok := w.latestCandidate(cfg.WatchDir, cfg.FilePattern, cfg.DenyMarkers)
	if !ok {
		w.candidatePath = ""
		w.candidateSize = 0
		w.stableCount = 0
		return
	}

	switch {
	case path != w.candidatePath:
		w.candidatePath = path
		w.candidateSize = size
		w.stableCount = 1
		return
	case size != w.candidateSize:
		w.candidateSize = size
		w.stableCount = 1
		return
	default:
		w.stableCount++
	}

	if w.stableCount < cfg.StableChecks {
		return
	}

	key := processedKey(path, size)
	if _, done := w.processed[key]; done {
		return
	}

	// Канал буферизован; если читатель не успевает, событие выбрасывается —
	// цикл опроса никогда не блокируется
	select {
	case w.triggerCh <- TriggerEvent{Path: path, Size: size}:
		w.cfg.Logger.Info("Файл стабилен, отправлен на обработку",
			zap.String("file", path), zap.Int64("size", size))
		w.processed[key] = w.clock().Unix()
		if err := w.store.Save(w.processed); err != nil {
			w.cfg.Logger.Error("Не удалось сохранить processed_files", zap.Error(err))
		}
	default:
		w.cfg.Logger.Warn("Канал триггеров переполнен, событие отброшено",
			zap.String("file", path))
	}
}

// latestCandidate выбирает самый свежий по mtime файл каталога,
// подходящий под шаблон имени и не содержащий маркеров производных
// выходов (иначе ETL зациклится на собственных результатах).
func (w *Watcher) latestCandidate(dir, pattern string, denyMarkers []string) (string, int64, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.cfg.Logger.Error("Не удалось прочитать каталог", zap.String("dir", dir), zap.Error(err))
		return "", 0, false
	}

	var bestPath string
	var bestSize int64
	var bestMod time.Time
	found := false

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if match, err := filepath.Match(pattern, name); err != nil || !match {
			continue
		}
		if hasDenyMarker(name, denyMarkers) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !found || info.ModTime().After(bestMod) {
			found = true
			bestPath = filepath.Join(dir, name)
			bestSize = info.Size()
			bestMod = info.ModTime()
		}
	}
	return bestPath, bestSize, found
}

func hasDenyMarker(name string, markers []string) bool {
	lower := strings.ToLower(name)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// pruneProcessed выбрасывает записи старше TTL, чтобы множество не росло
// бесконечно. Неизменный файл от этого заново не сработает: для нового
// срабатывания его размер или mtime должны измениться.
func (w *Watcher) pruneProcessed(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	cutoff := w.clock().Add(-ttl).Unix()
	for k, ts := range w.processed {
		if ts < cutoff {
			delete(w.processed, k)
		}
	}
}
