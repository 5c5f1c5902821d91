package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Стратегии дедупликации файлов результатов.
const (
	StrategyMtime = "mtime" // дёшево: имя + mtime, файл не читается
	StrategyHash  = "hash"  // устойчиво к переименованиям, читает файл целиком
)

// DedupCache помнит, алерты каких физических файлов уже отправлялись,
// и живёт весь процесс. Контейнер потокобезопасный: прогоны не должны
// пересекаться из-за мьютекса конвейера, но кэш на это не полагается.
type DedupCache struct {
	mu       sync.Mutex
	strategy string
	window   time.Duration // TTL записей, только для стратегии mtime
	seen     map[string]time.Time
}

// NewDedupCache создаёт кэш. window имеет смысл только для StrategyMtime;
// записи стратегии hash не устаревают.
func NewDedupCache(strategy string, window time.Duration) (*DedupCache, error) {
	switch strategy {
	case StrategyMtime, StrategyHash:
	default:
		return nil, fmt.Errorf("неизвестная стратегия дедупликации: %q", strategy)
	}
	return &DedupCache{
		strategy: strategy,
		window:   window,
		seen:     make(map[string]time.Time),
	}, nil
}

// Key вычисляет ключ дедупликации файла согласно стратегии.
func (c *DedupCache) Key(path string) (string, error) {
	switch c.strategy {
	case StrategyMtime:
		fi, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		return filepath.Base(path) + "@" + strconv.FormatInt(fi.ModTime().Unix(), 10), nil
	default: // StrategyHash
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}
}

// Seen сообщает, отправлялся ли файл с таким ключом. Попутно чистит
// устаревшие записи mtime-стратегии.
func (c *DedupCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	_, ok := c.seen[key]
	return ok
}

// Mark запоминает ключ после первой успешной отправки.
func (c *DedupCache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[key] = time.Now()
}

func (c *DedupCache) pruneLocked() {
	if c.strategy != StrategyMtime || c.window <= 0 {
		return
	}
	cutoff := time.Now().Add(-c.window)
	for k, at := range c.seen {
		if at.Before(cutoff) {
			delete(c.seen, k)
		}
	}
}
