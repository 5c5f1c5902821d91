package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"FirewallAlertPump/internal/config"
)

// memStore — хранилище processed_files в памяти для тестов.
type memStore struct {
	data  map[string]int64
	saves int
}

func (m *memStore) Load() (map[string]int64, error) {
	out := make(map[string]int64, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(data map[string]int64) error {
	m.data = make(map[string]int64, len(data))
	for k, v := range data {
		m.data[k] = v
	}
	m.saves++
	return nil
}

type fixture struct {
	w     *Watcher
	ch    chan TriggerEvent
	dir   string
	now   *time.Time
	store *memStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2024, 6, 11, 10, 0, 0, 0, time.UTC)
	store := &memStore{data: map[string]int64{}}
	cfg := &config.Config{
		Vendor: config.VendorCisco,
		Watcher: config.WatcherConfig{
			WatchDir:     dir,
			FilePattern:  "*.log",
			DenyMarkers:  []string{"_clean", "_preprocessed", "_result"},
			PollInterval: 5,
			StableChecks: 2,
			ProcessedTTL: 60,
		},
	}
	ch := make(chan TriggerEvent, 4)
	w := New(Config{
		Config: cfg,
		Logger: zap.NewNop(),
		Store:  store,
		Clock:  func() time.Time { return now },
	}, ch)
	return &fixture{w: w, ch: ch, dir: dir, now: &now, store: store}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) drain() []TriggerEvent {
	var out []TriggerEvent
	for {
		select {
		case ev := <-f.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestScanTriggersAfterStableChecks(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "fw.log", "line\n")

	// первый скан — кандидат замечен, stable=1, триггера нет
	f.w.ScanNow()
	assert.Empty(t, f.drain())

	// второй скан — размер не изменился, stable=2 → триггер
	f.w.ScanNow()
	evs := f.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, path, evs[0].Path)
	assert.Equal(t, int64(5), evs[0].Size)

	// повторные сканы той же пары (путь, размер) молчат
	f.w.ScanNow()
	f.w.ScanNow()
	assert.Empty(t, f.drain())
}

func TestScanSizeChangeResetsStability(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "fw.log", "1234")
	f.w.ScanNow()
	f.w.ScanNow()
	require.Len(t, f.drain(), 1)

	// файл дописали — новая пара (путь, размер), стабильность заново
	require.NoError(t, os.WriteFile(path, []byte("12345678"), 0o644))
	f.w.ScanNow()
	assert.Empty(t, f.drain())
	f.w.ScanNow()
	evs := f.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, int64(8), evs[0].Size)
}

func TestScanRetriggersAfterTTL(t *testing.T) {
	f := newFixture(t)
	f.write(t, "fw.log", "x")
	f.w.ScanNow()
	f.w.ScanNow()
	require.Len(t, f.drain(), 1)

	// запись в processed устарела — файл может сработать снова
	*f.now = f.now.Add(2 * time.Hour)
	f.w.ScanNow()
	assert.Len(t, f.drain(), 1)
}

func TestScanIgnoresDerivedFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "fw_preprocessed.log", "derived")
	f.write(t, "fw_RESULT.log", "derived") // маркеры регистронезависимые
	f.w.ScanNow()
	f.w.ScanNow()
	f.w.ScanNow()
	assert.Empty(t, f.drain())
}

func TestScanIgnoresNonMatchingPattern(t *testing.T) {
	f := newFixture(t)
	f.write(t, "fw.txt", "not a log")
	f.w.ScanNow()
	f.w.ScanNow()
	assert.Empty(t, f.drain())
}

func TestScanPickNewestCandidate(t *testing.T) {
	f := newFixture(t)
	older := f.write(t, "old.log", "old")
	newer := f.write(t, "new.log", "newer")
	base := time.Now()
	require.NoError(t, os.Chtimes(older, base.Add(-time.Hour), base.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, base, base))

	f.w.ScanNow()
	f.w.ScanNow()
	evs := f.drain()
	require.Len(t, evs, 1)
	assert.Equal(t, newer, evs[0].Path)
}

func TestScanPausedProducesNothing(t *testing.T) {
	f := newFixture(t)
	f.write(t, "fw.log", "x")
	f.w.Pause()
	f.w.ScanNow()
	f.w.ScanNow()
	f.w.ScanNow()
	assert.Empty(t, f.drain())

	f.w.Resume()
	f.w.ScanNow()
	f.w.ScanNow()
	assert.Len(t, f.drain(), 1)
}

func TestScanPersistsProcessedOnTrigger(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "fw.log", "x")
	f.w.ScanNow()
	f.w.ScanNow()
	require.Len(t, f.drain(), 1)

	key := processedKey(path, 1)
	assert.Contains(t, f.store.data, key)
	assert.Equal(t, f.now.Unix(), f.store.data[key])
}

func TestScanSurvivesRestartWithStore(t *testing.T) {
	f := newFixture(t)
	f.write(t, "fw.log", "x")
	f.w.ScanNow()
	f.w.ScanNow()
	require.Len(t, f.drain(), 1)

	// «перезапуск»: новый watcher с тем же store не триггерит файл заново
	ch2 := make(chan TriggerEvent, 4)
	w2 := New(Config{
		Config: f.w.snapshot(),
		Logger: zap.NewNop(),
		Store:  f.store,
		Clock:  func() time.Time { return *f.now },
	}, ch2)
	w2.ScanNow()
	w2.ScanNow()
	w2.ScanNow()
	assert.Empty(t, ch2)
}

func TestConfigReloadChangesPollInterval(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 5*time.Second, f.w.pollInterval())

	// горячая перезагрузка: цикл опроса читает интервал из снимка
	// конфига на каждом тике, поэтому новое значение подхватится
	newCfg := *f.w.snapshot()
	newCfg.Watcher.PollInterval = 30
	f.w.applyConfig(&newCfg)
	assert.Equal(t, 30*time.Second, f.w.pollInterval())
}

func TestScanDropsEventWhenChannelFull(t *testing.T) {
	dir := t.TempDir()
	store := &memStore{data: map[string]int64{}}
	cfg := &config.Config{
		Watcher: config.WatcherConfig{
			WatchDir: dir, FilePattern: "*.log", StableChecks: 1, ProcessedTTL: 60,
		},
	}
	ch := make(chan TriggerEvent) // небуферизованный, всегда «полон»
	w := New(Config{Config: cfg, Logger: zap.NewNop(), Store: store, Clock: time.Now}, ch)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fw.log"), []byte("x"), 0o644))
	w.ScanNow()
	w.ScanNow()
	// событие отброшено, файл не помечен обработанным
	assert.Empty(t, store.data)
}
