package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreLoadMissingFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "processed.json"))
	data, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	fs := NewFileStore(path)

	want := map[string]int64{
		"/var/log/fw/fw.log|1024": 1718100000,
		"/var/log/fw/fw2.log|55":  1718100300,
	}
	require.NoError(t, fs.Save(want))

	got, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// временный файл после атомарной записи не остаётся
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	fs := NewFileStore(path)
	require.NoError(t, fs.Save(map[string]int64{"a|1": 1}))
	require.NoError(t, fs.Save(map[string]int64{"b|2": 2}))

	got, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"b|2": 2}, got)
}

func TestFileStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}
