package storage

import (
	"encoding/json"
	"os"
	"sync"
)

// FileStore хранит множество обработанных файлов в JSON на диске.
type FileStore struct {
	Path string
	mu   sync.Mutex // защита от параллельной записи
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load() (map[string]int64, error) {
	processed := make(map[string]int64)
	if _, err := os.Stat(f.Path); os.IsNotExist(err) {
		return processed, nil
	}
	bs, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bs, &processed); err != nil {
		return nil, err
	}
	return processed, nil
}

func (f *FileStore) Save(data map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp := f.Path + ".tmp"
	bs, err := json.Marshal(data)
	if err != nil {
		return err
	}
	// Запись во временный файл и атомарное переименование
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}
	// Удаляем старый файл, чтобы Rename не ошибся (актуально для Windows)
	_ = os.Remove(f.Path)
	if err := os.Rename(tmp, f.Path); err != nil {
		return err
	}
	return nil
}
