package storage

// ProcessedStore — интерфейс для загрузки/сохранения множества уже
// обработанных файлов. Ключ — "путь|размер", значение — unix-время
// попадания в множество (по нему чистятся устаревшие записи).
type ProcessedStore interface {
	Load() (map[string]int64, error)
	Save(data map[string]int64) error
}
