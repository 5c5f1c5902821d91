package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// MonitorSettings — настройки мониторинга, которые UI может менять на ходу:
// читаются при старте, перезаписываются при каждом изменении из интерфейса.
type MonitorSettings struct {
	WatchDir            string `json:"watch_dir"`
	BinaryModelPath     string `json:"binary_model_path"`
	MulticlassModelPath string `json:"multiclass_model_path"`
	OutputDir           string `json:"output_dir"`
}

// LoadMonitorSettings читает настройки из JSON-файла.
// Отсутствующий файл — не ошибка: возвращаются пустые настройки.
func LoadMonitorSettings(path string) (*MonitorSettings, error) {
	bs, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &MonitorSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var s MonitorSettings
	if err := json.Unmarshal(bs, &s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return &s, nil
}

// ApplyTo накладывает непустые настройки поверх загруженного конфига.
// Пути, выставленные из интерфейса, приоритетнее YAML-файла.
func (s *MonitorSettings) ApplyTo(c *Config) {
	if s.WatchDir != "" {
		c.Watcher.WatchDir = s.WatchDir
	}
	if s.BinaryModelPath != "" {
		c.Models.BinaryPath = s.BinaryModelPath
	}
	if s.MulticlassModelPath != "" {
		c.Models.MulticlassPath = s.MulticlassModelPath
	}
	if s.OutputDir != "" {
		c.OutputDir = s.OutputDir
	}
}

// Save атомарно перезаписывает файл настроек.
func (s *MonitorSettings) Save(path string) error {
	bs, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}
	_ = os.Remove(path)
	return os.Rename(tmp, path)
}
