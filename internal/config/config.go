package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Vendor — поддерживаемые производители межсетевых экранов.
const (
	VendorCisco = "cisco"
	VendorForti = "forti"
)

// WatcherConfig — настройки слежения за каталогом с логами.
// PollInterval в секундах, ProcessedTTL в минутах.
type WatcherConfig struct {
	WatchDir     string   `yaml:"WatchDir"`
	FilePattern  string   `yaml:"FilePattern"`
	DenyMarkers  []string `yaml:"DenyMarkers"` // подстроки имён производных файлов, на которые нельзя триггериться
	PollInterval int      `yaml:"PollInterval"`
	StableChecks int      `yaml:"StableChecks"`
	ProcessedTTL int      `yaml:"ProcessedTTL"`
}

// ModelsConfig — пути к обученным моделям и резервный список признаков.
// FallbackFeatures используется, когда модель не отдаёт имена признаков.
type ModelsConfig struct {
	BinaryPath       string   `yaml:"BinaryPath"`
	MulticlassPath   string   `yaml:"MulticlassPath"`
	FallbackFeatures []string `yaml:"FallbackFeatures"`
}

// ConvergenceConfig — окно и поля группировки для схождения алертов.
// ActionableLevels — уровни crlevel, по которым вообще шлются уведомления.
type ConvergenceConfig struct {
	WindowMinutes    int      `yaml:"WindowMinutes"`
	GroupFields      []string `yaml:"GroupFields"` // подмножество {source, destination, protocol, port}
	ActionableLevels []int    `yaml:"ActionableLevels"`
}

// DiscordConfig — вебхук Discord.
type DiscordConfig struct {
	WebhookURL string `yaml:"WebhookURL"`
}

// LineConfig — push-уведомления LINE.
// RecipientsFile — текстовый файл, по одному user id на строку.
type LineConfig struct {
	ChannelToken   string `yaml:"ChannelToken"`
	RecipientsFile string `yaml:"RecipientsFile"`
}

// GeminiConfig — LLM-обогащение рекомендаций. Пустой APIKey отключает шаг.
type GeminiConfig struct {
	APIKey string `yaml:"APIKey"`
	Model  string `yaml:"Model"`
}

// DispatchConfig — настройки шлюза отправки.
// DedupStrategy: "mtime" или "hash".
type DispatchConfig struct {
	DedupStrategy string        `yaml:"DedupStrategy"`
	DedupWindow   int           `yaml:"DedupWindow"` // минуты, только для стратегии mtime
	Discord       DiscordConfig `yaml:"Discord"`
	Line          LineConfig    `yaml:"Line"`
	Gemini        GeminiConfig  `yaml:"Gemini"`
}

// ArchiveConfig — необязательный архив классифицированных строк в ClickHouse.
type ArchiveConfig struct {
	Enabled       bool   `yaml:"Enabled"`
	Address       string `yaml:"Address"`
	Username      string `yaml:"Username"`
	Password      string `yaml:"Password"`
	Database      string `yaml:"Database"`
	Table         string `yaml:"Table"`
	Protocol      string `yaml:"Protocol"` // "native" или "http"
	BatchSize     int    `yaml:"BatchSize"`
	BatchInterval int    `yaml:"BatchInterval"` // секунды
}

// RedisConfig — подключение к Redis для хранилища обработанных файлов.
type RedisConfig struct {
	Host     string `yaml:"Host"`
	Port     int    `yaml:"Port"`
	DB       int    `yaml:"DB"`
	Password string `yaml:"Password"`
}

// LoggingConfig — настройки логирования и интеграции с Sentry.
type LoggingConfig struct {
	LogFile      string `yaml:"LogFile"`
	SentryDSN    string `yaml:"SentryDSN"`
	EnableSentry bool   `yaml:"EnableSentry"`
}

// Config описывает основные настройки сервиса.
// Загружается из YAML, пример конфигурации см. README.md.
type Config struct {
	Vendor    string `yaml:"Vendor"`
	OutputDir string `yaml:"OutputDir"`
	ChunkSize int    `yaml:"ChunkSize"`

	Watcher     WatcherConfig     `yaml:"Watcher"`
	Models      ModelsConfig      `yaml:"Models"`
	Convergence ConvergenceConfig `yaml:"Convergence"`
	Dispatch    DispatchConfig    `yaml:"Dispatch"`
	Archive     ArchiveConfig     `yaml:"Archive"`

	ProcessedStorage string        `yaml:"ProcessedStorage"` // "file" или "redis"
	Redis            RedisConfig   `yaml:"Redis"`
	Logging          LoggingConfig `yaml:"Logging"`
}

// LoadConfig читает и парсит конфиг из YAML-файла по указанному пути.
// Шаги:
// 1. Чтение сырого файла
// 2. Очистка данных: удаление BOM, замена табуляций
// 3. Парсинг YAML в структуру Config
// 4. Значения по умолчанию и валидация обязательных полей
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	sanitized := sanitize(raw)

	var cfg Config
	if err := yaml.Unmarshal(sanitized, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// sanitize удаляет UTF-8 BOM и заменяет табы на два пробела,
// чтобы YAML-парсер не жаловался.
func sanitize(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
	return data
}

// applyDefaults проставляет значения по умолчанию для необязательных полей.
func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 50000
	}
	if c.Watcher.FilePattern == "" {
		c.Watcher.FilePattern = "*.log"
	}
	if len(c.Watcher.DenyMarkers) == 0 {
		c.Watcher.DenyMarkers = []string{"_clean", "_preprocessed", "_result"}
	}
	if c.Watcher.PollInterval <= 0 {
		c.Watcher.PollInterval = 5
	}
	if c.Watcher.StableChecks <= 0 {
		c.Watcher.StableChecks = 2
	}
	if c.Watcher.ProcessedTTL <= 0 {
		c.Watcher.ProcessedTTL = 60
	}
	if c.Convergence.WindowMinutes <= 0 {
		c.Convergence.WindowMinutes = 10
	}
	if len(c.Convergence.GroupFields) == 0 {
		c.Convergence.GroupFields = []string{"source", "destination"}
	}
	if c.Dispatch.DedupStrategy == "" {
		c.Dispatch.DedupStrategy = "mtime"
	}
	if c.Dispatch.DedupWindow <= 0 {
		c.Dispatch.DedupWindow = 60
	}
	if c.Archive.BatchSize <= 0 {
		c.Archive.BatchSize = 1000
	}
	if c.Archive.BatchInterval <= 0 {
		c.Archive.BatchInterval = 10
	}
	if c.ProcessedStorage == "" {
		c.ProcessedStorage = "file"
	}
}

// Validate проверяет обязательные поля конфигурации.
func (c *Config) Validate() error {
	if c.Vendor != VendorCisco && c.Vendor != VendorForti {
		return fmt.Errorf("Vendor must be %q or %q, got %q", VendorCisco, VendorForti, c.Vendor)
	}
	if c.Watcher.WatchDir == "" {
		return fmt.Errorf("Watcher.WatchDir must not be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OutputDir must not be empty")
	}
	switch c.Dispatch.DedupStrategy {
	case "mtime", "hash":
	default:
		return fmt.Errorf("Dispatch.DedupStrategy must be \"mtime\" or \"hash\", got %q", c.Dispatch.DedupStrategy)
	}
	for _, f := range c.Convergence.GroupFields {
		switch f {
		case "source", "destination", "protocol", "port":
		default:
			return fmt.Errorf("Convergence.GroupFields: unknown field %q", f)
		}
	}
	if c.Archive.Enabled {
		if c.Archive.Address == "" {
			return fmt.Errorf("Archive.Address must not be empty")
		}
		if c.Archive.Database == "" {
			return fmt.Errorf("Archive.Database must not be empty")
		}
		if c.Archive.Table == "" {
			return fmt.Errorf("Archive.Table must not be empty")
		}
	}
	if c.ProcessedStorage != "file" && c.ProcessedStorage != "redis" {
		return fmt.Errorf("ProcessedStorage must be \"file\" or \"redis\", got %q", c.ProcessedStorage)
	}
	return nil
}
