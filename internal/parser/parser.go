package parser

import (
	"fmt"
	"strings"
	"time"

	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/models"
)

// Parser превращает одну сырую строку лога в NormalizedRecord.
// Строка, не подходящая под грамматику вендора (продолжение многострочной
// записи, мусор), возвращает (nil, false) — это не ошибка.
type Parser interface {
	Vendor() string
	Parse(line models.RawLogLine) (*models.NormalizedRecord, bool)
}

// ForVendor возвращает парсер для указанного вендора.
func ForVendor(vendor string) (Parser, error) {
	switch vendor {
	case config.VendorCisco:
		return NewASAParser(), nil
	case config.VendorForti:
		return NewFortiParser(), nil
	default:
		return nil, fmt.Errorf("неизвестный вендор: %q", vendor)
	}
}

// newRecord создаёт запись, в которой каждое стандартное поле уже
// заполнено заглушкой. Парсеры перезаписывают только то, что нашли.
func newRecord(raw string) *models.NormalizedRecord {
	return &models.NormalizedRecord{
		Datetime:        models.Sentinel,
		SyslogID:        models.Sentinel,
		Severity:        models.Sentinel,
		SourceIP:        models.Sentinel,
		SourcePort:      models.Sentinel,
		DestinationIP:   models.Sentinel,
		DestinationPort: models.Sentinel,
		Duration:        models.Sentinel,
		Bytes:           models.Sentinel,
		Protocol:        models.Sentinel,
		Action:          models.Sentinel,
		Description:     models.Sentinel,
		RawLog:          raw,
	}
}

// safe — доступ к map с пустой строкой вместо отсутствующего ключа.
func safe(m map[string]string, k string) string {
	if v, ok := m[k]; ok {
		return v
	}
	return ""
}

// setIfPresent перезаписывает поле только непустым значением.
func setIfPresent(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// datetimeLayouts — форматы времени, встречающиеся в логах обоих вендоров.
var datetimeLayouts = []string{
	"Jan 02 2006 15:04:05",
	"Jan  2 2006 15:04:05",
	"Jan 2 15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
}

// normalizeDatetime приводит метку времени к "2006-01-02 15:04:05".
// Непарсибельное значение возвращается как есть: решение, что с ним
// делать, принимает инженер признаков.
func normalizeDatetime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Sentinel
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() == 0 {
				t = t.AddDate(time.Now().Year(), 0, 0)
			}
			return t.Format("2006-01-02 15:04:05")
		}
	}
	return s
}
