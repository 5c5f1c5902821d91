package features

import (
	"net"
	"strings"
	"time"

	"FirewallAlertPump/internal/models"
)

// Производные признаки считаются построчно и не зависят друг от друга.
// Битые или нулевые метки времени дают нейтральные значения (-1/0),
// а не ошибку — признаковый слой никогда не прерывает конвейер.

const privilegedPortMax = 1024

// rfc1918 — приватные диапазоны IPv4.
var rfc1918 = []*net.IPNet{
	mustCIDR("10.0.0.0/8"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// EnrichChunk добавляет производные признаки к порции MappedRecord.
func EnrichChunk(rows []models.MappedRecord) []models.FeatureRow {
	out := make([]models.FeatureRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, Enrich(r))
	}
	return out
}

// Enrich строит FeatureRow по одной записи.
func Enrich(r models.MappedRecord) models.FeatureRow {
	row := models.FeatureRow{
		MappedRecord:      r,
		Hour:              -1,
		Weekday:           -1,
		IsBusinessHours:   0,
		SrcPortPrivileged: boolFlag(r.SourcePort > 0 && r.SourcePort < privilegedPortMax),
		DstPortPrivileged: boolFlag(r.DestinationPort > 0 && r.DestinationPort < privilegedPortMax),
		SrcIPPrivate:      boolFlag(isPrivateIP(r.SourceIP)),
		DstIPPrivate:      boolFlag(isPrivateIP(r.DestinationIP)),
		SeverityCategory:  SeverityCategory(r.Severity),
		SyslogIDCategory:  SyslogIDCategory(r.SyslogID),
	}
	if t, ok := parseDatetime(r.Datetime); ok {
		row.Hour = t.Hour()
		row.Weekday = int(t.Weekday())
		if row.Hour >= 9 && row.Hour < 18 && row.Weekday >= 1 && row.Weekday <= 5 {
			row.IsBusinessHours = 1
		}
	}
	return row
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return false
	}
	for _, n := range rfc1918 {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseDatetime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == models.Sentinel {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// SeverityCategory — грубая текстовая категория серьёзности.
func SeverityCategory(severity int) string {
	switch {
	case severity < 0:
		return "unknown"
	case severity <= 2:
		return "critical"
	case severity <= 4:
		return "high"
	case severity <= 5:
		return "medium"
	default:
		return "low"
	}
}

// SyslogIDCategory — грубая категория по первой цифре идентификатора сообщения.
// У ASA первая цифра номера примерно соответствует подсистеме.
func SyslogIDCategory(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || id == models.Sentinel {
		return "unknown"
	}
	switch id[0] {
	case '1':
		return "access"
	case '2':
		return "bad_packet"
	case '3':
		return "session"
	case '4':
		return "ids"
	case '5':
		return "system"
	case '6':
		return "auth"
	case '7':
		return "misc"
	default:
		return "other"
	}
}
