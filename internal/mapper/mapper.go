package mapper

import (
	"strconv"
	"strings"

	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/models"
)

// Коды категориальных справочников.
// 0 — «значение есть, но в справочнике его нет», -1 — «значения нет вовсе».
const (
	CodeUnknown = 0
	CodeMissing = -1
)

// protocolCodes и actionCodes — фиксированные справочники, регистр не важен.
var protocolCodes = map[string]int{
	"tcp":  1,
	"udp":  2,
	"icmp": 3,
	"gre":  4,
	"esp":  5,
}

var actionCodes = map[string]int{
	"permit":    1,
	"permitted": 1,
	"allow":     1,
	"accept":    1,
	"deny":      2,
	"denied":    2,
	"drop":      2,
	"dropped":   2,
	"discard":   2,
	"discarded": 2,
	"reject":    2,
	"rejected":  2,
	"block":     2,
	"blocked":   2,
	"built":     3,
	"teardown":  4,
	"close":     5,
	"closed":    5,
	"timeout":   6,
}

// Mapper кодирует категориальные поля и выставляет метку is_attack.
type Mapper struct {
	vendor string
}

func New(vendor string) *Mapper {
	return &Mapper{vendor: vendor}
}

// AttackLabel — приколоченное правило определения атаки по серьёзности.
// Направление шкалы у вендоров разное, правило нельзя «выводить» заново:
//   - cisco, шкала 0..7, меньше — хуже: 0 выбрасывается из выборки целиком,
//     1..4 — атака, 5..7 — не атака;
//   - forti, шкала 1..4, больше — хуже: 3..4 — атака, 1..2 — не атака.
//
// Невалидная серьёзность никогда не считается атакой.
func AttackLabel(vendor string, severity int) (isAttack int, drop bool) {
	switch vendor {
	case config.VendorCisco:
		switch {
		case severity == 0:
			return 0, true
		case severity >= 1 && severity <= 4:
			return 1, false
		case severity >= 5 && severity <= 7:
			return 0, false
		default:
			return 0, false
		}
	case config.VendorForti:
		if severity >= 3 && severity <= 4 {
			return 1, false
		}
		return 0, false
	default:
		return 0, false
	}
}

// MapChunk преобразует порцию нормализованных записей в MappedRecord.
// Строки с отфильтрованной серьёзностью (cisco: 0) в выход не попадают.
func (m *Mapper) MapChunk(recs []*models.NormalizedRecord) []models.MappedRecord {
	out := make([]models.MappedRecord, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		severity := coerceSeverity(rec.Severity)
		isAttack, drop := AttackLabel(m.vendor, severity)
		if drop {
			continue
		}
		out = append(out, models.MappedRecord{
			BatchID:         rec.BatchID,
			Datetime:        rec.Datetime,
			SyslogID:        rec.SyslogID,
			Severity:        severity,
			SourceIP:        rec.SourceIP,
			SourcePort:      coerceInt(rec.SourcePort),
			DestinationIP:   rec.DestinationIP,
			DestinationPort: coerceInt(rec.DestinationPort),
			Duration:        coerceInt64(rec.Duration),
			Bytes:           coerceInt64(rec.Bytes),
			Protocol:        Encode(protocolCodes, rec.Protocol),
			Action:          Encode(actionCodes, rec.Action),
			Description:     rec.Description,
			RawLog:          rec.RawLog,
			IsAttack:        isAttack,
		})
	}
	return out
}

// Deduplicate убирает точные дубликаты строк, сохраняя порядок первого вхождения.
func Deduplicate(rows []models.MappedRecord) []models.MappedRecord {
	return DeduplicateSeen(rows, make(map[models.MappedRecord]struct{}, len(rows)))
}

// DeduplicateSeen — то же, но множество виденных строк передаётся снаружи:
// так дубликаты гасятся сквозь несколько порций одного прогона.
func DeduplicateSeen(rows []models.MappedRecord, seen map[models.MappedRecord]struct{}) []models.MappedRecord {
	out := rows[:0:0]
	for _, r := range rows {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Encode кодирует строковое значение по справочнику.
// Отсутствующее значение → CodeMissing, незнакомое → CodeUnknown.
func Encode(table map[string]int, value string) int {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" || v == models.Sentinel {
		return CodeMissing
	}
	if code, ok := table[v]; ok {
		return code
	}
	return CodeUnknown
}

// coerceSeverity: нечисловая или пустая серьёзность → CodeMissing.
func coerceSeverity(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s == models.Sentinel {
		return CodeMissing
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return CodeMissing
	}
	return n
}

// coerceInt — числовое приведение с «ошибки в ноль».
func coerceInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func coerceInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
