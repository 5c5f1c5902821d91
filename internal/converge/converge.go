package converge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"FirewallAlertPump/internal/models"
)

// Движок конвергенции сводит сырые строки высокого риска в агрегированные
// уведомления: одна группа — одно сообщение. Чистая функция от (строки,
// конфигурация), никакого внешнего состояния — два одинаковых вызова дают
// одинаковый набор сообщений.

// Config — параметры схождения.
type Config struct {
	WindowMinutes    int      // ширина временного окна, > 0
	GroupFields      []string // подмножество {source, destination, protocol, port}
	ActionableLevels []int    // уровни серьёзности, достойные уведомления
}

// DefaultActionableLevels — три верхних уровня шкалы crlevel (1..4, больше — хуже).
func DefaultActionableLevels() []int { return []int{2, 3, 4} }

// Приколоченные продуктовые константы подписи совпадения.
// Плейсхолдер подставляется вместо пустого значения поля.
const matchPlaceholder = "未提供"

var fieldLabels = map[string]string{
	"source":      "來源IP",
	"destination": "目的IP",
	"protocol":    "協定",
	"port":        "目的埠",
}

// aliases — известные написания логических полей в разных выгрузках.
// Сопоставление с реальными именами колонок регистронезависимое.
var aliases = map[string][]string{
	"severity":    {"crlevel", "severity", "cr_level", "level", "risk_level"},
	"description": {"description", "msg", "message", "logdesc", "desc"},
	"timestamp":   {"datetime", "timestamp", "time", "date", "eventtime", "event_time"},
	"source":      {"sourceip", "source_ip", "srcip", "src_ip", "source", "src"},
	"destination": {"destinationip", "destination_ip", "dstip", "dst_ip", "destination", "dst"},
	"protocol":    {"protocol", "proto"},
	"port":        {"destinationport", "destination_port", "dstport", "dst_port", "port"},
}

// Кап на размер «нулевой» временной корзины, когда меток времени нет:
// чтобы одна группа не разрасталась бесконечно.
const nullBucketCap = 1000

// Row — одна строка входной выгрузки: имя колонки → значение.
type Row = map[string]string

// Converge группирует строки по временному окну и настроенным полям и
// отдаёт по одному NotificationMessage на группу, в порядке появления групп.
func Converge(rows []Row, cfg Config) []models.NotificationMessage {
	if len(rows) == 0 {
		return nil
	}
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 10
	}
	if len(cfg.ActionableLevels) == 0 {
		cfg.ActionableLevels = DefaultActionableLevels()
	}

	// Шаг 1: сопоставляем логические поля с фактическими колонками.
	cols := resolveColumns(rows[0])
	sevCol, okSev := cols["severity"]
	descCol, okDesc := cols["description"]
	if !okSev || !okDesc {
		// Обязательные поля не нашлись — отдаём пустой результат, не ошибку
		return nil
	}
	tsCol, hasTS := cols["timestamp"]

	actionable := make(map[int]struct{}, len(cfg.ActionableLevels))
	for _, l := range cfg.ActionableLevels {
		actionable[l] = struct{}{}
	}

	var groupCols []string // имена колонок в порядке настроенных полей
	var groupNames []string
	for _, gf := range cfg.GroupFields {
		if c, ok := cols[gf]; ok {
			groupCols = append(groupCols, c)
			groupNames = append(groupNames, gf)
		}
	}

	window := time.Duration(cfg.WindowMinutes) * time.Minute

	type group struct {
		key       string
		severity  int
		hasSev    bool
		sourceIP  string
		descSeen  map[string]struct{}
		descs     []string
		count     int
		minT      time.Time
		maxT      time.Time
		hasTime   bool
		signature string
	}
	var order []string
	groups := make(map[string]*group)

	srcCol, hasSrc := cols["source"]
	nullBucketIdx := 0

	for _, row := range rows {
		// Шаг 2: фильтр по серьёзности
		sev, ok := coerceLevel(row[sevCol])
		if !ok {
			continue
		}
		if _, ok := actionable[sev]; !ok {
			continue
		}

		// Шаг 3: временная корзина
		var bucket string
		var ts time.Time
		var tsOK bool
		if hasTS {
			ts, tsOK = parseTimestamp(row[tsCol])
			if tsOK {
				bucket = ts.Truncate(window).Format("2006-01-02 15:04")
			} else {
				bucket = "~"
			}
		} else if len(groupCols) > 0 {
			// Меток времени нет — группируем только по полям,
			// с капом по индексу против безразмерной корзины
			bucket = fmt.Sprintf("~%d", nullBucketIdx/nullBucketCap)
			nullBucketIdx++
		} else {
			// Ни времени, ни полей группировки: каждая строка сама себе группа
			bucket = fmt.Sprintf("row-%d", nullBucketIdx)
			nullBucketIdx++
		}

		// Шаг 4: ключ группы
		keyParts := []string{bucket}
		for _, gc := range groupCols {
			keyParts = append(keyParts, row[gc])
		}
		key := strings.Join(keyParts, "\x1f")

		g, ok := groups[key]
		if !ok {
			g = &group{key: key, descSeen: make(map[string]struct{})}
			g.signature = buildSignature(groupNames, groupCols, row)
			groups[key] = g
			order = append(order, key)
		}

		// Шаг 5: агрегация
		g.count++
		if !g.hasSev {
			g.severity, g.hasSev = sev, true
		}
		if g.sourceIP == "" {
			if hasSrc && !isBlank(row[srcCol]) {
				g.sourceIP = row[srcCol]
			} else {
				// Источник не разрешился — падаем на первое непустое
				// значение поля группировки
				for _, gc := range groupCols {
					if !isBlank(row[gc]) {
						g.sourceIP = row[gc]
						break
					}
				}
			}
		}
		if d := row[descCol]; !isBlank(d) {
			if _, dup := g.descSeen[d]; !dup {
				g.descSeen[d] = struct{}{}
				g.descs = append(g.descs, d)
			}
		}
		if tsOK {
			if !g.hasTime || ts.Before(g.minT) {
				g.minT = ts
			}
			if !g.hasTime || ts.After(g.maxT) {
				g.maxT = ts
			}
			g.hasTime = true
		}
	}

	// Шаг 6: по одному сообщению на группу
	out := make([]models.NotificationMessage, 0, len(order))
	for _, key := range order {
		g := groups[key]
		msg := models.NotificationMessage{
			Severity:               g.severity,
			SourceIP:               g.sourceIP,
			AggregatedCount:        g.count,
			MatchSignature:         g.signature,
			AggregatedDescriptions: g.descs,
		}
		if len(g.descs) > 0 {
			msg.Description = g.descs[0]
		}
		if g.hasTime {
			msg.TimeWindow = &models.TimeWindow{
				Start: g.minT.Format("2006-01-02 15:04"),
				End:   g.maxT.Format("2006-01-02 15:04"),
			}
		}
		out = append(out, msg)
	}
	return out
}

// resolveColumns сопоставляет логические поля с реальными колонками,
// регистр не важен. Возвращает только разрешившиеся поля.
func resolveColumns(sample Row) map[string]string {
	lower := make(map[string]string, len(sample))
	for col := range sample {
		lower[strings.ToLower(col)] = col
	}
	out := make(map[string]string)
	for logical, names := range aliases {
		for _, alias := range names {
			if col, ok := lower[alias]; ok {
				out[logical] = col
				break
			}
		}
	}
	return out
}

// buildSignature — человекочитаемая подпись: какие значения определили группу.
func buildSignature(names, cols []string, row Row) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(names))
	for i, name := range names {
		v := row[cols[i]]
		if isBlank(v) {
			v = matchPlaceholder
		}
		parts = append(parts, fieldLabels[name]+"："+v)
	}
	return strings.Join(parts, ", ")
}

func coerceLevel(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// допускаем float-представление ("3.0") из CSV-выгрузок
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false
		}
		n = int(f)
	}
	return n, true
}

func isBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, models.Sentinel) || s == "-"
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	time.RFC3339,
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, models.Sentinel) {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
