package parser

import (
	"strconv"
	"strings"

	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/models"
)

// FortiParser разбирает логи Fortinet в формате key=value:
//
//	date=2024-06-11 time=10:00:01 logid="0100032002" type="event" level="alert"
//	srcip=203.0.113.5 srcport=443 dstip=10.0.0.7 dstport=51432 proto=6 action="deny" msg="..."
//
// Значения в кавычках могут содержать пробелы и экранированные кавычки.
type FortiParser struct{}

func NewFortiParser() *FortiParser { return &FortiParser{} }

func (p *FortiParser) Vendor() string { return config.VendorForti }

// fortiLevelMap — перевод текстового уровня в шкалу 1..4, где больше — хуже.
// Числовой crlevel, если он есть в записи, имеет приоритет.
var fortiLevelMap = map[string]string{
	"emergency":   "4",
	"critical":    "4",
	"alert":       "4",
	"error":       "3",
	"high":        "3",
	"warning":     "2",
	"medium":      "2",
	"notice":      "1",
	"low":         "1",
	"information": "1",
	"info":        "1",
}

// fortiProtoNames — номер IP-протокола → имя.
var fortiProtoNames = map[string]string{
	"1":  "icmp",
	"6":  "tcp",
	"17": "udp",
}

// Parse разбирает одну строку Fortinet-лога.
// Строка без пар key=value (минимум две) считается не подходящей под грамматику.
func (p *FortiParser) Parse(line models.RawLogLine) (*models.NormalizedRecord, bool) {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil, false
	}
	kv := tokenizeKV(text)
	if len(kv) < 2 {
		return nil, false
	}

	rec := newRecord(line.Text)

	date := safe(kv, "date")
	tm := safe(kv, "time")
	if date != "" || tm != "" {
		rec.Datetime = normalizeDatetime(strings.TrimSpace(date + " " + tm))
	}

	setIfPresent(&rec.SyslogID, safe(kv, "logid"))
	setIfPresent(&rec.SourceIP, safe(kv, "srcip"))
	setIfPresent(&rec.SourcePort, safe(kv, "srcport"))
	setIfPresent(&rec.DestinationIP, safe(kv, "dstip"))
	setIfPresent(&rec.DestinationPort, safe(kv, "dstport"))
	setIfPresent(&rec.Duration, safe(kv, "duration"))
	setIfPresent(&rec.Action, strings.ToLower(safe(kv, "action")))

	if b := safe(kv, "sentbyte"); b != "" {
		sent, _ := strconv.ParseInt(b, 10, 64)
		rcvd, _ := strconv.ParseInt(safe(kv, "rcvdbyte"), 10, 64)
		rec.Bytes = strconv.FormatInt(sent+rcvd, 10)
	}

	if proto := safe(kv, "proto"); proto != "" {
		if name, ok := fortiProtoNames[proto]; ok {
			rec.Protocol = name
		} else {
			rec.Protocol = strings.ToLower(proto)
		}
	}

	// Серьёзность: числовой crlevel приоритетнее текстового level
	if cr := safe(kv, "crlevel"); cr != "" {
		rec.Severity = cr
	} else if lvl := strings.ToLower(safe(kv, "level")); lvl != "" {
		if mapped, ok := fortiLevelMap[lvl]; ok {
			rec.Severity = mapped
		} else {
			rec.Severity = lvl // мапперу достанется как «неизвестная серьёзность»
		}
	}

	if msg := safe(kv, "msg"); msg != "" {
		rec.Description = msg
	} else if ld := safe(kv, "logdesc"); ld != "" {
		rec.Description = ld
	}

	return rec, true
}

// tokenizeKV разбивает строку на пары key=value.
// Значение в кавычках читается до парной кавычки с учётом экранирования
// обратным слэшем; без кавычек — до следующего пробела.
func tokenizeKV(s string) map[string]string {
	res := make(map[string]string)
	i := 0
	n := len(s)
	for i < n {
		// пропускаем пробелы
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		start := i
		for i < n && s[i] != '=' && s[i] != ' ' {
			i++
		}
		if i >= n || s[i] != '=' {
			// токен без '=' — пропускаем
			continue
		}
		key := s[start:i]
		i++ // '='
		if key == "" {
			continue
		}
		var val string
		if i < n && (s[i] == '"' || s[i] == '\'') {
			quote := s[i]
			i++
			val, i = readQuoted(s, i, quote)
		} else {
			vstart := i
			for i < n && s[i] != ' ' {
				i++
			}
			val = s[vstart:i]
		}
		res[key] = val
	}
	return res
}

// readQuoted читает значение до закрывающей кавычки, снимая экранирование.
// Возвращает значение и позицию после кавычки. Если закрывающей кавычки
// нет, значением становится весь остаток строки.
func readQuoted(s string, i int, quote byte) (string, int) {
	var b strings.Builder
	inEscape := false
	for ; i < len(s); i++ {
		c := s[i]
		if inEscape {
			b.WriteByte(c)
			inEscape = false
			continue
		}
		switch c {
		case '\\':
			inEscape = true
		case quote:
			return b.String(), i + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), i
}
