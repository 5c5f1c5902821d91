package parser

import (
	"regexp"
	"strconv"
	"strings"

	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/models"
)

// ASAParser разбирает структурированный syslog-баннер Cisco ASA:
//
//	<166>Jun 11 2024 10:00:01: %ASA-4-106023: Deny tcp src outside:203.0.113.5/443 dst inside:10.0.0.7/51432 ...
//
// Severity — одна цифра после %ASA-, SyslogID — номер сообщения после дефиса.
type ASAParser struct{}

func NewASAParser() *ASAParser { return &ASAParser{} }

func (p *ASAParser) Vendor() string { return config.VendorCisco }

var (
	asaLineRegex = regexp.MustCompile(`^(?:<\d+>)?\s*(.*?)[:\s]*%ASA-(\d)-(\d+):\s*(.*)$`)

	asaActionRegex = regexp.MustCompile(`^(Deny|Denied|Built|Teardown|Dropped|Drop|Permitted|Discard(?:ed)?|Rejected)\b`)
	asaProtoRegex  = regexp.MustCompile(`\b(tcp|udp|icmp|TCP|UDP|ICMP)\b`)

	// Адресные пары вида "outside:203.0.113.5/443" после src/from/for и dst/to
	asaSrcRegex = regexp.MustCompile(`\b(?:src|from|for)\s+(?:[\w.-]+[:/])?(\d{1,3}(?:\.\d{1,3}){3})(?:/(\d+))?`)
	asaDstRegex = regexp.MustCompile(`\b(?:dst|to)\s+(?:[\w.-]+[:/])?(\d{1,3}(?:\.\d{1,3}){3})(?:/(\d+))?`)

	asaDurationRegex = regexp.MustCompile(`\bduration\s+(\d+):(\d{2}):(\d{2})`)
	asaBytesRegex    = regexp.MustCompile(`\bbytes\s+(\d+)`)
)

// Parse разбирает одну строку ASA-лога.
// Строки без баннера %ASA (продолжения, мусор) отбрасываются.
func (p *ASAParser) Parse(line models.RawLogLine) (*models.NormalizedRecord, bool) {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil, false
	}
	m := asaLineRegex.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}

	rec := newRecord(line.Text)
	rec.Datetime = normalizeDatetime(m[1])
	rec.Severity = m[2]
	rec.SyslogID = m[3]

	msg := m[4]
	setIfPresent(&rec.Description, msg)

	if am := asaActionRegex.FindString(msg); am != "" {
		rec.Action = strings.ToLower(am)
	}
	if pm := asaProtoRegex.FindString(msg); pm != "" {
		rec.Protocol = strings.ToLower(pm)
	}
	if sm := asaSrcRegex.FindStringSubmatch(msg); sm != nil {
		rec.SourceIP = sm[1]
		if sm[2] != "" {
			rec.SourcePort = sm[2]
		}
	}
	if dm := asaDstRegex.FindStringSubmatch(msg); dm != nil {
		rec.DestinationIP = dm[1]
		if dm[2] != "" {
			rec.DestinationPort = dm[2]
		}
	}
	if durm := asaDurationRegex.FindStringSubmatch(msg); durm != nil {
		h, _ := strconv.Atoi(durm[1])
		min, _ := strconv.Atoi(durm[2])
		sec, _ := strconv.Atoi(durm[3])
		rec.Duration = strconv.Itoa(h*3600 + min*60 + sec)
	}
	if bm := asaBytesRegex.FindStringSubmatch(msg); bm != nil {
		rec.Bytes = bm[1]
	}
	return rec, true
}
