package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FirewallAlertPump/internal/models"
)

func parseForti(t *testing.T, text string) *models.NormalizedRecord {
	t.Helper()
	rec, ok := NewFortiParser().Parse(models.RawLogLine{Text: text, File: "test.log", Number: 1})
	require.True(t, ok)
	require.NotNil(t, rec)
	return rec
}

func TestFortiParseBasic(t *testing.T) {
	rec := parseForti(t, `date=2024-06-11 time=10:00:01 logid="0100032002" type="event" level="alert" srcip=203.0.113.5 srcport=443 dstip=10.0.0.7 dstport=51432 proto=6 action="deny" sentbyte=100 rcvdbyte=200 msg="deny by policy"`)

	assert.Equal(t, "2024-06-11 10:00:01", rec.Datetime)
	assert.Equal(t, "0100032002", rec.SyslogID)
	assert.Equal(t, "4", rec.Severity) // alert → 4
	assert.Equal(t, "203.0.113.5", rec.SourceIP)
	assert.Equal(t, "443", rec.SourcePort)
	assert.Equal(t, "10.0.0.7", rec.DestinationIP)
	assert.Equal(t, "51432", rec.DestinationPort)
	assert.Equal(t, "tcp", rec.Protocol) // proto=6
	assert.Equal(t, "deny", rec.Action)
	assert.Equal(t, "300", rec.Bytes) // sentbyte + rcvdbyte
	assert.Equal(t, "deny by policy", rec.Description)
}

func TestFortiCrlevelOverridesLevel(t *testing.T) {
	rec := parseForti(t, `date=2024-06-11 time=10:00:01 level="alert" crlevel=2 msg="x"`)
	assert.Equal(t, "2", rec.Severity)
}

func TestFortiLevelScale(t *testing.T) {
	cases := map[string]string{
		"emergency":   "4",
		"critical":    "4",
		"alert":       "4",
		"error":       "3",
		"warning":     "2",
		"notice":      "1",
		"information": "1",
	}
	for level, want := range cases {
		rec := parseForti(t, `logid=1 level="`+level+`"`)
		assert.Equal(t, want, rec.Severity, "level=%s", level)
	}
}

func TestFortiQuotedValueWithEscapes(t *testing.T) {
	rec := parseForti(t, `logid=1 msg="say \"hi\" to the admin" level=notice`)
	assert.Equal(t, `say "hi" to the admin`, rec.Description)
	assert.Equal(t, "1", rec.Severity)
}

func TestFortiLogdescFallback(t *testing.T) {
	rec := parseForti(t, `logid=1 logdesc="Admin login failed" level=error`)
	assert.Equal(t, "Admin login failed", rec.Description)
}

func TestFortiUnknownProtoKeptAsIs(t *testing.T) {
	rec := parseForti(t, `logid=1 proto=47 level=notice`)
	assert.Equal(t, "47", rec.Protocol)
}

func TestFortiRejectsNonKVLines(t *testing.T) {
	p := NewFortiParser()
	for _, text := range []string{"", "plain text line", "one=pair"} {
		_, ok := p.Parse(models.RawLogLine{Text: text})
		assert.False(t, ok, "строка не должна парситься: %q", text)
	}
}
