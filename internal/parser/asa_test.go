package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FirewallAlertPump/internal/models"
)

func parseASA(t *testing.T, text string) *models.NormalizedRecord {
	t.Helper()
	rec, ok := NewASAParser().Parse(models.RawLogLine{Text: text, File: "test.log", Number: 1})
	require.True(t, ok)
	require.NotNil(t, rec)
	return rec
}

func TestASAParseDeny(t *testing.T) {
	rec := parseASA(t, `<166>Jun 11 2024 10:00:01: %ASA-4-106023: Deny tcp src outside:203.0.113.5/443 dst inside:10.0.0.7/51432 by access-group "OUTSIDE"`)

	assert.Equal(t, "2024-06-11 10:00:01", rec.Datetime)
	assert.Equal(t, "4", rec.Severity)
	assert.Equal(t, "106023", rec.SyslogID)
	assert.Equal(t, "deny", rec.Action)
	assert.Equal(t, "tcp", rec.Protocol)
	assert.Equal(t, "203.0.113.5", rec.SourceIP)
	assert.Equal(t, "443", rec.SourcePort)
	assert.Equal(t, "10.0.0.7", rec.DestinationIP)
	assert.Equal(t, "51432", rec.DestinationPort)
}

func TestASAParseTeardown(t *testing.T) {
	rec := parseASA(t, `Jun 11 2024 10:05:00: %ASA-6-302014: Teardown TCP connection 12345 for outside:203.0.113.5/443 to inside:10.0.0.7/51432 duration 0:02:30 bytes 4312 TCP FINs`)

	assert.Equal(t, "teardown", rec.Action)
	assert.Equal(t, "tcp", rec.Protocol)
	// 0:02:30 → 150 секунд
	assert.Equal(t, "150", rec.Duration)
	assert.Equal(t, "4312", rec.Bytes)
	assert.Equal(t, "203.0.113.5", rec.SourceIP)
	assert.Equal(t, "10.0.0.7", rec.DestinationIP)
}

func TestASAParseMissingFieldsStaySentinel(t *testing.T) {
	rec := parseASA(t, `%ASA-5-111010: User 'admin' executed the command`)

	assert.Equal(t, "5", rec.Severity)
	assert.Equal(t, "111010", rec.SyslogID)
	assert.Equal(t, models.Sentinel, rec.SourceIP)
	assert.Equal(t, models.Sentinel, rec.Protocol)
	assert.Equal(t, models.Sentinel, rec.Action)
	assert.Equal(t, models.Sentinel, rec.Datetime)
}

func TestASAParseRejectsGarbage(t *testing.T) {
	p := NewASAParser()
	for _, text := range []string{
		"",
		"   ",
		"just some text without a banner",
		"continuation of a previous message: bytes 100",
	} {
		_, ok := p.Parse(models.RawLogLine{Text: text})
		assert.False(t, ok, "строка не должна парситься: %q", text)
	}
}

func TestASAParseKeepsRawLog(t *testing.T) {
	line := `%ASA-2-106001: Inbound TCP connection denied from 198.51.100.9/1234 to 10.0.0.7/80 flags SYN`
	rec := parseASA(t, line)
	assert.Equal(t, line, rec.RawLog)
	assert.Equal(t, "198.51.100.9", rec.SourceIP)
	assert.Equal(t, "10.0.0.7", rec.DestinationIP)
}
