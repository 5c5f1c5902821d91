package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/models"
)

// Правило атаки приколочено и не зависит от данных:
// cisco 0 выбрасывается, 1..4 атака, 5..7 нет; forti 3..4 атака, 1..2 нет.
func TestAttackLabelCisco(t *testing.T) {
	cases := []struct {
		severity int
		isAttack int
		drop     bool
	}{
		{0, 0, true},
		{1, 1, false},
		{2, 1, false},
		{3, 1, false},
		{4, 1, false},
		{5, 0, false},
		{6, 0, false},
		{7, 0, false},
		{8, 0, false},  // вне шкалы
		{-1, 0, false}, // невалидная серьёзность — никогда не атака
	}
	for _, c := range cases {
		isAttack, drop := AttackLabel(config.VendorCisco, c.severity)
		assert.Equal(t, c.isAttack, isAttack, "severity=%d", c.severity)
		assert.Equal(t, c.drop, drop, "severity=%d", c.severity)
	}
}

func TestAttackLabelForti(t *testing.T) {
	cases := []struct {
		severity int
		isAttack int
	}{
		{1, 0}, {2, 0}, {3, 1}, {4, 1}, {5, 0}, {0, 0}, {-1, 0},
	}
	for _, c := range cases {
		isAttack, drop := AttackLabel(config.VendorForti, c.severity)
		assert.Equal(t, c.isAttack, isAttack, "severity=%d", c.severity)
		assert.False(t, drop, "severity=%d", c.severity)
	}
}

func TestMapChunkDropsCiscoZero(t *testing.T) {
	m := New(config.VendorCisco)
	recs := []*models.NormalizedRecord{
		rec("0"), rec("2"), rec("6"), nil, rec(models.Sentinel),
	}
	out := m.MapChunk(recs)
	require.Len(t, out, 3)
	assert.Equal(t, 2, out[0].Severity)
	assert.Equal(t, 1, out[0].IsAttack)
	assert.Equal(t, 6, out[1].Severity)
	assert.Equal(t, 0, out[1].IsAttack)
	// Нечисловая серьёзность → CodeMissing, не атака
	assert.Equal(t, CodeMissing, out[2].Severity)
	assert.Equal(t, 0, out[2].IsAttack)
}

func TestEncode(t *testing.T) {
	assert.Equal(t, 1, Encode(protocolCodes, "TCP"))
	assert.Equal(t, 2, Encode(protocolCodes, " udp "))
	assert.Equal(t, CodeUnknown, Encode(protocolCodes, "sctp"))
	assert.Equal(t, CodeMissing, Encode(protocolCodes, ""))
	assert.Equal(t, CodeMissing, Encode(protocolCodes, models.Sentinel))

	assert.Equal(t, 1, Encode(actionCodes, "Permitted"))
	assert.Equal(t, 2, Encode(actionCodes, "deny"))
	assert.Equal(t, 3, Encode(actionCodes, "built"))
	assert.Equal(t, 4, Encode(actionCodes, "teardown"))
}

func TestMapChunkCoercesNumbers(t *testing.T) {
	m := New(config.VendorForti)
	r := rec("3")
	r.SourcePort = "443"
	r.DestinationPort = "junk"
	r.Duration = "150"
	r.Bytes = models.Sentinel
	out := m.MapChunk([]*models.NormalizedRecord{r})
	require.Len(t, out, 1)
	assert.Equal(t, 443, out[0].SourcePort)
	assert.Equal(t, 0, out[0].DestinationPort) // ошибки приведения — в ноль
	assert.Equal(t, int64(150), out[0].Duration)
	assert.Equal(t, int64(0), out[0].Bytes)
}

func TestDeduplicateKeepsFirstOccurrenceOrder(t *testing.T) {
	a := models.MappedRecord{SourceIP: "10.0.0.1", Severity: 2}
	b := models.MappedRecord{SourceIP: "10.0.0.2", Severity: 3}
	out := Deduplicate([]models.MappedRecord{a, b, a, b, a})
	require.Len(t, out, 2)
	assert.Equal(t, a, out[0])
	assert.Equal(t, b, out[1])
}

func TestDeduplicateSeenSpansChunks(t *testing.T) {
	a := models.MappedRecord{SourceIP: "10.0.0.1", Severity: 2}
	b := models.MappedRecord{SourceIP: "10.0.0.2", Severity: 3}
	seen := make(map[models.MappedRecord]struct{})

	out := DeduplicateSeen([]models.MappedRecord{a, b, a}, seen)
	require.Len(t, out, 2)

	// вторая порция: уже виденные строки гасятся общим множеством
	out = DeduplicateSeen([]models.MappedRecord{b, a}, seen)
	assert.Empty(t, out)
}

func rec(severity string) *models.NormalizedRecord {
	r := &models.NormalizedRecord{
		Datetime: models.Sentinel, SyslogID: models.Sentinel, Severity: severity,
		SourceIP: models.Sentinel, SourcePort: models.Sentinel,
		DestinationIP: models.Sentinel, DestinationPort: models.Sentinel,
		Duration: models.Sentinel, Bytes: models.Sentinel,
		Protocol: models.Sentinel, Action: models.Sentinel,
		Description: models.Sentinel, RawLog: "sev=" + severity,
	}
	return r
}
