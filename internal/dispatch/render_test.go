package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"FirewallAlertPump/internal/models"
)

func TestRenderMessageFull(t *testing.T) {
	text := RenderMessage(models.NotificationMessage{
		Severity:               3,
		SourceIP:               "203.0.113.5",
		AggregatedCount:        12,
		TimeWindow:             &models.TimeWindow{Start: "2024-06-11 10:01", End: "2024-06-11 10:09"},
		MatchSignature:         "來源IP：203.0.113.5, 目的IP：10.0.0.7",
		AggregatedDescriptions: []string{"Deny tcp", "Deny udp"},
		Suggestion:             "封鎖來源IP",
	})

	assert.Contains(t, text, "【高風險告警】嚴重度：高")
	assert.Contains(t, text, "來源IP：203.0.113.5")
	assert.Contains(t, text, "彙整筆數：12")
	assert.Contains(t, text, "時間範圍：2024-06-11 10:01 ～ 2024-06-11 10:09")
	assert.Contains(t, text, "匹配條件：")
	assert.Contains(t, text, "• Deny tcp")
	assert.Contains(t, text, "建議處置：封鎖來源IP")
}

func TestRenderMessageSeverityLabels(t *testing.T) {
	for sev, label := range map[int]string{1: "低", 2: "中", 3: "高", 4: "嚴重"} {
		text := RenderMessage(models.NotificationMessage{Severity: sev, AggregatedCount: 1})
		assert.Contains(t, text, "嚴重度："+label)
	}
	// неизвестный уровень печатается числом
	text := RenderMessage(models.NotificationMessage{Severity: 9, AggregatedCount: 1})
	assert.Contains(t, text, "等級 9")
}

func TestRenderMessageTruncatesSamples(t *testing.T) {
	descs := []string{"a", "b", "c", "d", "e", "f", "g"}
	text := RenderMessage(models.NotificationMessage{
		Severity: 4, AggregatedCount: 7, AggregatedDescriptions: descs,
	})
	assert.Equal(t, maxSampleDescriptions, strings.Count(text, "• "))
	assert.Contains(t, text, "（其餘 2 筆省略）")
}

func TestRenderMessageOmitsEmptySections(t *testing.T) {
	text := RenderMessage(models.NotificationMessage{Severity: 2, AggregatedCount: 1})
	assert.NotContains(t, text, "時間範圍")
	assert.NotContains(t, text, "事件樣本")
	assert.NotContains(t, text, "建議處置")
	assert.NotContains(t, text, "來源IP")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "abc", truncateRunes("abc", 3))

	out := truncateRunes(strings.Repeat("告", 100), 10)
	assert.Equal(t, 10, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "…"))
}
