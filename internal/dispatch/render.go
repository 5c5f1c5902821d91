package dispatch

import (
	"fmt"
	"strings"

	"FirewallAlertPump/internal/models"
)

// Шаблон текста уведомления фиксированный; продуктовые подписи на
// традиционном китайском — их ждут получатели в LINE/Discord.
const maxSampleDescriptions = 5

// severityLabels — шкала crlevel 1..4, больше — хуже.
var severityLabels = map[int]string{
	1: "低",
	2: "中",
	3: "高",
	4: "嚴重",
}

// RenderMessage собирает текст уведомления для всех каналов.
func RenderMessage(m models.NotificationMessage) string {
	var b strings.Builder

	label, ok := severityLabels[m.Severity]
	if !ok {
		label = fmt.Sprintf("等級 %d", m.Severity)
	}
	fmt.Fprintf(&b, "【高風險告警】嚴重度：%s\n", label)
	if m.SourceIP != "" {
		fmt.Fprintf(&b, "來源IP：%s\n", m.SourceIP)
	}
	fmt.Fprintf(&b, "彙整筆數：%d\n", m.AggregatedCount)
	if m.TimeWindow != nil {
		fmt.Fprintf(&b, "時間範圍：%s ～ %s\n", m.TimeWindow.Start, m.TimeWindow.End)
	}
	if m.MatchSignature != "" {
		fmt.Fprintf(&b, "匹配條件：%s\n", m.MatchSignature)
	}

	if len(m.AggregatedDescriptions) > 0 {
		b.WriteString("事件樣本：\n")
		n := len(m.AggregatedDescriptions)
		shown := n
		if shown > maxSampleDescriptions {
			shown = maxSampleDescriptions
		}
		for _, d := range m.AggregatedDescriptions[:shown] {
			fmt.Fprintf(&b, "• %s\n", d)
		}
		if n > shown {
			fmt.Fprintf(&b, "（其餘 %d 筆省略）\n", n-shown)
		}
	}

	if m.Suggestion != "" {
		fmt.Fprintf(&b, "建議處置：%s\n", m.Suggestion)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateRunes обрезает текст до лимита канала, не разрывая руны.
func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
