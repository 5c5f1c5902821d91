package classify

import (
	"strings"

	"FirewallAlertPump/internal/models"
)

// Frame — прямоугольник числовых признаков: имена колонок плюс строки.
// Это всё, что видят модели; строковые поля в него не попадают.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// FeatureColumns — числовые колонки, которые конвейер умеет отдавать моделям.
func FeatureColumns() []string {
	return []string{
		"Severity", "SourcePort", "DestinationPort", "Duration", "Bytes",
		"Protocol", "Action", "hour", "weekday", "is_business_hours",
		"src_port_privileged", "dst_port_privileged", "src_ip_private", "dst_ip_private",
	}
}

// FrameFromRows собирает Frame из признаковых строк ETL.
func FrameFromRows(rows []models.FeatureRow) Frame {
	f := Frame{Columns: FeatureColumns(), Rows: make([][]float64, 0, len(rows))}
	for _, r := range rows {
		f.Rows = append(f.Rows, []float64{
			float64(r.Severity), float64(r.SourcePort), float64(r.DestinationPort),
			float64(r.Duration), float64(r.Bytes), float64(r.Protocol), float64(r.Action),
			float64(r.Hour), float64(r.Weekday), float64(r.IsBusinessHours),
			float64(r.SrcPortPrivileged), float64(r.DstPortPrivileged),
			float64(r.SrcIPPrivate), float64(r.DstIPPrivate),
		})
	}
	return f
}

// Reindex выравнивает фрейм под список колонок модели: колонки переставляются
// в ожидаемый порядок, отсутствующие в данных заполняются sentinel.
// Возвращает также список заполненных колонок — их нужно залогировать.
func Reindex(f Frame, names []string, sentinel float64) (Frame, []string) {
	index := make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		index[strings.ToLower(c)] = i
	}

	var filled []string
	srcCols := make([]int, len(names))
	for i, name := range names {
		if j, ok := index[strings.ToLower(name)]; ok {
			srcCols[i] = j
		} else {
			srcCols[i] = -1
			filled = append(filled, name)
		}
	}

	out := Frame{Columns: append([]string(nil), names...), Rows: make([][]float64, len(f.Rows))}
	for r, row := range f.Rows {
		dst := make([]float64, len(names))
		for i, j := range srcCols {
			if j == -1 || j >= len(row) {
				dst[i] = sentinel
			} else {
				dst[i] = row[j]
			}
		}
		out.Rows[r] = dst
	}
	return out, filled
}

// Subframe возвращает фрейм только из строк, отмеченных маской.
func Subframe(f Frame, mask []bool) Frame {
	out := Frame{Columns: f.Columns}
	for i, row := range f.Rows {
		if i < len(mask) && mask[i] {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
