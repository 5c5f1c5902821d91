package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"FirewallAlertPump/internal/models"
)

// Имена выходных файлов в каталоге результатов.
const (
	Step1FileName        = "processed_logs.csv"
	Step2FileName        = "preprocessed_data.csv"
	UniqueValuesFileName = "log_unique_values.json"
	ResultsFileName      = "all_results.csv"
)

// Step1Header — схема processed_logs.csv (после парсинга).
func Step1Header() []string {
	return []string{
		"batch_id", "Datetime", "SyslogID", "Severity", "SourceIP", "SourcePort",
		"DestinationIP", "DestinationPort", "Duration", "Bytes", "Protocol",
		"Action", "Description", "raw_log",
	}
}

// Step2Header — схема preprocessed_data.csv (после маппинга и признаков).
func Step2Header() []string {
	return append(Step1Header(),
		"is_attack", "hour", "weekday", "is_business_hours",
		"src_port_privileged", "dst_port_privileged",
		"src_ip_private", "dst_ip_private",
		"severity_category", "syslogid_category",
	)
}

// ResultsHeader — схема накопительного all_results.csv.
func ResultsHeader() []string {
	return append(Step2Header(), "crlevel")
}

func step1Row(r *models.NormalizedRecord) []string {
	return []string{
		strconv.Itoa(r.BatchID), r.Datetime, r.SyslogID, r.Severity,
		r.SourceIP, r.SourcePort, r.DestinationIP, r.DestinationPort,
		r.Duration, r.Bytes, r.Protocol, r.Action, r.Description, r.RawLog,
	}
}

func step2Row(r models.FeatureRow) []string {
	return []string{
		strconv.Itoa(r.BatchID), r.Datetime, r.SyslogID, strconv.Itoa(r.Severity),
		r.SourceIP, strconv.Itoa(r.SourcePort), r.DestinationIP, strconv.Itoa(r.DestinationPort),
		strconv.FormatInt(r.Duration, 10), strconv.FormatInt(r.Bytes, 10),
		strconv.Itoa(r.Protocol), strconv.Itoa(r.Action), r.Description, r.RawLog,
		strconv.Itoa(r.IsAttack), strconv.Itoa(r.Hour), strconv.Itoa(r.Weekday),
		strconv.Itoa(r.IsBusinessHours), strconv.Itoa(r.SrcPortPrivileged),
		strconv.Itoa(r.DstPortPrivileged), strconv.Itoa(r.SrcIPPrivate),
		strconv.Itoa(r.DstIPPrivate), r.SeverityCategory, r.SyslogIDCategory,
	}
}

func resultRow(r models.ClassifiedRow) []string {
	return append(step2Row(r.FeatureRow), strconv.Itoa(r.CRLevel))
}

// stagedWriter — потоковая запись CSV с заголовком при открытии.
type stagedWriter struct {
	f *os.File
	w *csv.Writer
}

func newStagedWriter(path string, header []string) (*stagedWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return &stagedWriter{f: f, w: w}, nil
}

func (s *stagedWriter) writeRow(row []string) error {
	return s.w.Write(row)
}

func (s *stagedWriter) close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// NextBatchID вычисляет batch_id нового прогона: максимум колонки batch_id
// в накопительном all_results.csv плюс один. Отсутствующий, пустой или
// нечитаемый файл даёт 1 — ошибки чтения сюда не поднимаются.
func NextBatchID(outputDir string) int {
	path := filepath.Join(outputDir, ResultsFileName)
	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return 1
	}
	col := -1
	for i, name := range header {
		if name == "batch_id" {
			col = i
			break
		}
	}
	if col == -1 {
		return 1
	}
	maxID := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Битая строка — пропускаем, а не роняем весь расчёт
			continue
		}
		if col >= len(row) {
			continue
		}
		if id, err := strconv.Atoi(row[col]); err == nil && id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// AppendResults дописывает классифицированные строки в all_results.csv,
// создавая файл с заголовком при первом обращении.
func AppendResults(outputDir string, rows []models.ClassifiedRow) (string, error) {
	path := filepath.Join(outputDir, ResultsFileName)
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write(ResultsHeader()); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
	}
	for _, r := range rows {
		if err := w.Write(resultRow(r)); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush %s: %w", path, err)
	}
	return path, nil
}
