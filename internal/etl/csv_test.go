package etl

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FirewallAlertPump/internal/models"
)

func TestNextBatchIDMissingFile(t *testing.T) {
	assert.Equal(t, 1, NextBatchID(t.TempDir()))
}

func TestNextBatchIDMaxPlusOne(t *testing.T) {
	dir := t.TempDir()
	rows := []models.ClassifiedRow{
		classifiedRow(3), classifiedRow(7), classifiedRow(2),
	}
	_, err := AppendResults(dir, rows)
	require.NoError(t, err)
	assert.Equal(t, 8, NextBatchID(dir))
}

func TestNextBatchIDIgnoresBadRows(t *testing.T) {
	dir := t.TempDir()
	content := "batch_id,Severity\n5,2\nnot_a_number,3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ResultsFileName), []byte(content), 0o644))
	assert.Equal(t, 6, NextBatchID(dir))
}

func TestNextBatchIDHeaderWithoutColumn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ResultsFileName), []byte("a,b\n1,2\n"), 0o644))
	assert.Equal(t, 1, NextBatchID(dir))
}

func TestAppendResultsCreatesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path, err := AppendResults(dir, []models.ClassifiedRow{classifiedRow(1)})
	require.NoError(t, err)
	_, err = AppendResults(dir, []models.ClassifiedRow{classifiedRow(2)})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	// заголовок + две строки, без повторного заголовка
	require.Len(t, records, 3)
	assert.Equal(t, ResultsHeader(), records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "2", records[2][0])
}

func TestResultsHeaderExtendsStep2(t *testing.T) {
	h := ResultsHeader()
	assert.Equal(t, "crlevel", h[len(h)-1])
	assert.Equal(t, Step2Header(), h[:len(h)-1])
	assert.Equal(t, "batch_id", h[0])
}

func classifiedRow(batchID int) models.ClassifiedRow {
	return models.ClassifiedRow{
		FeatureRow: models.FeatureRow{
			MappedRecord: models.MappedRecord{
				BatchID: batchID, Datetime: "2024-06-11 10:00:01",
				SyslogID: "106023", Severity: 2,
				SourceIP: "203.0.113.5", DestinationIP: "10.0.0.7",
				Description: "Deny tcp", RawLog: "raw", IsAttack: 1,
			},
			SeverityCategory: "critical", SyslogIDCategory: "access",
		},
		CRLevel: 3,
	}
}
