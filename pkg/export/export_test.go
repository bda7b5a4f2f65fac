package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() Table {
	return Table{
		Title:   "Lesson calendar",
		Headers: []string{"Start", "Teacher", "Student"},
		Rows: [][]string{
			{"2024-03-04 10:00", "Anna Petrova", "Masha, Jr."},
			{"2024-03-05 14:00", "Anna Petrova", "Ivan"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" ICS ")
	require.NoError(t, err)
	assert.Equal(t, FormatICS, f)
	assert.Equal(t, "text/calendar; charset=utf-8", f.ContentType())

	_, err = ParseFormat("docx")
	assert.Error(t, err)
}

func TestCSVExporterQuotesCells(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleTable())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Start,Teacher,Student", lines[0])
	assert.Equal(t, `2024-03-04 10:00,Anna Petrova,"Masha, Jr."`, lines[1])
}

func TestExportersRejectRaggedRows(t *testing.T) {
	table := Table{Headers: []string{"a", "b"}, Rows: [][]string{{"only one"}}}

	_, err := NewCSVExporter().Render(table)
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(table)
	assert.Error(t, err)
	_, err = NewXLSXExporter().Render(table)
	assert.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleTable())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterWritesCells(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleTable())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(xlsxSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Teacher", header)
	student, err := f.GetCellValue(xlsxSheet, "C3")
	require.NoError(t, err)
	assert.Equal(t, "Ivan", student)
}

func TestICSExporterRendersEvents(t *testing.T) {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	out, err := NewICSExporter("").Render("Anna Petrova", []Event{
		{UID: "lesson-1", Summary: "Lesson: Masha", Start: start, End: start.Add(time.Hour), Created: start, Modified: start},
		{UID: "lesson-2", Summary: "Lesson: Ivan", Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour), Created: start, Modified: start, Cancelled: true},
	})
	require.NoError(t, err)

	body := string(out)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "UID:lesson-1")
	assert.Contains(t, body, "DTSTART:20240304T100000Z")
	assert.Contains(t, body, "STATUS:CANCELLED")
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
}

func TestICSExporterRequiresUID(t *testing.T) {
	_, err := NewICSExporter("-//test//EN").Render("", []Event{{Summary: "x"}})
	assert.Error(t, err)
}
