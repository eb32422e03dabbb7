package wizard

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/qla/internal/model"
)

// Required roster columns.
const (
	ColName         = "name"
	ColCurrentGrade = "current_grade"
	ColTargetGrade  = "target_grade"
)

// RosterTable is a parsed roster: the students plus every column of every row,
// so callers can read extra columns such as marks.
type RosterTable struct {
	Students []model.Student
	Header   []string
	Rows     [][]string
}

// Column returns the value of the named column in row i, or "".
func (t RosterTable) Column(i int, name string) string {
	for c, h := range t.Header {
		if h == name && c < len(t.Rows[i]) {
			return strings.TrimSpace(t.Rows[i][c])
		}
	}
	return ""
}

// ParseRoster reads a comma-separated roster with a header row. The header
// must contain name, current_grade and target_grade; other columns are kept in
// Rows but otherwise ignored. Rows with a blank name are skipped.
func ParseRoster(r io.Reader) (RosterTable, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return RosterTable{}, model.ErrMissingColumns
	}
	if err != nil {
		return RosterTable{}, fmt.Errorf("%w: read CSV header: %v", model.ErrValidation, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	cols := map[string]int{ColName: -1, ColCurrentGrade: -1, ColTargetGrade: -1}
	for i, h := range header {
		if idx, ok := cols[h]; ok && idx < 0 {
			cols[h] = i
		}
	}
	for _, idx := range cols {
		if idx < 0 {
			return RosterTable{}, model.ErrMissingColumns
		}
	}

	field := func(rec []string, col string) string {
		i := cols[col]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	table := RosterTable{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RosterTable{}, fmt.Errorf("%w: read CSV: %v", model.ErrValidation, err)
		}
		name := field(rec, ColName)
		if name == "" {
			continue
		}
		table.Students = append(table.Students, model.Student{
			Name:         name,
			CurrentGrade: field(rec, ColCurrentGrade),
			TargetGrade:  field(rec, ColTargetGrade),
		})
		table.Rows = append(table.Rows, rec)
	}
	if len(table.Students) == 0 {
		return RosterTable{}, fmt.Errorf("%w: the student list has no students", model.ErrValidation)
	}
	return table, nil
}

// skipBOM drops a leading UTF-8 byte order mark, which spreadsheet exports
// often prepend.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// UploadRoster replaces the session's students with the uploaded roster and
// clears any marks entered for the previous one. A rejected roster leaves the
// state untouched.
func UploadRoster(st State, r io.Reader) (State, error) {
	if err := requireStep(st, model.StepScores); err != nil {
		return st, err
	}
	table, err := ParseRoster(r)
	if err != nil {
		return st, err
	}
	st.Students = table.Students
	st.Scores = nil
	return st, nil
}

// RosterTemplate returns a two-row example roster.
func RosterTemplate() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.WriteAll([][]string{
		{ColName, ColCurrentGrade, ColTargetGrade},
		{"John Doe", "C", "B"},
		{"Jane Smith", "B", "A"},
	})
	return buf.Bytes()
}
