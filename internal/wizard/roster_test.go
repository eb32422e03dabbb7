package wizard

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pavelanni/qla/internal/model"
)

func TestParseRoster(t *testing.T) {
	csv := "\ufeffname, current_grade ,target_grade,form\nJohn Doe,C,B,10X\n\n,A,A,10Y\nJane Smith,B,A\n"
	table, err := ParseRoster(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}
	want := []model.Student{
		{Name: "John Doe", CurrentGrade: "C", TargetGrade: "B"},
		{Name: "Jane Smith", CurrentGrade: "B", TargetGrade: "A"},
	}
	if !reflect.DeepEqual(table.Students, want) {
		t.Errorf("students = %+v, want %+v", table.Students, want)
	}
	if got := table.Column(0, "form"); got != "10X" {
		t.Errorf("extra column = %q, want 10X", got)
	}
	if got := table.Column(1, "form"); got != "" {
		t.Errorf("short row extra column = %q, want empty", got)
	}
}

func TestParseRosterQuotedHeaderAfterBOM(t *testing.T) {
	csv := "\ufeff\"name\",\"current_grade\",\"target_grade\"\r\n\"Doe, John\",C,B\r\n"
	table, err := ParseRoster(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}
	want := []model.Student{{Name: "Doe, John", CurrentGrade: "C", TargetGrade: "B"}}
	if !reflect.DeepEqual(table.Students, want) {
		t.Errorf("students = %+v, want %+v", table.Students, want)
	}
}

func TestParseRosterRejects(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty file", ""},
		{"missing name", "student,current_grade,target_grade\nJohn,C,B\n"},
		{"missing current_grade", "name,target_grade\nJohn,B\n"},
		{"missing target_grade", "name,current_grade\nJohn,C\n"},
		{"no students", "name,current_grade,target_grade\n"},
		{"bad quoting", "name,current_grade,target_grade\n\"John,C,B\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoster(strings.NewReader(tt.csv))
			if !errors.Is(err, model.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
	if _, err := ParseRoster(strings.NewReader("name,target_grade\nJohn,B\n")); !errors.Is(err, model.ErrMissingColumns) {
		t.Errorf("missing column err = %v, want ErrMissingColumns", err)
	}
}

func TestUploadRosterKeepsStateOnError(t *testing.T) {
	before := rosterState(t)
	got, err := UploadRoster(before, strings.NewReader("name,current_grade\nAl,C\n"))
	if !errors.Is(err, model.ErrMissingColumns) {
		t.Fatalf("err = %v", err)
	}
	if !reflect.DeepEqual(got, before) {
		t.Errorf("students changed on rejected upload: %+v", got.Students)
	}
}

func TestUploadRosterClearsScores(t *testing.T) {
	st := rosterState(t)
	st.Scores = map[string][]model.ScoreEntry{"John Doe": nil}
	st, err := UploadRoster(st, strings.NewReader("name,current_grade,target_grade\nAl,C,B\n"))
	if err != nil {
		t.Fatalf("UploadRoster: %v", err)
	}
	if st.Scores != nil {
		t.Error("scores should be cleared by a new roster")
	}
	if len(st.Students) != 1 || st.Students[0].Name != "Al" {
		t.Errorf("students = %+v", st.Students)
	}
}

func TestRosterTemplate(t *testing.T) {
	got := string(RosterTemplate())
	want := "name,current_grade,target_grade\nJohn Doe,C,B\nJane Smith,B,A\n"
	if got != want {
		t.Errorf("template = %q, want %q", got, want)
	}
	table, err := ParseRoster(strings.NewReader(got))
	if err != nil || len(table.Students) != 2 {
		t.Errorf("template does not parse as a roster: %v", err)
	}
}
