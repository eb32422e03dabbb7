package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/wizard"
)

func testAssessment() assessment {
	return assessment{
		Scheme: model.SchemeALevel,
		Papers: [][]wizard.QuestionInput{
			{{Topic: "Algebra", MaxMarks: 10}, {Topic: "", MaxMarks: 4}},
			{{Topic: "Geometry", MaxMarks: 5}},
		},
		Boundaries: map[string]int{"A*": 92},
	}
}

func TestRunWizard(t *testing.T) {
	roster := "name,current_grade,target_grade,p1q1,p2q1\nJane Smith,B,A,8,\nJohn Doe,C,B,2,5\n"
	st, err := runWizard(testAssessment(), strings.NewReader(roster))
	if err != nil {
		t.Fatalf("runWizard: %v", err)
	}
	if st.Step != model.StepGenerate {
		t.Errorf("step = %d, want %d", st.Step, model.StepGenerate)
	}
	if st.Boundaries[0].Grade != "A*" || st.Boundaries[0].MinimumMark != 92 {
		t.Errorf("first boundary = %+v", st.Boundaries[0])
	}

	tests := []struct {
		name  string
		marks []int
	}{
		{"Jane Smith", []int{8, 0}},
		{"John Doe", []int{2, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := st.Scores[tt.name]
			if len(entries) != len(tt.marks) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.marks))
			}
			for i, want := range tt.marks {
				if entries[i].MarksAchieved != want {
					t.Errorf("entry %d marks = %d, want %d", i, entries[i].MarksAchieved, want)
				}
			}
		})
	}
}

func TestRunWizardErrors(t *testing.T) {
	tests := []struct {
		name   string
		roster string
		want   error
	}{
		{"missing columns", "name,current_grade\nAl,C\n", model.ErrMissingColumns},
		{"not a number", "name,current_grade,target_grade,p1q1\nAl,C,B,lots\n", model.ErrValidation},
		{"above max", "name,current_grade,target_grade,p1q1\nAl,C,B,11\n", model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWizard(testAssessment(), strings.NewReader(tt.roster))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadAssessment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assessment.json")
	data := `{"papers": [[{"topic": "Algebra", "max_marks": 10}]], "boundaries": {"9": 95}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := readAssessment(path)
	if err != nil {
		t.Fatalf("readAssessment: %v", err)
	}
	if a.Scheme != model.SchemeGCSE {
		t.Errorf("scheme = %q, want GCSE default", a.Scheme)
	}
	if a.Papers[0][0].MaxMarks != 10 || a.Boundaries["9"] != 95 {
		t.Errorf("assessment = %+v", a)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	tests := map[string]string{"": "", "/": "", "qla": "/qla", "/qla/": "/qla"}
	for in, want := range tests {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
