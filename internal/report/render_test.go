package report

import (
	"bytes"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/pavelanni/qla/internal/model"
)

var textOp = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)Tj`)

// renderText renders rep without stream compression and returns the text of
// every cell in drawing order.
func renderText(t *testing.T, rep StudentReport, boundaries model.Boundaries) []string {
	t.Helper()
	r := testRenderer()
	r.compress = false
	var buf bytes.Buffer
	if err := r.Render(&buf, rep, boundaries); err != nil {
		t.Fatalf("Render: %v", err)
	}
	unescape := strings.NewReplacer(`\\`, `\`, `\(`, `(`, `\)`, `)`)
	var texts []string
	for _, m := range textOp.FindAllSubmatch(buf.Bytes(), -1) {
		texts = append(texts, unescape.Replace(string(m[1])))
	}
	return texts
}

// expectSequence checks that want appears in texts in order, starting at or
// after from, and returns the index just past the last match.
func expectSequence(t *testing.T, texts []string, from int, want ...string) int {
	t.Helper()
	i := from
	for _, w := range want {
		j := slices.Index(texts[i:], w)
		if j < 0 {
			t.Fatalf("%q not found after %v in %q", w, want, texts[from:])
		}
		i += j + 1
	}
	return i
}

func TestRenderContent(t *testing.T) {
	jane := model.Student{Name: "Jane Smith", CurrentGrade: "B", TargetGrade: "A"}
	rep, err := Build("Jane Smith", []model.ScoreEntry{
		{Question: model.Question{Paper: 1, QuestionNumber: 1, Topic: "Algebra", MaxMarks: 10}, Student: jane, MarksAchieved: 8},
		{Question: model.Question{Paper: 2, QuestionNumber: 1, Topic: "Geometry (proof)", MaxMarks: 10}, Student: jane, MarksAchieved: 4},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	boundaries := model.Boundaries{{Grade: "9", MinimumMark: 95}, {Grade: "4", MinimumMark: 61}, {Grade: "U", MinimumMark: 0}}
	texts := renderText(t, rep, boundaries)

	i := expectSequence(t, texts, 0,
		"QLA Report for Jane Smith",
		"Current Grade: B | Target Grade: A",
		"Topic", "Paper", "Score", "Max", "%", "RAG",
	)
	i = expectSequence(t, texts, i, "Algebra", "1", "8", "10", "80.0%", "Green")
	i = expectSequence(t, texts, i, "Geometry (proof)", "2", "4", "10", "40.0%", "Red")
	i = expectSequence(t, texts, i, "TOTAL", "12", "20", "60.0%")
	i = expectSequence(t, texts, i, "Grade Boundaries", "9:", "95%", "4:", "61%", "U:", "0%")
	expectSequence(t, texts, i, Prompts...)
}

func TestRenderSingleQuestionTotals(t *testing.T) {
	jane := model.Student{Name: "Jane Smith", CurrentGrade: "B", TargetGrade: "A"}
	rep, err := Build("Jane Smith", []model.ScoreEntry{
		{Question: model.Question{Paper: 1, QuestionNumber: 1, Topic: "Algebra", MaxMarks: 10}, Student: jane, MarksAchieved: 8},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	texts := renderText(t, rep, model.SchemeGCSE.DefaultBoundaries())

	i := expectSequence(t, texts, 0, "Algebra", "1", "8", "10", "80.0%", "Green")
	expectSequence(t, texts, i, "TOTAL", "8", "10", "80.0%")

	var printed []string
	for _, b := range model.SchemeGCSE.DefaultBoundaries() {
		printed = append(printed, b.Grade+":")
	}
	expectSequence(t, texts, i, printed...)
}
