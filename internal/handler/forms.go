package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavelanni/qla/internal/handler/views"
	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/wizard"
)

// formInt reads an integer form field; a blank field yields def.
func formInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a whole number", model.ErrValidation, key)
	}
	return n, nil
}

// parseSetupForm reads the paper and question counts plus every visible row.
func parseSetupForm(r *http.Request) (views.SetupForm, error) {
	papers, err := formInt(r, "num_papers", 1)
	if err != nil {
		return views.SetupForm{}, err
	}
	if papers < 1 || papers > wizard.MaxPapers {
		return views.SetupForm{}, fmt.Errorf("%w: paper count must be between 1 and %d", model.ErrValidation, wizard.MaxPapers)
	}

	form := views.SetupForm{Rows: make([][]wizard.QuestionInput, papers)}
	for p := 1; p <= papers; p++ {
		n, err := formInt(r, fmt.Sprintf("questions_%d", p), 1)
		if err != nil {
			return views.SetupForm{}, err
		}
		if n < 1 || n > wizard.MaxQuestionsPerPaper {
			return views.SetupForm{}, fmt.Errorf("%w: paper %d must have between 1 and %d questions",
				model.ErrValidation, p, wizard.MaxQuestionsPerPaper)
		}
		rows := make([]wizard.QuestionInput, n)
		for q := 1; q <= n; q++ {
			marks, err := formInt(r, fmt.Sprintf("marks_%d_%d", p, q), 1)
			if err != nil {
				return views.SetupForm{}, err
			}
			rows[q-1] = wizard.QuestionInput{
				Topic:    r.FormValue(fmt.Sprintf("topic_%d_%d", p, q)),
				MaxMarks: marks,
			}
		}
		form.Rows[p-1] = rows
	}
	return form, nil
}

func layoutOf(rows [][]wizard.QuestionInput) []int {
	layout := make([]int, len(rows))
	for i, r := range rows {
		layout[i] = len(r)
	}
	return layout
}

func setupInput(form views.SetupForm) wizard.SetupInput {
	return wizard.SetupInput{Papers: form.Rows}
}

// setupFormFromState builds blank rows for the saved layout.
func setupFormFromState(st wizard.State) views.SetupForm {
	layout := st.Layout
	if len(layout) == 0 {
		layout = []int{1}
	}
	form := views.SetupForm{Rows: make([][]wizard.QuestionInput, len(layout))}
	for i, n := range layout {
		rows := make([]wizard.QuestionInput, n)
		for j := range rows {
			rows[j].MaxMarks = 1
		}
		form.Rows[i] = rows
	}
	for _, q := range st.Questions {
		if q.Paper-1 < len(form.Rows) && q.QuestionNumber-1 < len(form.Rows[q.Paper-1]) {
			form.Rows[q.Paper-1][q.QuestionNumber-1] = wizard.QuestionInput{Topic: q.Topic, MaxMarks: q.MaxMarks}
		}
	}
	return form
}

// parseBoundariesForm reads the scheme and the minimum mark of each of its grades.
func parseBoundariesForm(r *http.Request) (wizard.BoundariesInput, error) {
	scheme := model.GradingScheme(r.FormValue("scheme"))
	in := wizard.BoundariesInput{Scheme: scheme, Minimums: map[string]int{}}
	if !scheme.Valid() {
		return in, fmt.Errorf("%w: unknown grading scheme %q", model.ErrValidation, scheme)
	}
	for _, b := range scheme.DefaultBoundaries() {
		v, err := formInt(r, "gb_"+b.Grade, b.MinimumMark)
		if err != nil {
			return in, err
		}
		in.Minimums[b.Grade] = v
	}
	return in, nil
}

// parseScoresForm reads a mark for every (student, question) pair in the session.
func parseScoresForm(r *http.Request, st wizard.State) (wizard.ScoresInput, error) {
	marks := wizard.ScoresInput{}
	for i := range st.Students {
		for _, q := range st.Questions {
			v, err := formInt(r, views.ScoreField(i, q.Paper, q.QuestionNumber), 0)
			if err != nil {
				return marks, err
			}
			marks[wizard.ScoreKey{Student: i, Paper: q.Paper, QuestionNumber: q.QuestionNumber}] = v
		}
	}
	return marks, nil
}

func scoresFormFromState(st wizard.State) views.ScoresForm {
	form := views.ScoresForm{Students: st.Students, Questions: st.Questions, Marks: wizard.ScoresInput{}}
	for i, s := range st.Students {
		for _, e := range st.Scores[s.Name] {
			form.Marks[wizard.ScoreKey{Student: i, Paper: e.Paper, QuestionNumber: e.QuestionNumber}] = e.MarksAchieved
		}
	}
	return form
}
