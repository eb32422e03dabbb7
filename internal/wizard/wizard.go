// Package wizard implements the four-step QLA wizard as pure transitions over
// a single session State. Every transition returns the input state unchanged
// alongside a non-nil error.
package wizard

import (
	"fmt"
	"strings"

	"github.com/pavelanni/qla/internal/model"
)

const (
	// MaxPapers is the largest number of papers in one assessment.
	MaxPapers = 3
	// MaxQuestionsPerPaper bounds the setup form.
	MaxQuestionsPerPaper = 100
)

// ErrWrongStep is returned when a transition is applied outside its step.
var ErrWrongStep = fmt.Errorf("%w: wrong wizard step", model.ErrIncompleteConfiguration)

// State is everything one session has entered so far.
type State struct {
	Step       model.Step                    `json:"step"`
	Layout     []int                         `json:"layout"`
	Questions  []model.Question              `json:"questions"`
	Students   []model.Student               `json:"students"`
	Scores     map[string][]model.ScoreEntry `json:"scores"`
	Boundaries model.Boundaries              `json:"boundaries"`
	Scheme     model.GradingScheme           `json:"scheme"`
}

// New returns the initial state: step 1, one paper with one question, GCSE.
func New() State {
	return State{
		Step:   model.StepSetup,
		Layout: []int{1},
		Scheme: model.SchemeGCSE,
	}
}

// Reset discards everything and returns to the setup step.
func Reset(State) State {
	return New()
}

// ScoredNames returns each student name that has scores, in roster order.
func (s State) ScoredNames() []string {
	seen := make(map[string]bool, len(s.Students))
	var names []string
	for _, st := range s.Students {
		if seen[st.Name] {
			continue
		}
		if _, ok := s.Scores[st.Name]; !ok {
			continue
		}
		seen[st.Name] = true
		names = append(names, st.Name)
	}
	return names
}

func requireStep(st State, step model.Step) error {
	if st.Step != step {
		return fmt.Errorf("%w: at step %d, need step %d", ErrWrongStep, st.Step, step)
	}
	return nil
}

// Layout changes the number of papers and questions per paper on the setup form.
func Layout(st State, questionsPerPaper []int) (State, error) {
	if err := requireStep(st, model.StepSetup); err != nil {
		return st, err
	}
	if err := validateLayout(questionsPerPaper); err != nil {
		return st, err
	}
	st.Layout = append([]int(nil), questionsPerPaper...)
	return st, nil
}

func validateLayout(layout []int) error {
	if len(layout) < 1 || len(layout) > MaxPapers {
		return fmt.Errorf("%w: paper count must be between 1 and %d", model.ErrValidation, MaxPapers)
	}
	for i, n := range layout {
		if n < 1 || n > MaxQuestionsPerPaper {
			return fmt.Errorf("%w: paper %d must have between 1 and %d questions",
				model.ErrValidation, i+1, MaxQuestionsPerPaper)
		}
	}
	return nil
}

// QuestionInput is one row of the setup form.
type QuestionInput struct {
	Topic    string `json:"topic"`
	MaxMarks int    `json:"max_marks"`
}

// SetupInput holds the question rows of each paper, in order.
type SetupInput struct {
	Papers [][]QuestionInput `json:"papers"`
}

// Setup records the assessment's questions and moves to the boundaries step.
// Rows with a blank topic are dropped; question numbers keep their row position.
func Setup(st State, in SetupInput) (State, error) {
	if err := requireStep(st, model.StepSetup); err != nil {
		return st, err
	}
	layout := make([]int, len(in.Papers))
	for i, rows := range in.Papers {
		layout[i] = len(rows)
	}
	if err := validateLayout(layout); err != nil {
		return st, err
	}

	var questions []model.Question
	for p, rows := range in.Papers {
		for q, row := range rows {
			if row.MaxMarks < 1 {
				return st, fmt.Errorf("%w: paper %d, Q%d: max marks must be at least 1",
					model.ErrValidation, p+1, q+1)
			}
			topic := strings.TrimSpace(row.Topic)
			if topic == "" {
				continue
			}
			questions = append(questions, model.Question{
				Paper:          p + 1,
				QuestionNumber: q + 1,
				Topic:          topic,
				MaxMarks:       row.MaxMarks,
			})
		}
	}
	if len(questions) == 0 {
		return st, model.ErrNoQuestions
	}

	st.Layout = layout
	st.Questions = questions
	st.Step = model.StepBoundaries
	return st, nil
}

// SelectScheme switches the grading scheme shown on the boundaries step.
func SelectScheme(st State, scheme model.GradingScheme) (State, error) {
	if err := requireStep(st, model.StepBoundaries); err != nil {
		return st, err
	}
	if !scheme.Valid() {
		return st, fmt.Errorf("%w: unknown grading scheme %q", model.ErrValidation, scheme)
	}
	st.Scheme = scheme
	return st, nil
}

// BoundariesInput selects a scheme and optionally overrides minimum marks by grade.
type BoundariesInput struct {
	Scheme   model.GradingScheme `json:"scheme"`
	Minimums map[string]int      `json:"minimums"`
}

// SetBoundaries builds the boundary table from the scheme defaults plus
// overrides and moves to the score-entry step. The table is not required to
// be descending.
func SetBoundaries(st State, in BoundariesInput) (State, error) {
	if err := requireStep(st, model.StepBoundaries); err != nil {
		return st, err
	}
	if !in.Scheme.Valid() {
		return st, fmt.Errorf("%w: unknown grading scheme %q", model.ErrValidation, in.Scheme)
	}

	table := in.Scheme.DefaultBoundaries()
	index := make(map[string]int, len(table))
	for i, b := range table {
		index[b.Grade] = i
	}
	for grade, minimum := range in.Minimums {
		i, ok := index[grade]
		if !ok {
			return st, fmt.Errorf("%w: grade %q is not part of %s", model.ErrValidation, grade, in.Scheme)
		}
		if minimum < 0 || minimum > 100 {
			return st, fmt.Errorf("%w: minimum for %s must be between 0 and 100", model.ErrValidation, grade)
		}
		table[i].MinimumMark = minimum
	}

	st.Scheme = in.Scheme
	st.Boundaries = table
	st.Step = model.StepScores
	return st, nil
}

// ScoreKey addresses one mark: a roster row and a question.
type ScoreKey struct {
	Student        int // index into State.Students
	Paper          int
	QuestionNumber int
}

// ScoresInput holds the marks entered on the score step. Missing keys count as zero.
type ScoresInput map[ScoreKey]int

// SubmitScores records a mark for every (student, question) pair and moves to
// the generate step. Students sharing a name keep the last row's marks.
func SubmitScores(st State, in ScoresInput) (State, error) {
	if err := requireStep(st, model.StepScores); err != nil {
		return st, err
	}
	if len(st.Students) == 0 {
		return st, fmt.Errorf("%w: upload a student list first", model.ErrIncompleteConfiguration)
	}
	if len(st.Questions) == 0 || st.Boundaries == nil {
		return st, model.ErrIncompleteConfiguration
	}

	scores := make(map[string][]model.ScoreEntry, len(st.Students))
	for i, student := range st.Students {
		entries := make([]model.ScoreEntry, 0, len(st.Questions))
		for _, q := range st.Questions {
			marks := in[ScoreKey{Student: i, Paper: q.Paper, QuestionNumber: q.QuestionNumber}]
			if marks < 0 || marks > q.MaxMarks {
				return st, fmt.Errorf("%w: %s, paper %d Q%d: marks must be between 0 and %d",
					model.ErrValidation, student.Name, q.Paper, q.QuestionNumber, q.MaxMarks)
			}
			entries = append(entries, model.ScoreEntry{
				Question:      q,
				Student:       student,
				MarksAchieved: marks,
			})
		}
		scores[student.Name] = entries
	}

	st.Scores = scores
	st.Step = model.StepGenerate
	return st, nil
}
