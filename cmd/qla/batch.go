package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/wizard"
)

// assessment is the file form of the setup and boundaries steps.
type assessment struct {
	Scheme     model.GradingScheme      `json:"scheme"`
	Papers     [][]wizard.QuestionInput `json:"papers"`
	Boundaries map[string]int           `json:"boundaries"`
}

func readAssessment(path string) (assessment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return assessment{}, fmt.Errorf("read assessment: %w", err)
	}
	var a assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return assessment{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if a.Scheme == "" {
		a.Scheme = model.SchemeGCSE
	}
	return a, nil
}

// markColumn names the roster column holding marks for one question.
func markColumn(paper, question int) string {
	return "p" + strconv.Itoa(paper) + "q" + strconv.Itoa(question)
}

// runWizard drives the same transitions as the web wizard, reading marks from
// the roster's p<paper>q<n> columns. Blank marks count as zero.
func runWizard(a assessment, roster io.Reader) (wizard.State, error) {
	st := wizard.New()
	st, err := wizard.Setup(st, wizard.SetupInput{Papers: a.Papers})
	if err != nil {
		return st, fmt.Errorf("setup: %w", err)
	}
	st, err = wizard.SetBoundaries(st, wizard.BoundariesInput{Scheme: a.Scheme, Minimums: a.Boundaries})
	if err != nil {
		return st, fmt.Errorf("boundaries: %w", err)
	}

	table, err := wizard.ParseRoster(roster)
	if err != nil {
		return st, fmt.Errorf("roster: %w", err)
	}
	st.Students = table.Students

	marks := wizard.ScoresInput{}
	for i, s := range table.Students {
		for _, q := range st.Questions {
			raw := table.Column(i, markColumn(q.Paper, q.QuestionNumber))
			if raw == "" {
				continue
			}
			n, err := strconv.Atoi(raw)
			if err != nil {
				return st, fmt.Errorf("%w: %s, %s: %q is not a whole number",
					model.ErrValidation, s.Name, markColumn(q.Paper, q.QuestionNumber), raw)
			}
			marks[wizard.ScoreKey{Student: i, Paper: q.Paper, QuestionNumber: q.QuestionNumber}] = n
		}
	}
	st, err = wizard.SubmitScores(st, marks)
	if err != nil {
		return st, fmt.Errorf("scores: %w", err)
	}
	return st, nil
}
