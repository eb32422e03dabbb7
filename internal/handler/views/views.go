// Package views renders the wizard pages. The *_templ.go files are
// generated from the .templ sources by `templ generate`.
package views

import (
	"context"
	"fmt"

	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/wizard"
)

// SetupForm is the draft shown on the setup step: one row slice per paper.
type SetupForm struct {
	Rows  [][]wizard.QuestionInput
	Error string
}

// BoundariesForm is the table shown on the boundaries step.
type BoundariesForm struct {
	Scheme     model.GradingScheme
	Boundaries model.Boundaries
	Error      string
}

// ScoresForm is the roster upload and mark grid of the score step.
type ScoresForm struct {
	Students  []model.Student
	Questions []model.Question
	Marks     wizard.ScoresInput
	Error     string
}

// GenerateView lists the reports written by the last run.
type GenerateView struct {
	Files    []string
	Branding bool
}

// ScoreField names the input holding one mark.
func ScoreField(student, paper, question int) string {
	return fmt.Sprintf("s_%d_%d_%d", student, paper, question)
}

var stepTitles = map[model.Step]string{
	model.StepSetup:      "StepSetupTitle",
	model.StepBoundaries: "StepBoundariesTitle",
	model.StepScores:     "StepScoresTitle",
	model.StepGenerate:   "StepGenerateTitle",
}

func basePath(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}
