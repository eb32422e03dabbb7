// Package report turns finalized wizard state into per-student QLA PDFs and a
// combined archive.
package report

import (
	"fmt"
	"strings"

	"github.com/pavelanni/qla/internal/model"
)

// Row is one table line of a student's report.
type Row struct {
	Topic    string
	Paper    int
	Score    int
	Max      int
	Percent  float64
	Category model.Category
}

// StudentReport is the content of one student's report, independent of layout.
type StudentReport struct {
	Name           string
	CurrentGrade   string
	TargetGrade    string
	Rows           []Row
	TotalScore     int
	TotalMax       int
	OverallPercent float64
}

// Build computes the report rows and totals for one student. Totals come from
// the raw integer sums, not from the per-row percentages.
func Build(name string, entries []model.ScoreEntry) (StudentReport, error) {
	if len(entries) == 0 {
		return StudentReport{}, fmt.Errorf("%w: no scores for %s", model.ErrIncompleteConfiguration, name)
	}
	rep := StudentReport{
		Name:         name,
		CurrentGrade: entries[0].CurrentGrade,
		TargetGrade:  entries[0].TargetGrade,
		Rows:         make([]Row, 0, len(entries)),
	}
	for _, e := range entries {
		pct, err := e.Percent()
		if err != nil {
			return StudentReport{}, fmt.Errorf("%s, paper %d Q%d: %w", name, e.Paper, e.QuestionNumber, err)
		}
		rep.Rows = append(rep.Rows, Row{
			Topic:    e.Topic,
			Paper:    e.Paper,
			Score:    e.MarksAchieved,
			Max:      e.MaxMarks,
			Percent:  pct,
			Category: model.Classify(pct),
		})
		rep.TotalScore += e.MarksAchieved
		rep.TotalMax += e.MaxMarks
	}
	overall, err := model.Percent(rep.TotalScore, rep.TotalMax)
	if err != nil {
		return StudentReport{}, fmt.Errorf("%s totals: %w", name, err)
	}
	rep.OverallPercent = overall
	return rep, nil
}

// FileName returns the report file name for a student: spaces become
// underscores and path separators are neutralised.
func FileName(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "_", `\`, "_")
	return r.Replace(name) + "_QLA_Report" + Ext
}

// FormatPercent renders a percentage the way the report shows it.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}
