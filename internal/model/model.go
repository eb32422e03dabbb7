package model

import (
	"context"
	"time"
)

// Question is one question of an assessment paper.
type Question struct {
	Paper          int    `json:"paper"`
	QuestionNumber int    `json:"question_number"`
	Topic          string `json:"topic"`
	MaxMarks       int    `json:"max_marks"`
}

// Student is one row of the uploaded roster.
type Student struct {
	Name         string `json:"name"`
	CurrentGrade string `json:"current_grade"`
	TargetGrade  string `json:"target_grade"`
}

// ScoreEntry holds the marks a student achieved on one question.
type ScoreEntry struct {
	Question
	Student
	MarksAchieved int `json:"marks_achieved"`
}

// Percent returns the entry's score as a percentage of the question's max marks.
func (e ScoreEntry) Percent() (float64, error) {
	return Percent(e.MarksAchieved, e.MaxMarks)
}

// Step identifies a wizard step.
type Step int

const (
	StepSetup      Step = 1
	StepBoundaries Step = 2
	StepScores     Step = 3
	StepGenerate   Step = 4
)

// Valid reports whether s is one of the four wizard steps.
func (s Step) Valid() bool {
	return s >= StepSetup && s <= StepGenerate
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	OutputDir     string        // parent of the per-session report directories
	LogoPath      string        // optional branding image; missing is fine
	BasePath      string        // URL prefix for sub-path deployments (e.g. "/qla")
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	SessionTTL    time.Duration // idle lifetime of a wizard session
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
