package store

import (
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/wizard"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func progressedState(t *testing.T) wizard.State {
	t.Helper()
	st, err := wizard.Setup(wizard.New(), wizard.SetupInput{Papers: [][]wizard.QuestionInput{
		{{Topic: "Algebra", MaxMarks: 10}},
	}})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	st, err = wizard.SetBoundaries(st, wizard.BoundariesInput{Scheme: model.SchemeALevel})
	if err != nil {
		t.Fatalf("SetBoundaries: %v", err)
	}
	st, err = wizard.UploadRoster(st, strings.NewReader("name,current_grade,target_grade\nJane Smith,B,A\n"))
	if err != nil {
		t.Fatalf("UploadRoster: %v", err)
	}
	st, err = wizard.SubmitScores(st, wizard.ScoresInput{{Student: 0, Paper: 1, QuestionNumber: 1}: 8})
	if err != nil {
		t.Fatalf("SubmitScores: %v", err)
	}
	return st
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateSession(wizard.New(), time.Hour)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id == "" {
		t.Fatal("empty session ID")
	}

	got, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if !reflect.DeepEqual(*got, wizard.New()) {
		t.Errorf("fresh state = %+v", *got)
	}
	if got.Scores != nil || got.Boundaries != nil {
		t.Error("absent scores/boundaries must stay nil after a round trip")
	}

	st := progressedState(t)
	if err := s.SaveSession(id, st, time.Hour); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err = s.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !reflect.DeepEqual(*got, st) {
		t.Errorf("saved state = %+v, want %+v", *got, st)
	}
}

func TestSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown session")
	}
	if err := s.SaveSession("nope", wizard.New(), time.Hour); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("SaveSession unknown: err = %v, want ErrNoRows", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := newTestStore(t)
	expired, err := s.CreateSession(wizard.New(), -time.Minute)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	live, err := s.CreateSession(wizard.New(), time.Hour)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	count, err := s.SessionCount()
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if count != 1 {
		t.Errorf("SessionCount = %d, want 1", count)
	}

	removed, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if !reflect.DeepEqual(removed, []string{expired}) {
		t.Errorf("removed %v, want [%s]", removed, expired)
	}
	if got, _ := s.GetSession(expired); got != nil {
		t.Error("expired session still readable")
	}
	if got, _ := s.GetSession(live); got == nil {
		t.Error("live session removed")
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateSession(wizard.New(), time.Hour)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.DeleteSession(id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if got, _ := s.GetSession(id); got != nil {
		t.Error("deleted session still readable")
	}
}

func TestValidSessionID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateSession(wizard.New(), time.Hour)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	tests := []struct {
		id   string
		want bool
	}{
		{id, true},
		{"", false},
		{"../../etc", false},
		{"{" + id + "}", false},
		{"urn:uuid:" + id, false},
	}
	for _, tt := range tests {
		if got := ValidSessionID(tt.id); got != tt.want {
			t.Errorf("ValidSessionID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
