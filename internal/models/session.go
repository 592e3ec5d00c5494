package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// Outcome of a player's attempt at a puzzle.
type Outcome string

const (
	OutcomeUnfinished  Outcome = "unfinished"
	OutcomeWon         Outcome = "won"
	OutcomeTimeExpired Outcome = "time_expired"
)

// Terminal reports whether the outcome ends the attempt.
func (o Outcome) Terminal() bool {
	return o == OutcomeWon || o == OutcomeTimeExpired
}

// Mode distinguishes today's timed puzzle from untimed archive play.
type Mode string

const (
	ModeDaily   Mode = "daily"
	ModeArchive Mode = "archive"
)

// PlayerPuzzleState is a player's progress on one puzzle date.
type PlayerPuzzleState struct {
	UserID           string
	Date             civil.Date
	Mode             Mode
	Bank             []Element
	Moves            int
	HintsUsed        int
	StartedAt        time.Time
	CompletedAt      *time.Time
	FirstAttempt     bool
	Outcome          Outcome
	TimeLimitSeconds int
	Attempts         int
	Version          int64
	UpdatedAt        time.Time
}

// Deadline returns when a timed session expires. ok is false for untimed play.
func (s *PlayerPuzzleState) Deadline() (deadline time.Time, ok bool) {
	if s.TimeLimitSeconds <= 0 {
		return time.Time{}, false
	}
	return s.StartedAt.Add(time.Duration(s.TimeLimitSeconds) * time.Second), true
}

// Expired reports whether a timed, unfinished session has run out at now.
func (s *PlayerPuzzleState) Expired(now time.Time) bool {
	if s.Outcome.Terminal() {
		return false
	}
	deadline, ok := s.Deadline()
	return ok && now.After(deadline)
}

// StatsEvent is emitted once per (user, date) for the first finished attempt.
type StatsEvent struct {
	ID              int64
	UserID          string
	Date            civil.Date
	PuzzleNumber    int
	Outcome         Outcome
	Moves           int
	HintsUsed       int
	DurationSeconds int
	CreatedAt       time.Time
}
