package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// Difficulty of a daily puzzle.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// DailyPuzzle is the published challenge for one calendar date.
type DailyPuzzle struct {
	ID           int64
	Date         civil.Date
	PuzzleNumber int
	TargetName   string
	TargetEmoji  string
	ParMoves     int
	SolutionPath Path
	Difficulty   Difficulty
	Published    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Target returns the puzzle's target element.
func (p *DailyPuzzle) Target() Element {
	return Element{Name: p.TargetName, Emoji: p.TargetEmoji}
}

// PuzzleUpdate carries a partial update; nil fields are left unchanged.
type PuzzleUpdate struct {
	Date         *civil.Date
	TargetName   *string
	TargetEmoji  *string
	ParMoves     *int
	SolutionPath *Path
	Difficulty   *Difficulty
	Published    *bool
}
