package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"dailyalchemy/internal/database"
	"dailyalchemy/internal/models"
)

// ErrStaleState is returned when a state row changed since it was read.
var ErrStaleState = errors.New("player state was modified concurrently")

var sessionInsertColumns = []string{
	"user_id", "puzzle_date", "mode", "bank", "moves", "hints_used", "started_at", "completed_at",
	"first_attempt", "outcome", "time_limit_seconds", "attempts", "version", "updated_at",
}

const sessionColumns = `user_id, puzzle_date, mode, bank, moves, hints_used, started_at, completed_at,
	first_attempt, outcome, time_limit_seconds, attempts, version, updated_at`

// SessionRepository persists per-player puzzle state
type SessionRepository struct {
	db database.DBTX
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get returns the state for (userID, date), or (nil, nil).
func (r *SessionRepository) Get(ctx context.Context, userID string, date civil.Date) (*models.PlayerPuzzleState, error) {
	query := "SELECT " + sessionColumns + " FROM player_puzzle_state WHERE user_id = ? AND puzzle_date = ?"
	s, err := scanSession(r.db.QueryRowContext(ctx, query, userID, date.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player state: %w", err)
	}
	return s, nil
}

// Create inserts s unless a row already exists. It reports whether this
// call created the row.
func (r *SessionRepository) Create(ctx context.Context, s *models.PlayerPuzzleState) (bool, error) {
	bank, err := json.Marshal(s.Bank)
	if err != nil {
		return false, fmt.Errorf("failed to encode bank: %w", err)
	}
	s.Version = 1
	s.UpdatedAt = time.Now().UTC()

	query := r.db.GetDialect().InsertIgnore("player_puzzle_state", sessionInsertColumns, []string{"user_id", "puzzle_date"})
	result, err := r.db.ExecContext(ctx, query,
		s.UserID,
		s.Date.String(),
		string(s.Mode),
		string(bank),
		s.Moves,
		s.HintsUsed,
		s.StartedAt.UTC(),
		nullTime(s.CompletedAt),
		s.FirstAttempt,
		string(s.Outcome),
		s.TimeLimitSeconds,
		s.Attempts,
		s.Version,
		s.UpdatedAt,
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create player state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Update saves s if its version still matches the stored row, then bumps
// s.Version. A mismatch returns ErrStaleState.
func (r *SessionRepository) Update(ctx context.Context, s *models.PlayerPuzzleState) error {
	bank, err := json.Marshal(s.Bank)
	if err != nil {
		return fmt.Errorf("failed to encode bank: %w", err)
	}
	updatedAt := time.Now().UTC()

	query := `
		UPDATE player_puzzle_state
		SET mode = ?, bank = ?, moves = ?, hints_used = ?, started_at = ?, completed_at = ?,
			first_attempt = ?, outcome = ?, time_limit_seconds = ?, attempts = ?,
			version = version + 1, updated_at = ?
		WHERE user_id = ? AND puzzle_date = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(s.Mode),
		string(bank),
		s.Moves,
		s.HintsUsed,
		s.StartedAt.UTC(),
		nullTime(s.CompletedAt),
		s.FirstAttempt,
		string(s.Outcome),
		s.TimeLimitSeconds,
		s.Attempts,
		updatedAt,
		s.UserID,
		s.Date.String(),
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update player state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleState
	}
	s.Version++
	s.UpdatedAt = updatedAt
	return nil
}

// ListOpenTimed returns unfinished timed sessions started before cutoff.
func (r *SessionRepository) ListOpenTimed(ctx context.Context, cutoff time.Time, limit int) ([]models.PlayerPuzzleState, error) {
	query := "SELECT " + sessionColumns + ` FROM player_puzzle_state
		WHERE outcome = ? AND time_limit_seconds > 0 AND started_at < ?
		ORDER BY started_at ASC
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, string(models.OutcomeUnfinished), cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query open sessions: %w", err)
	}
	defer rows.Close()

	var states []models.PlayerPuzzleState
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player state: %w", err)
		}
		states = append(states, *s)
	}
	return states, rows.Err()
}

func scanSession(row rowScanner) (*models.PlayerPuzzleState, error) {
	s := &models.PlayerPuzzleState{}
	var date, mode, bank, outcome string
	var completedAt sql.NullTime
	err := row.Scan(
		&s.UserID,
		&date,
		&mode,
		&bank,
		&s.Moves,
		&s.HintsUsed,
		&s.StartedAt,
		&completedAt,
		&s.FirstAttempt,
		&outcome,
		&s.TimeLimitSeconds,
		&s.Attempts,
		&s.Version,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
	}
	if err := json.Unmarshal([]byte(bank), &s.Bank); err != nil {
		return nil, fmt.Errorf("invalid stored bank: %w", err)
	}
	s.Mode = models.Mode(mode)
	s.Outcome = models.Outcome(outcome)
	s.StartedAt = s.StartedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		s.CompletedAt = &t
	}
	return s, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
