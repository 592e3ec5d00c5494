package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"dailyalchemy/internal/database"
	"dailyalchemy/internal/models"
)

var statsInsertColumns = []string{
	"user_id", "puzzle_date", "puzzle_number", "outcome", "moves", "hints_used", "duration_seconds", "created_at",
}

// StatsRepository records first-attempt results
type StatsRepository struct {
	db database.DBTX
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db database.DBTX) *StatsRepository {
	return &StatsRepository{db: db}
}

// InsertOnce records ev unless an event already exists for its user and
// date. It reports whether the event was written.
func (r *StatsRepository) InsertOnce(ctx context.Context, ev *models.StatsEvent) (bool, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	dialect := r.db.GetDialect()
	query := dialect.InsertIgnore("player_stats_events", statsInsertColumns, []string{"user_id", "puzzle_date"})
	result, err := r.db.ExecContext(ctx, query,
		ev.UserID,
		ev.Date.String(),
		ev.PuzzleNumber,
		string(ev.Outcome),
		ev.Moves,
		ev.HintsUsed,
		ev.DurationSeconds,
		ev.CreatedAt.UTC(),
	)
	if err != nil {
		if dialect.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert stats event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// ListForUser returns a user's events, newest first.
func (r *StatsRepository) ListForUser(ctx context.Context, userID string) ([]models.StatsEvent, error) {
	query := `
		SELECT id, user_id, puzzle_date, puzzle_number, outcome, moves, hints_used, duration_seconds, created_at
		FROM player_stats_events
		WHERE user_id = ?
		ORDER BY puzzle_date DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats events: %w", err)
	}
	defer rows.Close()

	var events []models.StatsEvent
	for rows.Next() {
		var ev models.StatsEvent
		var date, outcome string
		if err := rows.Scan(&ev.ID, &ev.UserID, &date, &ev.PuzzleNumber, &outcome,
			&ev.Moves, &ev.HintsUsed, &ev.DurationSeconds, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stats event: %w", err)
		}
		if ev.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
		}
		ev.Outcome = models.Outcome(outcome)
		events = append(events, ev)
	}
	return events, rows.Err()
}
