package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/database"
	"dailyalchemy/internal/models"
)

const puzzleColumns = `id, puzzle_date, puzzle_number, target_name, target_emoji, par_moves,
	solution_path, difficulty, published, created_at, updated_at`

// PuzzleRepository handles database operations for daily puzzles
type PuzzleRepository struct {
	db database.DBTX
}

// NewPuzzleRepository creates a new puzzle repository
func NewPuzzleRepository(db database.DBTX) *PuzzleRepository {
	return &PuzzleRepository{db: db}
}

// Create inserts a puzzle. A second puzzle for the same date fails with
// DuplicateDate.
func (r *PuzzleRepository) Create(ctx context.Context, p *models.DailyPuzzle) error {
	path, err := json.Marshal(p.SolutionPath)
	if err != nil {
		return fmt.Errorf("failed to encode solution path: %w", err)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	query := `
		INSERT INTO daily_puzzles (puzzle_date, puzzle_number, target_name, target_emoji, par_moves,
			solution_path, difficulty, published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		p.Date.String(),
		p.PuzzleNumber,
		p.TargetName,
		p.TargetEmoji,
		p.ParMoves,
		string(path),
		string(p.Difficulty),
		p.Published,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return apperr.New(apperr.KindDuplicateDate, "a puzzle already exists for %s", p.Date)
		}
		return fmt.Errorf("failed to create puzzle: %w", err)
	}
	p.ID = id
	return nil
}

// GetByDate retrieves the puzzle for date, or (nil, nil).
func (r *PuzzleRepository) GetByDate(ctx context.Context, date civil.Date) (*models.DailyPuzzle, error) {
	query := "SELECT " + puzzleColumns + " FROM daily_puzzles WHERE puzzle_date = ?"
	p, err := scanPuzzle(r.db.QueryRowContext(ctx, query, date.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get puzzle: %w", err)
	}
	return p, nil
}

// GetByID retrieves a puzzle by ID, or (nil, nil).
func (r *PuzzleRepository) GetByID(ctx context.Context, id int64) (*models.DailyPuzzle, error) {
	query := "SELECT " + puzzleColumns + " FROM daily_puzzles WHERE id = ?"
	p, err := scanPuzzle(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get puzzle: %w", err)
	}
	return p, nil
}

// ListRange returns puzzles with from <= date <= to, ordered by date.
func (r *PuzzleRepository) ListRange(ctx context.Context, from, to civil.Date) ([]models.DailyPuzzle, error) {
	query := "SELECT " + puzzleColumns + ` FROM daily_puzzles
		WHERE puzzle_date >= ? AND puzzle_date <= ?
		ORDER BY puzzle_date ASC`
	rows, err := r.db.QueryContext(ctx, query, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query puzzles: %w", err)
	}
	defer rows.Close()

	var puzzles []models.DailyPuzzle
	for rows.Next() {
		p, err := scanPuzzle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan puzzle: %w", err)
		}
		puzzles = append(puzzles, *p)
	}
	return puzzles, rows.Err()
}

// Update writes every mutable column of p.
func (r *PuzzleRepository) Update(ctx context.Context, p *models.DailyPuzzle) error {
	path, err := json.Marshal(p.SolutionPath)
	if err != nil {
		return fmt.Errorf("failed to encode solution path: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE daily_puzzles
		SET puzzle_date = ?, puzzle_number = ?, target_name = ?, target_emoji = ?, par_moves = ?,
			solution_path = ?, difficulty = ?, published = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		p.Date.String(),
		p.PuzzleNumber,
		p.TargetName,
		p.TargetEmoji,
		p.ParMoves,
		string(path),
		string(p.Difficulty),
		p.Published,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return apperr.New(apperr.KindDuplicateDate, "a puzzle already exists for %s", p.Date)
		}
		return fmt.Errorf("failed to update puzzle: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.KindNotFound, "puzzle %d not found", p.ID)
	}
	return nil
}

func scanPuzzle(row rowScanner) (*models.DailyPuzzle, error) {
	p := &models.DailyPuzzle{}
	var date, path, difficulty string
	err := row.Scan(
		&p.ID,
		&date,
		&p.PuzzleNumber,
		&p.TargetName,
		&p.TargetEmoji,
		&p.ParMoves,
		&path,
		&difficulty,
		&p.Published,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
	}
	if err := json.Unmarshal([]byte(path), &p.SolutionPath); err != nil {
		return nil, fmt.Errorf("invalid stored solution path: %w", err)
	}
	p.Difficulty = models.Difficulty(difficulty)
	return p, nil
}
