package repository

import (
	"context"
	"fmt"

	"dailyalchemy/internal/database"
)

// BlockedTermRepository reads the content-filter terms
type BlockedTermRepository struct {
	db database.DBTX
}

// NewBlockedTermRepository creates a new blocked term repository
func NewBlockedTermRepository(db database.DBTX) *BlockedTermRepository {
	return &BlockedTermRepository{db: db}
}

// List returns every blocked term in lowercase.
func (r *BlockedTermRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT term FROM blocked_terms ORDER BY term")
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked terms: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("failed to scan blocked term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}
