package database

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed blocked_terms.txt
var blockedTermsList string

// DefaultBlockedTerms returns the embedded content-filter list.
func DefaultBlockedTerms() []string {
	var terms []string
	scanner := bufio.NewScanner(strings.NewReader(blockedTermsList))
	for scanner.Scan() {
		term := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if term == "" || strings.HasPrefix(term, "#") {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// SeedBlockedTerms inserts any missing terms. Existing rows are left alone.
func (db *DB) SeedBlockedTerms(ctx context.Context, terms []string) error {
	if len(terms) == 0 {
		return nil
	}
	query := db.Dialect.InsertIgnore("blocked_terms", []string{"term"}, []string{"term"})

	return db.WithTx(ctx, func(tx *Tx) error {
		stmt, err := tx.PrepareContext(ctx, db.Dialect.RewriteQuery(query))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, term := range terms {
			term = strings.TrimSpace(strings.ToLower(term))
			if term == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, term); err != nil {
				return fmt.Errorf("failed to seed blocked term: %w", err)
			}
		}
		return nil
	})
}
