package repository

import (
	"context"
	"fmt"
	"time"

	"dailyalchemy/internal/database"
	"dailyalchemy/internal/models"
)

// AuditRepository persists admin catalog mutations
type AuditRepository struct {
	db database.DBTX
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db database.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert records an audit event and sets its ID.
func (r *AuditRepository) Insert(ctx context.Context, ev *models.CatalogAuditEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	query := "INSERT INTO catalog_audit (action, combo_key, actor, detail, created_at) VALUES (?, ?, ?, ?, ?)"
	id, err := r.db.ExecReturningID(ctx, query, ev.Action, ev.Key, ev.Actor, ev.Detail, ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	ev.ID = id
	return nil
}

// ListRecent returns the newest n events.
func (r *AuditRepository) ListRecent(ctx context.Context, n int) ([]models.CatalogAuditEvent, error) {
	query := `
		SELECT id, action, combo_key, actor, detail, created_at
		FROM catalog_audit
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []models.CatalogAuditEvent
	for rows.Next() {
		var ev models.CatalogAuditEvent
		if err := rows.Scan(&ev.ID, &ev.Action, &ev.Key, &ev.Actor, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
