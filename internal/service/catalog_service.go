package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/database"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/repository"
)

// AuditAction names a catalog mutation.
const (
	AuditActionDelete = "delete"
	AuditActionImport = "import"
)

// Notifier delivers audit events outside the database.
type Notifier interface {
	Notify(ctx context.Context, ev *models.CatalogAuditEvent) error
}

// CatalogService performs admin mutations on the catalog and records them.
type CatalogService struct {
	db       *database.DB
	catalog  *repository.CombinationRepository
	audit    *repository.AuditRepository
	notifier Notifier
	log      *logger.Logger
}

// NewCatalogService creates a new catalog service. notifier may be nil.
func NewCatalogService(db *database.DB, notifier Notifier, log *logger.Logger) *CatalogService {
	return &CatalogService{
		db:       db,
		catalog:  repository.NewCombinationRepository(db),
		audit:    repository.NewAuditRepository(db),
		notifier: notifier,
		log:      log.With("service", "CatalogService"),
	}
}

// AdminDelete removes the record for key and writes an audit entry in the
// same transaction. The notification is sent after commit and its failure is
// only logged.
func (s *CatalogService) AdminDelete(ctx context.Context, rawKey, actor string) (*models.CombinationRecord, error) {
	key, err := normalize.ParseKey(rawKey)
	if err != nil {
		return nil, err
	}

	var (
		deleted *models.CombinationRecord
		ev      *models.CatalogAuditEvent
	)
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		deleted, err = repository.NewCombinationRepository(tx).Delete(ctx, key)
		if err != nil {
			return err
		}
		if deleted == nil {
			return apperr.New(apperr.KindNotFound, "combination %q not found", key)
		}
		detail, err := json.Marshal(deleted)
		if err != nil {
			return fmt.Errorf("failed to encode audit detail: %w", err)
		}
		ev = &models.CatalogAuditEvent{
			Action:    AuditActionDelete,
			Key:       key.String(),
			Actor:     actor,
			Detail:    string(detail),
			CreatedAt: time.Now().UTC(),
		}
		return repository.NewAuditRepository(tx).Insert(ctx, ev)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Combination deleted", "key", key.String(), "actor", actor, "result", deleted.ResultName)
	s.notify(ctx, ev)
	return deleted, nil
}

// RecentAudit returns the latest n audit events.
func (s *CatalogService) RecentAudit(ctx context.Context, n int) ([]models.CatalogAuditEvent, error) {
	return s.audit.ListRecent(ctx, n)
}

func (s *CatalogService) notify(ctx context.Context, ev *models.CatalogAuditEvent) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn("Failed to send audit notification", "key", ev.Key, "error", err.Error())
	}
}
