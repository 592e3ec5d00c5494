package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/database"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/planner"
	"dailyalchemy/internal/repository"
)

// PathService plans paths to a target and persists admin-selected paths
// into the catalog.
type PathService struct {
	db      *database.DB
	catalog *repository.CombinationRepository
	planner *planner.Planner
	log     *logger.Logger
}

// NewPathService creates a new path service
func NewPathService(db *database.DB, planner *planner.Planner, log *logger.Logger) *PathService {
	return &PathService{
		db:      db,
		catalog: repository.NewCombinationRepository(db),
		planner: planner,
		log:     log.With("service", "PathService"),
	}
}

// Generate plans up to limit paths to targetName over a fresh catalog
// snapshot. A non-positive limit means the planner default.
func (s *PathService) Generate(ctx context.Context, targetName string, limit int) (*planner.Result, error) {
	if _, err := normalize.Name(targetName); err != nil {
		return nil, err
	}
	snapshot, err := s.catalog.ListAll(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	target := models.Element{Name: normalize.Display(targetName)}
	if known, err := s.catalog.LookupByResult(ctx, targetName); err == nil && len(known) > 0 {
		target.Emoji = known[0].ResultEmoji
	}

	res, err := s.planner.Generate(ctx, target, snapshot, limit)
	if err != nil {
		return nil, err
	}
	s.log.Info("Generated paths",
		"target", target.Name,
		"paths", len(res.Paths),
		"bridge_rounds", res.BridgeRounds,
		"catalog_size", res.ExistingCombinationsCount,
	)
	return res, nil
}

// SavePath writes every step of path into the catalog and makes sure target
// exists as a result. Existing keys are never overwritten; a key that maps to
// a different result is reported as a conflict. Repeating the call with the
// same input changes nothing.
func (s *PathService) SavePath(ctx context.Context, target models.Element, path models.Path) (*models.SavePathResult, error) {
	targetNorm, err := normalize.Name(target.Name)
	if err != nil {
		return nil, err
	}
	if models.IsStarterName(targetNorm) {
		return nil, apperr.New(apperr.KindInvalidName, "starter %q cannot be a target", targetNorm)
	}
	if len(path.Steps) == 0 {
		return nil, apperr.New(apperr.KindInvalidRequest, "path has no steps")
	}

	result := &models.SavePathResult{}
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		catalog := repository.NewCombinationRepository(tx)
		for i, step := range path.Steps {
			if step.ResultEmoji == "" && normalize.Equal(step.ResultName, target.Name) {
				step.ResultEmoji = target.Emoji
			}
			if err := s.saveStep(ctx, catalog, i, step, result); err != nil {
				return err
			}
		}
		return s.ensureTarget(ctx, catalog, target, result)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Saved path",
		"target", target.Name,
		"created", result.Created,
		"skipped", result.Skipped,
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *PathService) saveStep(ctx context.Context, catalog *repository.CombinationRepository, i int, step models.Step, result *models.SavePathResult) error {
	key, err := normalize.Combination(step.A, step.B)
	if err != nil {
		result.Errors = append(result.Errors, models.PathStepError{Index: i, Message: err.Error()})
		return nil
	}

	existing, err := catalog.LookupByKey(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		s.skip(result, existing, step)
		return nil
	}

	emoji, err := canonicalResultEmoji(ctx, catalog, step.ResultName, step.ResultEmoji)
	if err != nil {
		result.Errors = append(result.Errors, models.PathStepError{Index: i, Message: err.Error()})
		return nil
	}

	rec := &models.CombinationRecord{
		Key:         key.String(),
		ElementA:    normalize.Display(step.A),
		ElementB:    normalize.Display(step.B),
		ResultName:  normalize.Display(step.ResultName),
		ResultEmoji: emoji,
		Source:      models.Source{OracleGenerated: true, AdminDefined: true},
		CreatedAt:   time.Now().UTC(),
	}
	out, err := catalog.InsertIfAbsent(ctx, rec)
	if err != nil {
		if isValidation(err) {
			result.Errors = append(result.Errors, models.PathStepError{Index: i, Message: err.Error()})
			return nil
		}
		return err
	}
	if out.Inserted {
		result.Created++
		return nil
	}
	s.skip(result, out.Record, step)
	return nil
}

func (s *PathService) skip(result *models.SavePathResult, existing *models.CombinationRecord, step models.Step) {
	result.Skipped++
	if !normalize.Equal(existing.ResultName, step.ResultName) {
		result.Conflicts = append(result.Conflicts, models.PathConflict{
			Key:       existing.Key,
			Existing:  existing.ResultName,
			Requested: step.ResultName,
		})
	}
}

// ensureTarget inserts an admin placeholder when nothing in the catalog,
// placeholders included, produces target.
func (s *PathService) ensureTarget(ctx context.Context, catalog *repository.CombinationRepository, target models.Element, result *models.SavePathResult) error {
	known, err := catalog.LookupByResultIncludingReserved(ctx, target.Name)
	if err != nil {
		return err
	}
	if len(known) > 0 {
		return nil
	}
	if target.Emoji == "" {
		result.Errors = append(result.Errors, models.PathStepError{Index: -1, Message: "target emoji is required for a new target"})
		return nil
	}
	key, err := normalize.AdminKey(target.Name)
	if err != nil {
		return err
	}
	out, err := catalog.InsertIfAbsent(ctx, &models.CombinationRecord{
		Key:         key.String(),
		ElementA:    normalize.ReservedOperandA,
		ElementB:    normalize.ReservedOperandB,
		ResultName:  normalize.Display(target.Name),
		ResultEmoji: target.Emoji,
		Source:      models.Source{AdminDefined: true},
		Reserved:    true,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if out.Inserted {
		result.Created++
		s.log.Info("Inserted target placeholder", "key", key.String())
		return nil
	}
	if out.Record != nil && !normalize.Equal(out.Record.ResultName, target.Name) {
		s.log.Warn("Placeholder key taken by another target",
			"key", key.String(),
			"existing", out.Record.ResultName,
			"target", target.Name,
		)
		result.Errors = append(result.Errors, models.PathStepError{
			Index:   -1,
			Message: fmt.Sprintf("placeholder key %s already produces %q", key, out.Record.ResultName),
		})
	}
	return nil
}

// canonicalResultEmoji returns the emoji already used for name, falling back
// to proposed.
func canonicalResultEmoji(ctx context.Context, catalog *repository.CombinationRepository, name, proposed string) (string, error) {
	known, err := catalog.LookupByResultIncludingReserved(ctx, name)
	if err != nil {
		return "", err
	}
	if len(known) > 0 {
		return known[0].ResultEmoji, nil
	}
	if proposed == "" {
		return "", apperr.New(apperr.KindInvalidRequest, "emoji is required for new result %q", name)
	}
	return proposed, nil
}

func isValidation(err error) bool {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Kind {
	case apperr.KindInvalidName, apperr.KindInvalidRequest:
		return true
	}
	return false
}
