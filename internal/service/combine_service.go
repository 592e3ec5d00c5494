package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/backoff"
	"dailyalchemy/internal/lease"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/oracle"
	"dailyalchemy/internal/repository"
)

const maxLeaseBackoff = 500 * time.Millisecond

// CatalogStore is the subset of the combination repository the engine uses.
type CatalogStore interface {
	LookupByKey(ctx context.Context, key normalize.Key) (*models.CombinationRecord, error)
	LookupByResult(ctx context.Context, name string) ([]models.CombinationRecord, error)
	InsertIfAbsent(ctx context.Context, rec *models.CombinationRecord) (repository.InsertOutcome, error)
	IncrementUseCount(ctx context.Context, key normalize.Key) error
	ListTopByUseCount(ctx context.Context, n int) ([]models.CombinationRecord, error)
}

// Oracle generates results for unseen pairs.
type Oracle interface {
	Generate(ctx context.Context, req oracle.Request) (oracle.Result, error)
}

// CombineConfig holds the admission protocol's timing.
type CombineConfig struct {
	LeaseTTL     time.Duration
	LeaseMaxWait time.Duration
	LeaseBackoff time.Duration
	ContextSize  int
}

// CombineService resolves a pair of elements to a result, consulting the
// oracle and admitting a new catalog record when the pair is unseen.
type CombineService struct {
	catalog CatalogStore
	leases  lease.Store
	oracle  Oracle
	cfg     CombineConfig
	log     *logger.Logger
	tracer  trace.Tracer

	wg sync.WaitGroup
}

// NewCombineService creates a new combine service
func NewCombineService(catalog CatalogStore, leases lease.Store, oracle Oracle, cfg CombineConfig, log *logger.Logger) *CombineService {
	return &CombineService{
		catalog: catalog,
		leases:  leases,
		oracle:  oracle,
		cfg:     cfg,
		log:     log.With("service", "CombineService"),
		tracer:  otel.Tracer("dailyalchemy/combine"),
	}
}

// Combine returns the result of combining a and b. actor is credited as the
// discoverer when this call admits a new record; it may be empty.
func (s *CombineService) Combine(ctx context.Context, a, b models.Element, actor string) (*models.CombineResult, error) {
	key, err := normalize.Combination(a.Name, b.Name)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "combine", trace.WithAttributes(attribute.String("combine.key", key.String())))
	defer span.End()

	// A busy key gets one more full pass before the caller sees it.
	for attempt := 0; ; attempt++ {
		res, err := s.admit(ctx, key, a, b, actor)
		if errors.Is(err, apperr.ErrBusyTryAgain) && attempt == 0 && ctx.Err() == nil {
			s.log.Debug("Combine lease busy, retrying protocol", "key", key.String())
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		}
		return res, err
	}
}

// Wait blocks until background use-count updates finish.
func (s *CombineService) Wait() {
	s.wg.Wait()
}

func (s *CombineService) admit(ctx context.Context, key normalize.Key, a, b models.Element, actor string) (*models.CombineResult, error) {
	deadline := time.Now().Add(s.cfg.LeaseMaxWait)
	delay := s.cfg.LeaseBackoff

	for {
		rec, err := s.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			s.touch(ctx, key)
			return &models.CombineResult{Result: rec.Result(), FromCache: true}, nil
		}

		held, err := s.acquire(ctx, key)
		if err == nil {
			return s.admitLocked(ctx, held, key, a, b, actor)
		}
		if !errors.Is(err, lease.ErrHeld) {
			return nil, err
		}

		wait := backoff.Jitter(delay)
		if time.Now().Add(wait).After(deadline) {
			return nil, apperr.New(apperr.KindBusyTryAgain, "combination %q is being discovered", key)
		}
		if err := backoff.Sleep(ctx, wait); err != nil {
			return nil, apperr.Wrap(apperr.KindBusyTryAgain, err)
		}
		delay = min(delay*2, maxLeaseBackoff)
	}
}

func (s *CombineService) admitLocked(ctx context.Context, held *lease.Lease, key normalize.Key, a, b models.Element, actor string) (*models.CombineResult, error) {
	defer s.release(ctx, held)

	// The previous holder may have finished between our miss and the grant.
	if rec, err := s.lookup(ctx, key); err != nil {
		return nil, err
	} else if rec != nil {
		s.touch(ctx, key)
		return &models.CombineResult{Result: rec.Result(), FromCache: true}, nil
	}

	generated, err := s.callOracle(ctx, key, a, b)
	if err != nil {
		return nil, err
	}

	existing, err := s.traced(ctx, "combine.reconcile", key, func(ctx context.Context) (*models.CombinationRecord, error) {
		return s.catalog.LookupByKey(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.reconcile(ctx, existing, generated), nil
	}

	generated.Emoji = s.canonicalEmoji(ctx, generated)

	rec := &models.CombinationRecord{
		Key:         key.String(),
		ElementA:    normalize.Display(a.Name),
		ElementB:    normalize.Display(b.Name),
		ResultName:  generated.Name,
		ResultEmoji: generated.Emoji,
		Source:      models.Source{OracleGenerated: true},
		UseCount:    1,
		CreatedAt:   time.Now().UTC(),
	}
	if actor != "" {
		rec.DiscovererUserID = &actor
	}

	var out repository.InsertOutcome
	_, err = s.traced(ctx, "combine.insert", key, func(ctx context.Context) (*models.CombinationRecord, error) {
		var err error
		out, err = s.catalog.InsertIfAbsent(ctx, rec)
		return out.Record, err
	})
	if err != nil {
		return nil, err
	}
	if !out.Inserted {
		return s.reconcile(ctx, out.Record, generated), nil
	}

	s.log.Info("New combination discovered",
		"key", key.String(),
		"result", generated.Name,
		"actor", actor,
	)
	return &models.CombineResult{Result: out.Record.Result(), FirstDiscovery: true}, nil
}

// reconcile returns the stored record. A generated name that differs is
// reported as a conflict; a different emoji alone is not.
func (s *CombineService) reconcile(ctx context.Context, existing *models.CombinationRecord, generated models.Element) *models.CombineResult {
	s.touch(ctx, normalize.Key(existing.Key))
	res := &models.CombineResult{Result: existing.Result(), FromCache: true}
	if !normalize.Equal(existing.ResultName, generated.Name) {
		res.Conflict = &models.Conflict{Existing: existing.Result(), Generated: generated}
		s.log.Info("Oracle result conflicts with catalog",
			"key", existing.Key,
			"existing", existing.ResultName,
			"generated", generated.Name,
		)
	}
	return res
}

func (s *CombineService) lookup(ctx context.Context, key normalize.Key) (*models.CombinationRecord, error) {
	return s.traced(ctx, "combine.lookup", key, func(ctx context.Context) (*models.CombinationRecord, error) {
		return s.catalog.LookupByKey(ctx, key)
	})
}

func (s *CombineService) acquire(ctx context.Context, key normalize.Key) (*lease.Lease, error) {
	ctx, span := s.tracer.Start(ctx, "combine.lease", trace.WithAttributes(attribute.String("combine.key", key.String())))
	defer span.End()

	held, err := s.leases.Acquire(ctx, key.String(), s.cfg.LeaseTTL)
	switch {
	case errors.Is(err, lease.ErrHeld):
		span.SetAttributes(attribute.String("combine.outcome", "held"))
		return nil, err
	case err != nil:
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.KindInternal, err)
	}
	span.SetAttributes(attribute.String("combine.outcome", "acquired"))
	return held, nil
}

// release runs even if the request was cancelled.
func (s *CombineService) release(ctx context.Context, held *lease.Lease) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.leases.Release(ctx, held); err != nil {
		s.log.Warn("Failed to release lease", "key", held.Key, "error", err.Error())
	}
}

func (s *CombineService) callOracle(ctx context.Context, key normalize.Key, a, b models.Element) (models.Element, error) {
	ctx, span := s.tracer.Start(ctx, "combine.oracle", trace.WithAttributes(attribute.String("combine.key", key.String())))
	defer span.End()

	var known []models.CombinationRecord
	if s.cfg.ContextSize > 0 {
		top, err := s.catalog.ListTopByUseCount(ctx, s.cfg.ContextSize)
		if err != nil {
			s.log.Warn("Failed to load oracle context", "error", err.Error())
		}
		known = top
	}

	res, err := s.oracle.Generate(ctx, oracle.Request{A: a, B: b, Context: known})
	if err != nil {
		span.RecordError(err)
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			err = apperr.Wrap(apperr.KindOracleUnavailable, err)
		}
		s.log.Warn("Oracle call failed", "key", key.String(), "error", err.Error())
		return models.Element{}, err
	}
	span.SetAttributes(attribute.String("combine.generated", res.ResultName))
	return res.Element(), nil
}

// canonicalEmoji returns the emoji already used for generated's name, if any.
func (s *CombineService) canonicalEmoji(ctx context.Context, generated models.Element) string {
	matches, err := s.catalog.LookupByResult(ctx, generated.Name)
	if err != nil {
		s.log.Warn("Failed to canonicalize emoji", "result", generated.Name, "error", err.Error())
		return generated.Emoji
	}
	if len(matches) > 0 {
		return matches[0].ResultEmoji
	}
	return generated.Emoji
}

// touch increments the use count in the background. Losses are tolerated.
func (s *CombineService) touch(ctx context.Context, key normalize.Key) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.catalog.IncrementUseCount(ctx, key); err != nil {
			s.log.Warn("Failed to increment use count", "key", key.String(), "error", err.Error())
		}
	}()
}

func (s *CombineService) traced(ctx context.Context, name string, key normalize.Key, fn func(ctx context.Context) (*models.CombinationRecord, error)) (*models.CombinationRecord, error) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("combine.key", key.String())))
	defer span.End()

	rec, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("combine.hit", rec != nil))
	return rec, nil
}
