package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/backoff"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
)

const maxEmojiRunes = 16

// ErrNotConfigured is returned by the placeholder provider used when no API
// key is set.
var ErrNotConfigured = errors.New("oracle provider not configured")

// Policy bounds every oracle call.
type Policy struct {
	// Timeout caps the whole call including retries.
	Timeout time.Duration
	// MaxRetries is the number of transport retries after the first attempt.
	MaxRetries int
	// ValidationAttempts is how many schema-valid answers are requested
	// before giving up on invalid content.
	ValidationAttempts int
	// Backoff is the first retry delay; it doubles per retry.
	Backoff time.Duration
	// RPS throttles outgoing requests; zero disables throttling.
	RPS float64
}

// DefaultPolicy returns the production call policy.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:            20 * time.Second,
		MaxRetries:         2,
		ValidationAttempts: 2,
		Backoff:            500 * time.Millisecond,
		RPS:                5,
	}
}

// Adapter applies timeout, throttling, retries and response validation
// around a Provider. The combine service and planner see only success or an
// OracleUnavailable error.
type Adapter struct {
	provider Provider
	policy   Policy
	limiter  *rate.Limiter
	log      *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.RWMutex
	blocked map[string]struct{}
}

// NewAdapter creates an adapter. provider may be nil, in which case every
// call fails with OracleUnavailable.
func NewAdapter(provider Provider, policy Policy, log *logger.Logger) *Adapter {
	if provider == nil {
		provider = unconfigured{}
	}
	if policy.ValidationAttempts <= 0 {
		policy.ValidationAttempts = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if policy.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(policy.RPS), max(1, int(policy.RPS)))
	}
	return &Adapter{
		provider: provider,
		policy:   policy,
		limiter:  limiter,
		log:      log.With("service", "OracleAdapter"),
		sleep:    backoff.Sleep,
		blocked:  map[string]struct{}{},
	}
}

// SetBlockedTerms replaces the content filter.
func (a *Adapter) SetBlockedTerms(terms []string) {
	blocked := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			blocked[t] = struct{}{}
		}
	}
	a.mu.Lock()
	a.blocked = blocked
	a.mu.Unlock()
}

// Generate returns a validated result for req.
func (a *Adapter) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.policy.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= a.policy.ValidationAttempts; attempt++ {
		var res Result
		err := a.withRetry(ctx, "generate", func(ctx context.Context) error {
			var err error
			res, err = a.provider.Generate(ctx, req)
			return err
		})
		if err == nil {
			err = a.validateResult(&res)
		}
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, apperr.ErrInvalidOracleResponse) {
			return Result{}, apperr.Wrap(apperr.KindOracleUnavailable, err)
		}
		lastErr = err
		a.log.Warn("Oracle returned an invalid result",
			"a", req.A.Name,
			"b", req.B.Name,
			"attempt", attempt,
			"error", err.Error(),
		)
	}
	return Result{}, apperr.Wrap(apperr.KindOracleUnavailable, lastErr)
}

// Bridge asks for steps that reach target from available. Invalid steps are
// dropped; an answer with no usable step counts as invalid.
func (a *Adapter) Bridge(ctx context.Context, req BridgeRequest) ([]models.Step, error) {
	ctx, cancel := context.WithTimeout(ctx, a.policy.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= a.policy.ValidationAttempts; attempt++ {
		var steps []models.Step
		err := a.withRetry(ctx, "bridge", func(ctx context.Context) error {
			var err error
			steps, err = a.provider.ProposeBridge(ctx, req)
			return err
		})
		if err != nil && !errors.Is(err, apperr.ErrInvalidOracleResponse) {
			return nil, apperr.Wrap(apperr.KindOracleUnavailable, err)
		}
		if err == nil {
			valid := a.validSteps(steps)
			if len(valid) > 0 {
				return valid, nil
			}
			err = apperr.New(apperr.KindInvalidOracleResponse, "no usable bridge steps for %q", req.Target.Name)
		}
		lastErr = err
		a.log.Warn("Oracle returned an invalid bridge",
			"target", req.Target.Name,
			"attempt", attempt,
			"error", err.Error(),
		)
	}
	return nil, apperr.Wrap(apperr.KindOracleUnavailable, lastErr)
}

func (a *Adapter) withRetry(ctx context.Context, op string, call func(ctx context.Context) error) error {
	delay := a.policy.Backoff
	for attempt := 0; ; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("oracle throttle: %w", err)
		}
		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("oracle %s: %w", op, ctx.Err())
		}
		if !isRetryable(err) || attempt >= a.policy.MaxRetries {
			return err
		}

		sleepFor := backoff.Jitter(retryAfterDuration(err, delay, 5*time.Second))
		a.log.Warn("Oracle request retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", a.policy.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := a.sleep(ctx, sleepFor); err != nil {
			return fmt.Errorf("oracle %s: %w", op, err)
		}
		delay *= 2
	}
}

func (a *Adapter) validateResult(res *Result) error {
	res.ResultName = normalize.Display(res.ResultName)
	res.ResultEmoji = strings.TrimSpace(res.ResultEmoji)
	return a.validateElement(res.ResultName, res.ResultEmoji)
}

func (a *Adapter) validateElement(name, emoji string) error {
	n, err := normalize.Name(name)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidOracleResponse, err)
	}
	if models.IsStarterName(n) {
		return apperr.New(apperr.KindInvalidOracleResponse, "result %q is a starter element", name)
	}
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return apperr.New(apperr.KindInvalidOracleResponse, "result emoji %q is invalid", emoji)
	}
	if term, ok := a.blockedTerm(n); ok {
		return apperr.New(apperr.KindInvalidOracleResponse, "result contains blocked term %q", term)
	}
	return nil
}

func (a *Adapter) validSteps(steps []models.Step) []models.Step {
	var out []models.Step
	for _, s := range steps {
		s.A = normalize.Display(s.A)
		s.B = normalize.Display(s.B)
		s.ResultName = normalize.Display(s.ResultName)
		s.ResultEmoji = strings.TrimSpace(s.ResultEmoji)
		if _, err := normalize.Combination(s.A, s.B); err != nil {
			continue
		}
		if err := a.validateElement(s.ResultName, s.ResultEmoji); err != nil {
			continue
		}
		s.Provisional = true
		out = append(out, s)
	}
	return out
}

// blockedTerm matches whole words of the normalized name.
func (a *Adapter) blockedTerm(normalized string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.blocked) == 0 {
		return "", false
	}
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := a.blocked[w]; ok {
			return w, true
		}
	}
	return "", false
}

type unconfigured struct{}

func (unconfigured) Generate(context.Context, Request) (Result, error) {
	return Result{}, ErrNotConfigured
}

func (unconfigured) ProposeBridge(context.Context, BridgeRequest) ([]models.Step, error) {
	return nil, ErrNotConfigured
}
