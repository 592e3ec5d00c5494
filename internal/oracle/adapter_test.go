package oracle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
)

type scriptedProvider struct {
	mu      sync.Mutex
	results []Result
	errs    []error
	bridges [][]models.Step
	calls   int
}

func (p *scriptedProvider) next() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return i, p.errs[i]
	}
	return i, nil
}

func (p *scriptedProvider) Generate(ctx context.Context, req Request) (Result, error) {
	i, err := p.next()
	if err != nil {
		return Result{}, err
	}
	if i >= len(p.results) {
		return p.results[len(p.results)-1], nil
	}
	return p.results[i], nil
}

func (p *scriptedProvider) ProposeBridge(ctx context.Context, req BridgeRequest) ([]models.Step, error) {
	i, err := p.next()
	if err != nil {
		return nil, err
	}
	if i >= len(p.bridges) {
		return p.bridges[len(p.bridges)-1], nil
	}
	return p.bridges[i], nil
}

func testAdapter(p Provider) *Adapter {
	a := NewAdapter(p, Policy{Timeout: time.Second, MaxRetries: 2, ValidationAttempts: 2, Backoff: time.Millisecond}, logger.NewNop())
	a.sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

var pair = Request{A: models.Element{Name: "Wind", Emoji: "🌬️"}, B: models.Element{Name: "Seed", Emoji: "🌱"}}

func TestAdapterGenerate(t *testing.T) {
	transient := &providerHTTPError{StatusCode: 503}
	permanent := &providerHTTPError{StatusCode: 401}

	tests := []struct {
		name      string
		provider  *scriptedProvider
		blocked   []string
		wantName  string
		wantKind  apperr.Kind
		wantCalls int
	}{
		{
			name:      "valid first try",
			provider:  &scriptedProvider{results: []Result{{ResultName: " Dandelion ", ResultEmoji: "🌼"}}},
			wantName:  "Dandelion",
			wantCalls: 1,
		},
		{
			name: "transport retries then succeeds",
			provider: &scriptedProvider{
				errs:    []error{transient, transient},
				results: []Result{{}, {}, {ResultName: "Dandelion", ResultEmoji: "🌼"}},
			},
			wantName:  "Dandelion",
			wantCalls: 3,
		},
		{
			name:      "transport retries exhausted",
			provider:  &scriptedProvider{errs: []error{transient, transient, transient}, results: []Result{{}}},
			wantKind:  apperr.KindOracleUnavailable,
			wantCalls: 3,
		},
		{
			name:      "permanent error not retried",
			provider:  &scriptedProvider{errs: []error{permanent}, results: []Result{{}}},
			wantKind:  apperr.KindOracleUnavailable,
			wantCalls: 1,
		},
		{
			name: "starter result retried once",
			provider: &scriptedProvider{results: []Result{
				{ResultName: "Fire", ResultEmoji: "🔥"},
				{ResultName: "Dandelion", ResultEmoji: "🌼"},
			}},
			wantName:  "Dandelion",
			wantCalls: 2,
		},
		{
			name:      "persistent starter result",
			provider:  &scriptedProvider{results: []Result{{ResultName: "water", ResultEmoji: "💧"}}},
			wantKind:  apperr.KindOracleUnavailable,
			wantCalls: 2,
		},
		{
			name:      "overlong name",
			provider:  &scriptedProvider{results: []Result{{ResultName: strings.Repeat("a", 101), ResultEmoji: "x"}}},
			wantKind:  apperr.KindOracleUnavailable,
			wantCalls: 2,
		},
		{
			name:      "blocked term",
			provider:  &scriptedProvider{results: []Result{{ResultName: "Holy Shit", ResultEmoji: "💩"}}},
			blocked:   []string{"shit"},
			wantKind:  apperr.KindOracleUnavailable,
			wantCalls: 2,
		},
		{
			name:      "blocked term only matches whole words",
			provider:  &scriptedProvider{results: []Result{{ResultName: "Shiitake", ResultEmoji: "🍄"}}},
			blocked:   []string{"shit"},
			wantName:  "Shiitake",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAdapter(tt.provider)
			a.SetBlockedTerms(tt.blocked)

			res, err := a.Generate(context.Background(), pair)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantName, res.ResultName)
			}
			assert.Equal(t, tt.wantCalls, tt.provider.calls)
		})
	}
}

func TestAdapterInvalidResponseSurfacesCause(t *testing.T) {
	a := testAdapter(&scriptedProvider{results: []Result{{ResultName: "Earth", ResultEmoji: "🌍"}}})
	_, err := a.Generate(context.Background(), pair)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrOracleUnavailable)
	assert.ErrorIs(t, err, apperr.ErrInvalidOracleResponse)
}

type slowProvider struct{}

func (slowProvider) Generate(ctx context.Context, req Request) (Result, error) {
	<-ctx.Done()
	return Result{}, ctx.Err()
}

func (slowProvider) ProposeBridge(ctx context.Context, req BridgeRequest) ([]models.Step, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAdapterTimeout(t *testing.T) {
	a := NewAdapter(slowProvider{}, Policy{Timeout: 20 * time.Millisecond, MaxRetries: 2, ValidationAttempts: 2}, logger.NewNop())

	start := time.Now()
	_, err := a.Generate(context.Background(), pair)
	require.Error(t, err)
	assert.Equal(t, apperr.KindOracleUnavailable, apperr.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdapterUnconfigured(t *testing.T) {
	a := NewAdapter(nil, DefaultPolicy(), logger.NewNop())
	_, err := a.Generate(context.Background(), pair)
	assert.Equal(t, apperr.KindOracleUnavailable, apperr.KindOf(err))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAdapterBridge(t *testing.T) {
	p := &scriptedProvider{bridges: [][]models.Step{
		{
			{A: "fire", B: "fire", ResultName: "Water", ResultEmoji: "💧"},
			{A: "earth", B: "fire", ResultName: "Stone", ResultEmoji: "🪨"},
			{A: "stone", B: "fire", ResultName: "Lava", ResultEmoji: "🌋"},
		},
	}}
	a := testAdapter(p)

	steps, err := a.Bridge(context.Background(), BridgeRequest{
		Target:    models.Element{Name: "Lava", Emoji: "🌋"},
		Available: []string{"earth", "water", "fire", "wind"},
		MaxSteps:  12,
	})
	require.NoError(t, err)
	require.Len(t, steps, 2, "starter-producing step is dropped")
	for _, s := range steps {
		assert.True(t, s.Provisional)
	}
	assert.Equal(t, "Lava", steps[1].ResultName)
}

func TestAdapterBridgeNoUsableSteps(t *testing.T) {
	p := &scriptedProvider{bridges: [][]models.Step{{{A: "fire", B: "fire", ResultName: "Earth", ResultEmoji: "🌍"}}}}
	a := testAdapter(p)

	_, err := a.Bridge(context.Background(), BridgeRequest{Target: models.Element{Name: "Lava"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindOracleUnavailable, apperr.KindOf(err))
	assert.Equal(t, 2, p.calls)
}
