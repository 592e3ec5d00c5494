package service

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dailyalchemy/internal/database"
	"dailyalchemy/internal/lease"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/oracle"
	"dailyalchemy/internal/repository"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	db, err := database.Initialize(context.Background(), filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *database.DB, a, b, result, emoji string) *models.CombinationRecord {
	t.Helper()
	key, err := normalize.Combination(a, b)
	require.NoError(t, err)
	out, err := repository.NewCombinationRepository(db).InsertIfAbsent(context.Background(), &models.CombinationRecord{
		Key:         key.String(),
		ElementA:    a,
		ElementB:    b,
		ResultName:  result,
		ResultEmoji: emoji,
		UseCount:    1,
	})
	require.NoError(t, err)
	require.True(t, out.Inserted)
	return out.Record
}

// stubOracle answers every pair with the same result and counts calls.
type stubOracle struct {
	result oracle.Result
	err    error
	delay  time.Duration
	before func(ctx context.Context, req oracle.Request)
	calls  atomic.Int32
}

func (o *stubOracle) Generate(ctx context.Context, req oracle.Request) (oracle.Result, error) {
	o.calls.Add(1)
	if o.before != nil {
		o.before(ctx, req)
	}
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return oracle.Result{}, ctx.Err()
		}
	}
	if o.err != nil {
		return oracle.Result{}, o.err
	}
	return o.result, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testCombineConfig() CombineConfig {
	return CombineConfig{
		LeaseTTL:     time.Minute,
		LeaseMaxWait: 5 * time.Second,
		LeaseBackoff: 5 * time.Millisecond,
		ContextSize:  10,
	}
}

func newCombineService(db *database.DB, o Oracle) (*CombineService, lease.Store) {
	leases := lease.NewMemoryStore(nil)
	svc := NewCombineService(repository.NewCombinationRepository(db), leases, o, testCombineConfig(), logger.NewNop())
	return svc, leases
}
