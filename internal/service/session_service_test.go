package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/database"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/repository"
)

var puzzleDay = civil.Date{Year: 2026, Month: time.January, Day: 25}

type sessionFixture struct {
	db      *database.DB
	clock   *fakeClock
	svc     *SessionService
	combine *CombineService
	stats   *repository.StatsRepository
}

func newSessionFixture(t *testing.T) *sessionFixture {
	db := newTestDB(t)
	seedLava(t, db)
	clock := newFakeClock(time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC))
	puzzles := newPuzzleService(db, clock)
	_, err := puzzles.Create(context.Background(), lavaInput(puzzleDay))
	require.NoError(t, err)

	combine, _ := newCombineService(db, &stubOracle{err: apperr.New(apperr.KindOracleUnavailable, "offline")})
	stats := repository.NewStatsRepository(db)
	svc := NewSessionService(
		repository.NewSessionRepository(db),
		stats,
		puzzles,
		combine,
		SessionConfig{DailyTimeLimit: 600 * time.Second},
		logger.NewNop(),
	)
	svc.now = clock.Now
	t.Cleanup(combine.Wait)
	return &sessionFixture{db: db, clock: clock, svc: svc, combine: combine, stats: stats}
}

func TestSessionSolve(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	st, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)
	assert.True(t, st.FirstAttempt)
	assert.Equal(t, models.ModeDaily, st.Mode)
	assert.Equal(t, 600, st.TimeLimitSeconds)
	assert.Len(t, st.Bank, 4)

	again, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)
	assert.True(t, st.StartedAt.Equal(again.StartedAt), "start is idempotent")
	assert.True(t, again.FirstAttempt)

	f.clock.Advance(30 * time.Second)
	out, err := f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "Earth")
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, "Stone", out.Result.Result.Name)
	assert.Len(t, out.State.Bank, 5)

	f.clock.Advance(30 * time.Second)
	out, err = f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "stone")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWon, out.State.Outcome)
	assert.Equal(t, 2, out.State.Moves)
	require.NotNil(t, out.State.CompletedAt)

	for i := 0; i < 3; i++ {
		st, err = f.svc.Finalize(ctx, "u1", puzzleDay, models.OutcomeWon)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeWon, st.Outcome)
	}

	events, err := f.stats.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.OutcomeWon, events[0].Outcome)
	assert.Equal(t, 3, events[0].PuzzleNumber)
	assert.Equal(t, 2, events[0].Moves)
	assert.Equal(t, 60, events[0].DurationSeconds)

	_, err = f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "stone")
	assert.True(t, errors.Is(err, apperr.ErrSessionFinished))
}

func TestSessionTimeExpiry(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)

	f.clock.Advance(610 * time.Second)
	out, err := f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "earth")
	require.NoError(t, err)
	assert.Nil(t, out.Result, "late move is not counted")
	assert.Equal(t, models.OutcomeTimeExpired, out.State.Outcome)
	assert.Zero(t, out.State.Moves)
	assert.Len(t, out.State.Bank, 4)

	events, err := f.stats.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.OutcomeTimeExpired, events[0].Outcome)
	assert.Equal(t, 600, events[0].DurationSeconds)
}

func TestSessionTimerBoundary(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)

	f.clock.Advance(600 * time.Second)
	st, err := f.svc.Tick(ctx, "u1", puzzleDay)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnfinished, st.Outcome)

	f.clock.Advance(time.Second)
	st, err = f.svc.Tick(ctx, "u1", puzzleDay)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTimeExpired, st.Outcome)
}

func TestSessionRejectsElementsOutsideBank(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "earth")
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "session must be started")

	_, err = f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)

	_, err = f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "stone")
	assert.True(t, errors.Is(err, apperr.ErrElementNotInBank))
}

func TestSessionOracleFailureDoesNotCountMove(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)

	_, err = f.svc.ApplyCombine(ctx, "u1", puzzleDay, "wind", "water")
	assert.True(t, errors.Is(err, apperr.ErrOracleUnavailable))

	st, err := f.svc.Tick(ctx, "u1", puzzleDay)
	require.NoError(t, err)
	assert.Zero(t, st.Moves)
}

func TestSessionHints(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)

	hint, err := f.svc.UseHint(ctx, "u1", puzzleDay)
	require.NoError(t, err)
	assert.Equal(t, "Stone", hint.Hint.Name)
	assert.Equal(t, 1, hint.State.HintsUsed)

	_, err = f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "earth")
	require.NoError(t, err)

	hint, err = f.svc.UseHint(ctx, "u1", puzzleDay)
	require.NoError(t, err)
	assert.Equal(t, "Lava", hint.Hint.Name)
	assert.Equal(t, "🌋", hint.Hint.Emoji)
	assert.Equal(t, 2, hint.State.HintsUsed)
}

func TestSessionReplay(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, "u1", puzzleDay, models.OutcomeTimeExpired)
	require.NoError(t, err)

	st, err := f.svc.Replay(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)
	assert.False(t, st.FirstAttempt)
	assert.Equal(t, models.OutcomeUnfinished, st.Outcome)
	assert.Equal(t, 2, st.Attempts)
	assert.Len(t, st.Bank, 4)

	_, err = f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "earth")
	require.NoError(t, err)
	out, err := f.svc.ApplyCombine(ctx, "u1", puzzleDay, "fire", "stone")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWon, out.State.Outcome)

	events, err := f.stats.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1, "only the first attempt is recorded")
	assert.Equal(t, models.OutcomeTimeExpired, events[0].Outcome)
}

func TestSessionFinalizeValidation(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, "u1", puzzleDay, models.OutcomeUnfinished)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))

	_, err = f.svc.Finalize(ctx, "u1", puzzleDay, models.OutcomeWon)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest), "target not in bank")
}

func TestSessionArchiveIsUntimed(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.clock.Advance(24 * time.Hour)

	st, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)
	assert.Equal(t, models.ModeArchive, st.Mode)
	assert.Zero(t, st.TimeLimitSeconds)

	f.clock.Advance(2 * time.Hour)
	st, err = f.svc.Tick(ctx, "u1", puzzleDay)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnfinished, st.Outcome)
}

func TestSessionSweep(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", puzzleDay, Access{})
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	_, err = f.svc.Start(ctx, "u2", puzzleDay, Access{})
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only u1 is past its deadline")

	n, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	events, err := f.stats.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	events, err = f.stats.ListForUser(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRunSweeperStops(t *testing.T) {
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.RunSweeper(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
