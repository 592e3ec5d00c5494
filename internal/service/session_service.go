package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/repository"
)

const (
	maxStateRetries = 3
	sweepBatch      = 100
)

// Combiner resolves a pair of elements.
type Combiner interface {
	Combine(ctx context.Context, a, b models.Element, actor string) (*models.CombineResult, error)
}

// CombineOutcome is the result of a move in a session. Result is nil when the
// move was not counted because the session had already run out of time.
type CombineOutcome struct {
	State  *models.PlayerPuzzleState
	Result *models.CombineResult
}

// HintOutcome carries the next missing element of the solution.
type HintOutcome struct {
	State *models.PlayerPuzzleState
	Hint  models.Element
}

// SessionConfig holds the timer settings.
type SessionConfig struct {
	DailyTimeLimit time.Duration
}

// SessionService tracks each player's progress on a puzzle date.
type SessionService struct {
	sessions *repository.SessionRepository
	stats    *repository.StatsRepository
	puzzles  *PuzzleService
	combiner Combiner
	cfg      SessionConfig
	now      func() time.Time
	log      *logger.Logger
}

// NewSessionService creates a new session service
func NewSessionService(sessions *repository.SessionRepository, stats *repository.StatsRepository, puzzles *PuzzleService, combiner Combiner, cfg SessionConfig, log *logger.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		stats:    stats,
		puzzles:  puzzles,
		combiner: combiner,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With("service", "SessionService"),
	}
}

// Start returns the caller's state for date, creating it on the first call.
// Only the state created here has FirstAttempt set.
func (s *SessionService) Start(ctx context.Context, userID string, date civil.Date, access Access) (*models.PlayerPuzzleState, error) {
	if _, err := s.puzzles.GetForDate(ctx, date, access); err != nil {
		return nil, err
	}

	st, err := s.sessions.Get(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if st == nil {
		fresh := s.newState(userID, date)
		created, err := s.sessions.Create(ctx, fresh)
		if err != nil {
			return nil, err
		}
		if created {
			s.log.Info("Session started", "user_id", userID, "date", date.String(), "mode", string(fresh.Mode))
			return fresh, nil
		}
		// A concurrent start won.
		st, err = s.sessions.Get(ctx, userID, date)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, fmt.Errorf("player state for %s vanished after insert", date)
		}
	}
	return s.expireIfDue(ctx, st)
}

// Replay resets a finished attempt to the starter bank. The replay never
// counts towards stats.
func (s *SessionService) Replay(ctx context.Context, userID string, date civil.Date, access Access) (*models.PlayerPuzzleState, error) {
	if _, err := s.puzzles.GetForDate(ctx, date, access); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, date, func(st *models.PlayerPuzzleState) error {
		if !st.Outcome.Terminal() {
			return nil
		}
		fresh := s.newState(userID, date)
		st.Mode = fresh.Mode
		st.Bank = fresh.Bank
		st.Moves = 0
		st.HintsUsed = 0
		st.StartedAt = fresh.StartedAt
		st.CompletedAt = nil
		st.FirstAttempt = false
		st.Outcome = models.OutcomeUnfinished
		st.TimeLimitSeconds = fresh.TimeLimitSeconds
		st.Attempts++
		return nil
	})
}

// ApplyCombine combines two elements from the caller's bank. The result joins
// the bank if new, and reaching the target wins the puzzle. A move made after
// the deadline is discarded and the session ends as time_expired.
func (s *SessionService) ApplyCombine(ctx context.Context, userID string, date civil.Date, a, b string) (*CombineOutcome, error) {
	st, err := s.load(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	st, expired, err := s.checkOpen(ctx, st)
	if err != nil {
		return nil, err
	}
	if expired {
		return &CombineOutcome{State: st}, nil
	}

	elemA, err := bankElement(st.Bank, a)
	if err != nil {
		return nil, err
	}
	elemB, err := bankElement(st.Bank, b)
	if err != nil {
		return nil, err
	}

	res, err := s.combiner.Combine(ctx, elemA, elemB, userID)
	if err != nil {
		return nil, err
	}

	puzzle, err := s.puzzle(ctx, date)
	if err != nil {
		return nil, err
	}

	counted := true
	st, err = s.mutate(ctx, userID, date, func(st *models.PlayerPuzzleState) error {
		if st.Outcome.Terminal() {
			return apperr.New(apperr.KindSessionFinished, "session for %s is finished", date)
		}
		now := s.now()
		if st.Expired(now) {
			counted = false
			s.finish(st, models.OutcomeTimeExpired, now)
			return nil
		}
		counted = true
		if norm, err := normalize.Name(res.Result.Name); err == nil && !models.BankContains(st.Bank, norm) {
			st.Bank = append(st.Bank, res.Result)
		}
		st.Moves++
		if normalize.Equal(res.Result.Name, puzzle.TargetName) {
			s.finish(st, models.OutcomeWon, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.afterFinish(ctx, st, puzzle); err != nil {
		return nil, err
	}
	if !counted {
		return &CombineOutcome{State: st}, nil
	}
	return &CombineOutcome{State: st, Result: res}, nil
}

// UseHint reveals the first solution element the caller does not yet hold.
func (s *SessionService) UseHint(ctx context.Context, userID string, date civil.Date) (*HintOutcome, error) {
	st, err := s.load(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	st, expired, err := s.checkOpen(ctx, st)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, apperr.New(apperr.KindSessionFinished, "session for %s has expired", st.Date)
	}

	puzzle, err := s.puzzle(ctx, date)
	if err != nil {
		return nil, err
	}

	var hint models.Element
	st, err = s.mutate(ctx, userID, date, func(st *models.PlayerPuzzleState) error {
		if st.Outcome.Terminal() {
			return apperr.New(apperr.KindSessionFinished, "session for %s is finished", date)
		}
		next, ok := nextHint(puzzle.SolutionPath, st.Bank)
		if !ok {
			return apperr.New(apperr.KindNotFound, "no hint available")
		}
		hint = next
		st.HintsUsed++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &HintOutcome{State: st, Hint: hint}, nil
}

// Tick lets the client poll the timer. Expired sessions are finalized.
func (s *SessionService) Tick(ctx context.Context, userID string, date civil.Date) (*models.PlayerPuzzleState, error) {
	st, err := s.load(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	return s.expireIfDue(ctx, st)
}

// Finalize ends the attempt with outcome. A won outcome requires the target
// in the bank; time_expired doubles as giving up. Finalizing a finished
// session returns it unchanged, and stats are emitted at most once.
func (s *SessionService) Finalize(ctx context.Context, userID string, date civil.Date, outcome models.Outcome) (*models.PlayerPuzzleState, error) {
	if !outcome.Terminal() {
		return nil, apperr.New(apperr.KindInvalidRequest, "cannot finalize with outcome %q", outcome)
	}
	puzzle, err := s.puzzle(ctx, date)
	if err != nil {
		return nil, err
	}
	targetNorm, err := normalize.Name(puzzle.TargetName)
	if err != nil {
		return nil, err
	}

	st, err := s.mutate(ctx, userID, date, func(st *models.PlayerPuzzleState) error {
		if st.Outcome.Terminal() {
			return errUnchanged
		}
		now := s.now()
		if st.Expired(now) {
			s.finish(st, models.OutcomeTimeExpired, now)
			return nil
		}
		if outcome == models.OutcomeWon && !models.BankContains(st.Bank, targetNorm) {
			return apperr.New(apperr.KindInvalidRequest, "target %q is not in the bank", puzzle.TargetName)
		}
		s.finish(st, outcome, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.afterFinish(ctx, st, puzzle); err != nil {
		return nil, err
	}
	return st, nil
}

// Sweep finalizes timed sessions whose deadline has passed and returns how
// many it closed.
func (s *SessionService) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	open, err := s.sessions.ListOpenTimed(ctx, now.Add(-s.cfg.DailyTimeLimit), sweepBatch)
	if err != nil {
		return 0, err
	}
	closed := 0
	for i := range open {
		st := &open[i]
		if !st.Expired(now) {
			continue
		}
		if _, err := s.expireIfDue(ctx, st); err != nil {
			s.log.Warn("Failed to expire session", "user_id", st.UserID, "date", st.Date.String(), "error", err.Error())
			continue
		}
		closed++
	}
	if closed > 0 {
		s.log.Info("Swept expired sessions", "count", closed)
	}
	return closed, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("Session sweep failed", "error", err.Error())
			}
		}
	}
}

var errUnchanged = errors.New("state unchanged")

// mutate applies fn to a fresh copy of the state and saves it, reloading and
// retrying when another request updated the row first.
func (s *SessionService) mutate(ctx context.Context, userID string, date civil.Date, fn func(st *models.PlayerPuzzleState) error) (*models.PlayerPuzzleState, error) {
	for attempt := 0; attempt < maxStateRetries; attempt++ {
		st, err := s.load(ctx, userID, date)
		if err != nil {
			return nil, err
		}
		if err := fn(st); err != nil {
			if errors.Is(err, errUnchanged) {
				return st, nil
			}
			return nil, err
		}
		err = s.sessions.Update(ctx, st)
		if errors.Is(err, repository.ErrStaleState) {
			s.log.Debug("Player state changed concurrently, retrying", "user_id", userID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, apperr.New(apperr.KindBusyTryAgain, "session for %s is busy", date)
}

// checkOpen rejects finished sessions and finalizes expired ones. expired
// reports that st was just closed by the timer.
func (s *SessionService) checkOpen(ctx context.Context, st *models.PlayerPuzzleState) (*models.PlayerPuzzleState, bool, error) {
	if st.Outcome.Terminal() {
		return st, false, apperr.New(apperr.KindSessionFinished, "session for %s is finished", st.Date)
	}
	if !st.Expired(s.now()) {
		return st, false, nil
	}
	st, err := s.expireIfDue(ctx, st)
	if err != nil {
		return nil, false, err
	}
	return st, true, nil
}

func (s *SessionService) expireIfDue(ctx context.Context, st *models.PlayerPuzzleState) (*models.PlayerPuzzleState, error) {
	if !st.Expired(s.now()) {
		return st, nil
	}
	updated, err := s.mutate(ctx, st.UserID, st.Date, func(st *models.PlayerPuzzleState) error {
		now := s.now()
		if !st.Expired(now) {
			return errUnchanged
		}
		s.finish(st, models.OutcomeTimeExpired, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	puzzle, err := s.puzzle(ctx, st.Date)
	if err != nil {
		return nil, err
	}
	if err := s.afterFinish(ctx, updated, puzzle); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SessionService) finish(st *models.PlayerPuzzleState, outcome models.Outcome, now time.Time) {
	completed := now.UTC()
	st.Outcome = outcome
	st.CompletedAt = &completed
}

// afterFinish emits the stats event for a finished first attempt. The unique
// (user, date) row makes repeated calls harmless.
func (s *SessionService) afterFinish(ctx context.Context, st *models.PlayerPuzzleState, puzzle *models.DailyPuzzle) error {
	if !st.FirstAttempt || !st.Outcome.Terminal() || st.CompletedAt == nil {
		return nil
	}
	duration := int(st.CompletedAt.Sub(st.StartedAt) / time.Second)
	if st.TimeLimitSeconds > 0 && duration > st.TimeLimitSeconds {
		duration = st.TimeLimitSeconds
	}
	inserted, err := s.stats.InsertOnce(ctx, &models.StatsEvent{
		UserID:          st.UserID,
		Date:            st.Date,
		PuzzleNumber:    puzzle.PuzzleNumber,
		Outcome:         st.Outcome,
		Moves:           st.Moves,
		HintsUsed:       st.HintsUsed,
		DurationSeconds: duration,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if inserted {
		s.log.Info("Puzzle finished",
			"user_id", st.UserID,
			"date", st.Date.String(),
			"outcome", string(st.Outcome),
			"moves", st.Moves,
		)
	}
	return nil
}

func (s *SessionService) newState(userID string, date civil.Date) *models.PlayerPuzzleState {
	mode := s.puzzles.ModeFor(date)
	limit := 0
	if mode == models.ModeDaily {
		limit = int(s.cfg.DailyTimeLimit / time.Second)
	}
	return &models.PlayerPuzzleState{
		UserID:           userID,
		Date:             date,
		Mode:             mode,
		Bank:             models.StarterBank(),
		StartedAt:        s.now().UTC(),
		FirstAttempt:     true,
		Outcome:          models.OutcomeUnfinished,
		TimeLimitSeconds: limit,
		Attempts:         1,
	}
}

func (s *SessionService) load(ctx context.Context, userID string, date civil.Date) (*models.PlayerPuzzleState, error) {
	st, err := s.sessions.Get(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apperr.New(apperr.KindNotFound, "no session for %s; start it first", date)
	}
	return st, nil
}

func (s *SessionService) puzzle(ctx context.Context, date civil.Date) (*models.DailyPuzzle, error) {
	return s.puzzles.byDate(ctx, date)
}

// bankElement returns the bank entry named name.
func bankElement(bank []models.Element, name string) (models.Element, error) {
	norm, err := normalize.Name(name)
	if err != nil {
		return models.Element{}, err
	}
	for _, e := range bank {
		if normalize.Equal(e.Name, norm) {
			return e, nil
		}
	}
	return models.Element{}, apperr.New(apperr.KindElementNotInBank, "%q is not in your bank", norm)
}

// nextHint returns the first solution result missing from bank.
func nextHint(path models.Path, bank []models.Element) (models.Element, bool) {
	for _, step := range path.Steps {
		norm, err := normalize.Name(step.ResultName)
		if err != nil {
			continue
		}
		if !models.BankContains(bank, norm) {
			return models.Element{Name: step.ResultName, Emoji: step.ResultEmoji}, true
		}
	}
	return models.Element{}, false
}
