package service

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/repository"
	"dailyalchemy/internal/security"
)

// PuzzleNumber is the 1-based index of date counted from epoch. It uses
// calendar-day arithmetic, so DST shifts never skip or repeat a number.
func PuzzleNumber(epoch, date civil.Date) int {
	return date.DaysSince(epoch) + 1
}

// Access describes what a caller may read.
type Access struct {
	Admin   bool
	Archive bool
}

// PuzzleConfig holds calendar settings for the publisher.
type PuzzleConfig struct {
	Epoch           civil.Date
	Location        *time.Location
	ArchiveFreeDays int
}

// CreatePuzzleInput describes a new daily puzzle.
type CreatePuzzleInput struct {
	Date         civil.Date
	Target       models.Element
	ParMoves     int
	SolutionPath models.Path
	Difficulty   models.Difficulty
	Published    bool
}

// PuzzleService publishes daily puzzles and enforces who can read them.
type PuzzleService struct {
	puzzles     *repository.PuzzleRepository
	catalog     *repository.CombinationRepository
	fingerprint *security.Fingerprinter
	cfg         PuzzleConfig
	now         func() time.Time
	log         *logger.Logger
}

// NewPuzzleService creates a new puzzle service
func NewPuzzleService(puzzles *repository.PuzzleRepository, catalog *repository.CombinationRepository, fingerprint *security.Fingerprinter, cfg PuzzleConfig, log *logger.Logger) *PuzzleService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PuzzleService{
		puzzles:     puzzles,
		catalog:     catalog,
		fingerprint: fingerprint,
		cfg:         cfg,
		now:         time.Now,
		log:         log.With("service", "PuzzleService"),
	}
}

// Today is the current puzzle date in the operator's reference zone.
func (s *PuzzleService) Today() civil.Date {
	return civil.DateOf(s.now().In(s.cfg.Location))
}

// Create publishes a puzzle for in.Date after checking its solution against
// the catalog.
func (s *PuzzleService) Create(ctx context.Context, in CreatePuzzleInput) (*models.DailyPuzzle, error) {
	p := &models.DailyPuzzle{
		Date:         in.Date,
		TargetName:   normalize.Display(in.Target.Name),
		TargetEmoji:  in.Target.Emoji,
		ParMoves:     in.ParMoves,
		SolutionPath: in.SolutionPath,
		Difficulty:   in.Difficulty,
		Published:    in.Published,
	}
	if err := s.prepare(ctx, p); err != nil {
		return nil, err
	}
	if err := s.puzzles.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("Puzzle created",
		"date", p.Date.String(),
		"puzzle_number", p.PuzzleNumber,
		"target", p.TargetName,
	)
	return p, nil
}

// Update applies a partial update. Changing the date renumbers the puzzle.
func (s *PuzzleService) Update(ctx context.Context, id int64, u models.PuzzleUpdate) (*models.DailyPuzzle, error) {
	p, err := s.puzzles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.KindNotFound, "puzzle %d not found", id)
	}

	if u.Date != nil {
		p.Date = *u.Date
	}
	if u.TargetName != nil {
		p.TargetName = normalize.Display(*u.TargetName)
	}
	if u.TargetEmoji != nil {
		p.TargetEmoji = *u.TargetEmoji
	}
	if u.ParMoves != nil {
		p.ParMoves = *u.ParMoves
	}
	if u.SolutionPath != nil {
		p.SolutionPath = *u.SolutionPath
	}
	if u.Difficulty != nil {
		p.Difficulty = *u.Difficulty
	}
	if u.Published != nil {
		p.Published = *u.Published
	}

	if err := s.prepare(ctx, p); err != nil {
		return nil, err
	}
	if err := s.puzzles.Update(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("Puzzle updated", "id", p.ID, "date", p.Date.String(), "puzzle_number", p.PuzzleNumber)
	return p, nil
}

// prepare validates p and fills in derived fields.
func (s *PuzzleService) prepare(ctx context.Context, p *models.DailyPuzzle) error {
	if !p.Date.IsValid() {
		return apperr.New(apperr.KindInvalidRequest, "invalid puzzle date")
	}
	if p.Date.Before(s.cfg.Epoch) {
		return apperr.New(apperr.KindInvalidRequest, "puzzle date %s is before the epoch %s", p.Date, s.cfg.Epoch)
	}
	targetNorm, err := normalize.Name(p.TargetName)
	if err != nil {
		return err
	}
	if models.IsStarterName(targetNorm) {
		return apperr.New(apperr.KindInvalidName, "starter %q cannot be a target", targetNorm)
	}
	if p.TargetEmoji == "" {
		return apperr.New(apperr.KindInvalidRequest, "target emoji is required")
	}
	if p.ParMoves < 1 {
		return apperr.New(apperr.KindInvalidRequest, "par moves must be at least 1")
	}
	if p.Difficulty == "" {
		p.Difficulty = models.DifficultyMedium
	}
	if !p.Difficulty.Valid() {
		return apperr.New(apperr.KindInvalidRequest, "unknown difficulty %q", p.Difficulty)
	}

	path, err := s.resolveSolution(ctx, p.SolutionPath, targetNorm)
	if err != nil {
		return err
	}
	p.SolutionPath = path
	p.PuzzleNumber = PuzzleNumber(s.cfg.Epoch, p.Date)
	return nil
}

// resolveSolution replays path from the starters against the catalog. Every
// step must already be a catalog record producing the stated result, its
// operands must be in the bank at that point, and the last step must produce
// the target. The returned path carries catalog names and emoji.
func (s *PuzzleService) resolveSolution(ctx context.Context, path models.Path, targetNorm string) (models.Path, error) {
	if len(path.Steps) == 0 {
		return models.Path{}, apperr.New(apperr.KindInvalidSolutionPath, "solution path is empty")
	}

	bank := models.StarterBank()
	resolved := models.Path{Steps: make([]models.Step, 0, len(path.Steps))}
	for i, step := range path.Steps {
		key, err := normalize.Combination(step.A, step.B)
		if err != nil {
			return models.Path{}, apperr.New(apperr.KindInvalidSolutionPath, "step %d: %v", i+1, err)
		}
		a, b, _ := key.Halves()
		if !models.BankContains(bank, a) || !models.BankContains(bank, b) {
			return models.Path{}, apperr.New(apperr.KindInvalidSolutionPath, "step %d uses %s before it is available", i+1, key)
		}
		rec, err := s.catalog.LookupByKey(ctx, key)
		if err != nil {
			return models.Path{}, fmt.Errorf("failed to resolve step %d: %w", i+1, err)
		}
		if rec == nil || rec.Reserved {
			return models.Path{}, apperr.New(apperr.KindInvalidSolutionPath, "step %d (%s) is not in the catalog", i+1, key)
		}
		if step.ResultName != "" && !normalize.Equal(rec.ResultName, step.ResultName) {
			return models.Path{}, apperr.New(apperr.KindInvalidSolutionPath,
				"step %d (%s) produces %q, not %q", i+1, key, rec.ResultName, step.ResultName)
		}
		resolved.Steps = append(resolved.Steps, models.Step{
			A:           step.A,
			B:           step.B,
			ResultName:  rec.ResultName,
			ResultEmoji: rec.ResultEmoji,
		})
		if norm, _ := normalize.Name(rec.ResultName); !models.BankContains(bank, norm) {
			bank = append(bank, rec.Result())
		}
	}

	last := resolved.Steps[len(resolved.Steps)-1]
	if !normalize.Equal(last.ResultName, targetNorm) {
		return models.Path{}, apperr.New(apperr.KindInvalidSolutionPath, "solution ends at %q, not the target", last.ResultName)
	}
	return resolved, nil
}

// GetForDate returns the puzzle for date if access permits reading it.
// Unpublished and future puzzles are visible to admins only; puzzles older
// than the free archive window need the archive entitlement.
func (s *PuzzleService) GetForDate(ctx context.Context, date civil.Date, access Access) (*models.DailyPuzzle, error) {
	p, err := s.puzzles.GetByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if p == nil || !s.visible(p, access) {
		return nil, apperr.New(apperr.KindNotFound, "no puzzle for %s", date)
	}
	if s.archived(p.Date) && !access.Archive && !access.Admin {
		return nil, apperr.New(apperr.KindPermissionDenied, "puzzle for %s requires archive access", date)
	}
	return p, nil
}

// GetRange lists the puzzles between from and to that access can read.
func (s *PuzzleService) GetRange(ctx context.Context, from, to civil.Date, access Access) ([]models.DailyPuzzle, error) {
	if !from.IsValid() || !to.IsValid() || to.Before(from) {
		return nil, apperr.New(apperr.KindInvalidRequest, "invalid date range")
	}
	if to.DaysSince(from) > 366 {
		return nil, apperr.New(apperr.KindInvalidRequest, "date range is longer than a year")
	}
	all, err := s.puzzles.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]models.DailyPuzzle, 0, len(all))
	for _, p := range all {
		if !s.visible(&p, access) {
			continue
		}
		if s.archived(p.Date) && !access.Archive && !access.Admin {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SolutionHash fingerprints the puzzle's solution for clients.
func (s *PuzzleService) SolutionHash(p *models.DailyPuzzle) string {
	return s.fingerprint.SolutionHash(p.SolutionPath)
}

// ModeFor returns daily for today's puzzle and archive otherwise.
func (s *PuzzleService) ModeFor(date civil.Date) models.Mode {
	if date == s.Today() {
		return models.ModeDaily
	}
	return models.ModeArchive
}

// byDate loads a puzzle without access checks.
func (s *PuzzleService) byDate(ctx context.Context, date civil.Date) (*models.DailyPuzzle, error) {
	p, err := s.puzzles.GetByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.KindNotFound, "no puzzle for %s", date)
	}
	return p, nil
}

func (s *PuzzleService) visible(p *models.DailyPuzzle, access Access) bool {
	if access.Admin {
		return true
	}
	return p.Published && !p.Date.After(s.Today())
}

func (s *PuzzleService) archived(date civil.Date) bool {
	return s.Today().DaysSince(date) > s.cfg.ArchiveFreeDays
}
