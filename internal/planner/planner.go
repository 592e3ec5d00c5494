// Package planner finds combination paths from the starter elements to a
// target over a snapshot of the catalog.
package planner

import (
	"context"
	"sort"
	"strings"
	"time"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/oracle"
)

const (
	// MaxPathLength bounds the number of steps in a returned path.
	MaxPathLength = 12
	// DefaultLimit is the number of paths returned when none is requested.
	DefaultLimit = 3
	// MaxLimit caps caller-supplied limits.
	MaxLimit = 10
	// MaxBridgeRounds bounds how often the oracle is asked for bridging steps.
	MaxBridgeRounds = 2

	maxBridgeContext = 60
)

// Bridger proposes provisional steps toward an unreachable target.
type Bridger interface {
	Bridge(ctx context.Context, req oracle.BridgeRequest) ([]models.Step, error)
}

// Result is the outcome of a planning run.
type Result struct {
	Paths                     []models.Path `json:"paths"`
	ExistingCombinationsCount int           `json:"existingCombinationsCount"`
	BridgeRounds              int           `json:"-"`
}

// Planner is stateless apart from its collaborators; one value serves
// concurrent requests.
type Planner struct {
	bridger Bridger
	maxLen  int
	log     *logger.Logger
}

// New creates a planner. bridger may be nil to disable oracle bridging.
func New(bridger Bridger, log *logger.Logger) *Planner {
	return &Planner{bridger: bridger, maxLen: MaxPathLength, log: log.With("service", "PathPlanner")}
}

// Generate returns up to limit distinct paths from the starters to target.
// For a fixed catalog and fixed oracle answers the output is deterministic.
func (p *Planner) Generate(ctx context.Context, target models.Element, catalog []models.CombinationRecord, limit int) (*Result, error) {
	targetNorm, err := normalize.Name(target.Name)
	if err != nil {
		return nil, err
	}
	if models.IsStarterName(targetNorm) {
		return nil, apperr.New(apperr.KindInvalidName, "target %q is a starter element", target.Name)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	g := newGraph(catalog)
	res := &Result{ExistingCombinationsCount: len(g.edges)}

	for round := 0; ; round++ {
		g.computeLevels()
		paths := p.search(g, targetNorm, normalize.Display(target.Name), limit)
		if len(paths) > 0 {
			res.Paths = paths
			return res, nil
		}
		if p.bridger == nil || round >= MaxBridgeRounds {
			break
		}

		added, err := p.bridge(ctx, g, target)
		res.BridgeRounds++
		if err != nil {
			return nil, err
		}
		if added == 0 {
			break
		}
	}
	return nil, apperr.New(apperr.KindPathUnreachable, "no path to %q within %d steps", target.Name, p.maxLen)
}

func (p *Planner) bridge(ctx context.Context, g *graph, target models.Element) (int, error) {
	available := g.reachable()
	if len(available) > maxBridgeContext {
		available = available[:maxBridgeContext]
	}
	steps, err := p.bridger.Bridge(ctx, oracle.BridgeRequest{
		Target:    target,
		Available: available,
		MaxSteps:  p.maxLen,
	})
	if err != nil {
		return 0, err
	}

	added := 0
	for _, s := range steps {
		e, ok := newEdge(s.A, s.B, s.ResultName, s.ResultEmoji, true)
		if !ok {
			continue
		}
		if g.add(e) {
			added++
		}
	}
	p.log.Info("Planner integrated bridging steps",
		"target", target.Name,
		"proposed", len(steps),
		"added", added,
	)
	return added, nil
}

// derivation is an ordered list of steps producing a set of names.
type derivation struct {
	steps  []*edge
	sig    string
	latest time.Time
}

func (d *derivation) finish() {
	keys := make([]string, len(d.steps))
	var latest time.Time
	for i, e := range d.steps {
		keys[i] = e.key.String() + ">" + e.resultNorm
		if e.createdAt.After(latest) {
			latest = e.createdAt
		}
	}
	d.sig = strings.Join(keys, ";")
	d.latest = latest
}

func less(a, b *derivation) bool {
	if len(a.steps) != len(b.steps) {
		return len(a.steps) < len(b.steps)
	}
	if a.sig != b.sig {
		return a.sig < b.sig
	}
	return a.latest.Before(b.latest)
}

// maxSearchNodes caps the work done by one search.
const maxSearchNodes = 200000

// searcher enumerates derivations of the target by regression: every
// pending name gets exactly one producing edge, and the inputs of that edge
// become pending unless they are starters or already assigned. The step count
// of a complete assignment is the number of assigned names, so searching
// with an increasing bound yields the shortest derivations first.
type searcher struct {
	g        *graph
	target   string
	bound    int
	budget   int
	assigned map[string]*edge
	found    map[string]*derivation
}

func (p *Planner) search(g *graph, targetNorm, targetDisplay string, limit int) []models.Path {
	if _, ok := g.level[targetNorm]; !ok {
		return nil
	}
	s := &searcher{
		g:        g,
		target:   targetNorm,
		budget:   maxSearchNodes,
		assigned: make(map[string]*edge),
		found:    make(map[string]*derivation),
	}
	for s.bound = g.level[targetNorm]; s.bound <= p.maxLen; s.bound++ {
		s.expand(map[string]bool{targetNorm: true})
		if len(s.found) >= limit {
			break
		}
		if s.budget <= 0 {
			p.log.Warn("Planner search budget exhausted", "target", targetDisplay, "bound", s.bound, "found", len(s.found))
			break
		}
	}

	derivs := make([]*derivation, 0, len(s.found))
	for _, d := range s.found {
		derivs = append(derivs, d)
	}
	sort.Slice(derivs, func(i, j int) bool { return less(derivs[i], derivs[j]) })

	var paths []models.Path
	for _, d := range derivs {
		if len(paths) == limit {
			break
		}
		steps := make([]models.Step, len(d.steps))
		for i, e := range d.steps {
			steps[i] = e.step()
		}
		steps[len(steps)-1].ResultName = targetDisplay
		paths = append(paths, models.Path{Steps: steps})
	}
	return paths
}

func (s *searcher) expand(pending map[string]bool) {
	if s.budget <= 0 {
		return
	}
	s.budget--
	if len(pending) == 0 {
		s.record()
		return
	}
	if len(s.assigned)+len(pending) > s.bound {
		return
	}

	name := s.pick(pending)
	delete(pending, name)
	for _, e := range s.g.producer[name] {
		if !s.usable(name, e) {
			continue
		}
		s.assigned[name] = e
		var added []string
		for _, in := range [2]string{e.aNorm, e.bNorm} {
			if models.IsStarterName(in) || pending[in] {
				continue
			}
			if _, ok := s.assigned[in]; ok {
				continue
			}
			pending[in] = true
			added = append(added, in)
		}
		s.expand(pending)
		for _, in := range added {
			delete(pending, in)
		}
		delete(s.assigned, name)
	}
	pending[name] = true
}

// pick returns the pending name with the fewest producers. Expanding names in
// a fixed order means each assignment is reached exactly once.
func (s *searcher) pick(pending map[string]bool) string {
	best := ""
	for n := range pending {
		if best == "" {
			best = n
			continue
		}
		pn, pb := len(s.g.producer[n]), len(s.g.producer[best])
		if pn < pb || (pn == pb && n < best) {
			best = n
		}
	}
	return best
}

// usable reports whether e may produce name under the current assignment.
func (s *searcher) usable(name string, e *edge) bool {
	for _, in := range [2]string{e.aNorm, e.bNorm} {
		lvl, ok := s.g.level[in]
		if !ok || lvl+1 > s.bound || in == name {
			return false
		}
		if s.dependsOn(in, name, make(map[string]bool)) {
			return false
		}
	}
	return true
}

// dependsOn reports whether from needs target through assigned edges.
func (s *searcher) dependsOn(from, target string, seen map[string]bool) bool {
	if from == target {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	e, ok := s.assigned[from]
	if !ok {
		return false
	}
	return s.dependsOn(e.aNorm, target, seen) || s.dependsOn(e.bNorm, target, seen)
}

// record orders the assignment so every step's inputs come first.
func (s *searcher) record() {
	d := &derivation{steps: make([]*edge, 0, len(s.assigned))}
	done := make(map[string]bool, len(s.assigned))
	var visit func(n string)
	visit = func(n string) {
		if done[n] || models.IsStarterName(n) {
			return
		}
		done[n] = true
		e := s.assigned[n]
		visit(e.aNorm)
		visit(e.bNorm)
		d.steps = append(d.steps, e)
	}
	visit(s.target)
	d.finish()
	if _, ok := s.found[d.sig]; !ok {
		s.found[d.sig] = d
	}
}
