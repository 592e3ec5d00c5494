package planner

import (
	"sort"
	"time"

	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
)

// edge is one combination {A,B} -> R, either from the catalog or proposed by
// the oracle for this planning run only.
type edge struct {
	key         normalize.Key
	a, b        string
	aNorm       string
	bNorm       string
	result      string
	resultNorm  string
	emoji       string
	createdAt   time.Time
	provisional bool
}

func (e *edge) step() models.Step {
	return models.Step{
		A:           e.a,
		B:           e.b,
		ResultName:  e.result,
		ResultEmoji: e.emoji,
		Provisional: e.provisional,
	}
}

// graph is the combination hypergraph with starters as sources.
type graph struct {
	edges    []*edge
	byKey    map[normalize.Key]*edge
	producer map[string][]*edge
	display  map[string]string
	level    map[string]int
}

func newGraph(catalog []models.CombinationRecord) *graph {
	g := &graph{
		byKey:    make(map[normalize.Key]*edge),
		producer: make(map[string][]*edge),
		display:  make(map[string]string),
	}
	for _, s := range models.Starters {
		g.display[s.Name] = s.Name
	}
	for _, rec := range catalog {
		if rec.Reserved {
			continue
		}
		key := normalize.Key(rec.Key)
		if _, _, ok := key.Halves(); !ok {
			continue
		}
		e, ok := newEdge(rec.ElementA, rec.ElementB, rec.ResultName, rec.ResultEmoji, false)
		if !ok || e.key != key {
			continue
		}
		e.createdAt = rec.CreatedAt
		g.add(e)
	}
	return g
}

func newEdge(a, b, result, emoji string, provisional bool) (*edge, bool) {
	key, err := normalize.Combination(a, b)
	if err != nil {
		return nil, false
	}
	aNorm, _ := normalize.Name(a)
	bNorm, _ := normalize.Name(b)
	resultNorm, err := normalize.Name(result)
	if err != nil || models.IsStarterName(resultNorm) {
		return nil, false
	}
	return &edge{
		key:         key,
		a:           normalize.Display(a),
		b:           normalize.Display(b),
		aNorm:       aNorm,
		bNorm:       bNorm,
		result:      normalize.Display(result),
		resultNorm:  resultNorm,
		emoji:       emoji,
		provisional: provisional,
	}, true
}

// add inserts e unless its key is already known. Catalog edges win over
// provisional ones because they are added first.
func (g *graph) add(e *edge) bool {
	if _, exists := g.byKey[e.key]; exists {
		return false
	}
	g.edges = append(g.edges, e)
	g.byKey[e.key] = e
	g.producer[e.resultNorm] = append(g.producer[e.resultNorm], e)
	if _, ok := g.display[e.resultNorm]; !ok {
		g.display[e.resultNorm] = e.result
	}
	return true
}

// computeLevels assigns every reachable name its minimum depth:
// starters are 0 and level(R) = min over edges of 1 + max(level(A), level(B)).
func (g *graph) computeLevels() {
	g.level = make(map[string]int, len(g.display))
	for _, s := range models.Starters {
		g.level[s.Name] = 0
	}
	for changed := true; changed; {
		changed = false
		for _, e := range g.edges {
			la, okA := g.level[e.aNorm]
			lb, okB := g.level[e.bNorm]
			if !okA || !okB {
				continue
			}
			l := 1 + max(la, lb)
			if cur, ok := g.level[e.resultNorm]; !ok || l < cur {
				g.level[e.resultNorm] = l
				changed = true
			}
		}
	}
}

// reachable returns display names of every reachable element, shallowest
// first, then alphabetically.
func (g *graph) reachable() []string {
	names := make([]string, 0, len(g.level))
	for n := range g.level {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := g.level[names[i]], g.level[names[j]]
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = g.display[n]
	}
	return out
}
