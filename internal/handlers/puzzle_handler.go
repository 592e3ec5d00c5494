package handlers

import (
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/service"
)

// PuzzleHandler serves daily puzzles.
type PuzzleHandler struct {
	puzzles *service.PuzzleService
	log     *logger.Logger
}

// NewPuzzleHandler creates a new puzzle handler
func NewPuzzleHandler(puzzles *service.PuzzleService, log *logger.Logger) *PuzzleHandler {
	return &PuzzleHandler{puzzles: puzzles, log: log}
}

// puzzleView is the public shape of a puzzle. The solution itself is only
// exposed as a fingerprint.
type puzzleView struct {
	ID               int64             `json:"id,omitempty"`
	PuzzleNumber     int               `json:"puzzleNumber"`
	Date             string            `json:"date"`
	Target           string            `json:"target"`
	TargetEmoji      string            `json:"targetEmoji"`
	ParMoves         int               `json:"parMoves"`
	Difficulty       models.Difficulty `json:"difficulty"`
	SolutionPathHash string            `json:"solutionPathHash"`
	Published        *bool             `json:"published,omitempty"`
	SolutionPath     *models.Path      `json:"solutionPath,omitempty"`
}

type puzzleResponse struct {
	Puzzle puzzleView `json:"puzzle"`
}

type puzzleListResponse struct {
	Puzzles []puzzleView `json:"puzzles"`
}

type createPuzzleRequest struct {
	Date         string            `json:"date"`
	Target       models.Element    `json:"target"`
	ParMoves     int               `json:"parMoves"`
	SolutionPath models.Path       `json:"solutionPath"`
	Difficulty   models.Difficulty `json:"difficulty"`
	Published    bool              `json:"published"`
}

type updatePuzzleRequest struct {
	Date         *string            `json:"date,omitempty"`
	TargetName   *string            `json:"targetName,omitempty"`
	TargetEmoji  *string            `json:"targetEmoji,omitempty"`
	ParMoves     *int               `json:"parMoves,omitempty"`
	SolutionPath *models.Path       `json:"solutionPath,omitempty"`
	Difficulty   *models.Difficulty `json:"difficulty,omitempty"`
	Published    *bool              `json:"published,omitempty"`
}

// Get handles GET /puzzles?date=YYYY-MM-DD. Without a date it returns today's.
func (h *PuzzleHandler) Get(w http.ResponseWriter, r *http.Request) {
	date := h.puzzles.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			respondWithError(w, h.log, err)
			return
		}
		date = d
	}

	access := accessFrom(r)
	p, err := h.puzzles.GetForDate(r.Context(), date, access)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, puzzleResponse{Puzzle: h.view(p, access.Admin)})
}

// Range handles GET /puzzles/range?from=...&to=...
func (h *PuzzleHandler) Range(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	access := accessFrom(r)
	puzzles, err := h.puzzles.GetRange(r.Context(), from, to, access)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	resp := puzzleListResponse{Puzzles: make([]puzzleView, 0, len(puzzles))}
	for i := range puzzles {
		resp.Puzzles = append(resp.Puzzles, h.view(&puzzles[i], access.Admin))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create handles POST /puzzles
func (h *PuzzleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPuzzleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}

	p, err := h.puzzles.Create(r.Context(), service.CreatePuzzleInput{
		Date:         date,
		Target:       req.Target,
		ParMoves:     req.ParMoves,
		SolutionPath: req.SolutionPath,
		Difficulty:   req.Difficulty,
		Published:    req.Published,
	})
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, puzzleResponse{Puzzle: h.view(p, true)})
}

// Update handles PATCH /puzzles/{id}
func (h *PuzzleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, h.log, apperr.New(apperr.KindInvalidRequest, "invalid puzzle id"))
		return
	}
	var req updatePuzzleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, err)
		return
	}

	u := models.PuzzleUpdate{
		TargetName:   req.TargetName,
		TargetEmoji:  req.TargetEmoji,
		ParMoves:     req.ParMoves,
		SolutionPath: req.SolutionPath,
		Difficulty:   req.Difficulty,
		Published:    req.Published,
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			respondWithError(w, h.log, err)
			return
		}
		u.Date = &d
	}

	p, err := h.puzzles.Update(r.Context(), id, u)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, puzzleResponse{Puzzle: h.view(p, true)})
}

func (h *PuzzleHandler) view(p *models.DailyPuzzle, admin bool) puzzleView {
	v := puzzleView{
		PuzzleNumber:     p.PuzzleNumber,
		Date:             p.Date.String(),
		Target:           p.TargetName,
		TargetEmoji:      p.TargetEmoji,
		ParMoves:         p.ParMoves,
		Difficulty:       p.Difficulty,
		SolutionPathHash: h.puzzles.SolutionHash(p),
	}
	if admin {
		published := p.Published
		path := p.SolutionPath
		v.ID = p.ID
		v.Published = &published
		v.SolutionPath = &path
	}
	return v
}

func parseDate(raw string) (civil.Date, error) {
	if raw == "" {
		return civil.Date{}, apperr.New(apperr.KindInvalidRequest, "date is required")
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, apperr.New(apperr.KindInvalidRequest, "invalid date %q, expected YYYY-MM-DD", raw)
	}
	return d, nil
}

// accessFrom reads entitlements from the authenticated principal. Anonymous
// callers get none.
func accessFrom(r *http.Request) service.Access {
	p := GetPrincipal(r.Context())
	if p == nil {
		return service.Access{}
	}
	return service.Access{Admin: p.Admin, Archive: p.Archive}
}
