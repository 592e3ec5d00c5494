package handlers

import (
	"net/http"
	"time"

	"cloud.google.com/go/civil"

	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/service"
)

// SessionHandler serves a player's attempt at a puzzle date.
type SessionHandler struct {
	sessions *service.SessionService
	log      *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

type sessionView struct {
	Date             string           `json:"date"`
	Mode             models.Mode      `json:"mode"`
	Bank             []models.Element `json:"bank"`
	Moves            int              `json:"moves"`
	HintsUsed        int              `json:"hintsUsed"`
	StartedAt        time.Time        `json:"startedAt"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	FirstAttempt     bool             `json:"firstAttempt"`
	Outcome          models.Outcome   `json:"outcome"`
	TimeLimitSeconds int              `json:"timeLimitSeconds"`
	Attempts         int              `json:"attempts"`
}

type sessionResponse struct {
	Session sessionView `json:"session"`
}

type sessionCombineResponse struct {
	Session sessionView           `json:"session"`
	Combine *models.CombineResult `json:"combine,omitempty"`
}

type hintResponse struct {
	Session sessionView    `json:"session"`
	Hint    models.Element `json:"hint"`
}

type startRequest struct {
	Replay bool `json:"replay"`
}

type sessionCombineRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type finalizeRequest struct {
	Outcome models.Outcome `json:"outcome"`
}

// Start handles POST /sessions/{date}/start. An empty body is allowed.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	date, p, ok := h.target(w, r)
	if !ok {
		return
	}
	var req startRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithError(w, h.log, err)
			return
		}
	}

	access := accessFrom(r)
	var (
		st  *models.PlayerPuzzleState
		err error
	)
	if req.Replay {
		st, err = h.sessions.Replay(r.Context(), p, date, access)
	} else {
		st, err = h.sessions.Start(r.Context(), p, date, access)
	}
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: viewSession(st)})
}

// Combine handles POST /sessions/{date}/combine
func (h *SessionHandler) Combine(w http.ResponseWriter, r *http.Request) {
	date, p, ok := h.target(w, r)
	if !ok {
		return
	}
	var req sessionCombineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, err)
		return
	}
	out, err := h.sessions.ApplyCombine(r.Context(), p, date, req.A, req.B)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionCombineResponse{Session: viewSession(out.State), Combine: out.Result})
}

// Hint handles POST /sessions/{date}/hint
func (h *SessionHandler) Hint(w http.ResponseWriter, r *http.Request) {
	date, p, ok := h.target(w, r)
	if !ok {
		return
	}
	out, err := h.sessions.UseHint(r.Context(), p, date)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, hintResponse{Session: viewSession(out.State), Hint: out.Hint})
}

// Tick handles POST /sessions/{date}/tick
func (h *SessionHandler) Tick(w http.ResponseWriter, r *http.Request) {
	date, p, ok := h.target(w, r)
	if !ok {
		return
	}
	st, err := h.sessions.Tick(r.Context(), p, date)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: viewSession(st)})
}

// Finalize handles POST /sessions/{date}/finalize
func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	date, p, ok := h.target(w, r)
	if !ok {
		return
	}
	var req finalizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, err)
		return
	}
	st, err := h.sessions.Finalize(r.Context(), p, date, req.Outcome)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: viewSession(st)})
}

// target resolves the {date} path value and the caller's user ID.
func (h *SessionHandler) target(w http.ResponseWriter, r *http.Request) (civil.Date, string, bool) {
	date, err := parseDate(r.PathValue("date"))
	if err != nil {
		respondWithError(w, h.log, err)
		return civil.Date{}, "", false
	}
	return date, GetPrincipal(r.Context()).UserID, true
}

func viewSession(st *models.PlayerPuzzleState) sessionView {
	v := sessionView{
		Date:             st.Date.String(),
		Mode:             st.Mode,
		Bank:             st.Bank,
		Moves:            st.Moves,
		HintsUsed:        st.HintsUsed,
		StartedAt:        st.StartedAt,
		CompletedAt:      st.CompletedAt,
		FirstAttempt:     st.FirstAttempt,
		Outcome:          st.Outcome,
		TimeLimitSeconds: st.TimeLimitSeconds,
		Attempts:         st.Attempts,
	}
	if deadline, ok := st.Deadline(); ok {
		v.Deadline = &deadline
	}
	return v
}
