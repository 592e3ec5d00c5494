package handlers

import (
	"net/http"

	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/service"
)

// CombineHandler serves free-play combinations.
type CombineHandler struct {
	combine *service.CombineService
	log     *logger.Logger
}

// NewCombineHandler creates a new combine handler
func NewCombineHandler(combine *service.CombineService, log *logger.Logger) *CombineHandler {
	return &CombineHandler{combine: combine, log: log}
}

type combineRequest struct {
	A models.Element `json:"a"`
	B models.Element `json:"b"`
}

// Combine handles POST /combine
func (h *CombineHandler) Combine(w http.ResponseWriter, r *http.Request) {
	var req combineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, err)
		return
	}

	actor := ""
	if p := GetPrincipal(r.Context()); p != nil {
		actor = p.UserID
	}
	res, err := h.combine.Combine(r.Context(), req.A, req.B, actor)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
