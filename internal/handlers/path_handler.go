package handlers

import (
	"net/http"

	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/service"
)

// PathHandler serves path planning and admin path saves.
type PathHandler struct {
	paths *service.PathService
	log   *logger.Logger
}

// NewPathHandler creates a new path handler
func NewPathHandler(paths *service.PathService, log *logger.Logger) *PathHandler {
	return &PathHandler{paths: paths, log: log}
}

type generatePathsRequest struct {
	TargetName string `json:"targetName"`
	Limit      int    `json:"limit,omitempty"`
}

type savePathRequest struct {
	Target models.Element `json:"target"`
	Path   models.Path    `json:"path"`
}

// Generate handles POST /paths/generate
func (h *PathHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generatePathsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, err)
		return
	}
	res, err := h.paths.Generate(r.Context(), req.TargetName, req.Limit)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Save handles PUT /paths
func (h *PathHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req savePathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, err)
		return
	}
	res, err := h.paths.SavePath(r.Context(), req.Target, req.Path)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
