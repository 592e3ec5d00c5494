package handlers

import (
	"fmt"
	"net/http"
	"time"

	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/service"
)

// CatalogHandler serves admin catalog maintenance.
type CatalogHandler struct {
	catalog *service.CatalogService
	backup  *service.CatalogBackupService
	log     *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *service.CatalogService, backup *service.CatalogBackupService, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, backup: backup, log: log}
}

// Delete handles DELETE /combinations/{key}
func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.catalog.AdminDelete(r.Context(), r.PathValue("key"), GetPrincipal(r.Context()).UserID)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// Export handles GET /admin/catalog/export
func (h *CatalogHandler) Export(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("dailyalchemy_catalog_%s.yaml", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := h.backup.ExportToWriter(r.Context(), w); err != nil {
		// Headers may already be sent; log only.
		h.log.Error("Catalog export failed", "error", err.Error())
	}
}

// Audit handles GET /admin/audit
func (h *CatalogHandler) Audit(w http.ResponseWriter, r *http.Request) {
	events, err := h.catalog.RecentAudit(r.Context(), 100)
	if err != nil {
		respondWithError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
