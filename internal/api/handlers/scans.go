package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/5kyf4ll/molly-project/internal/orchestrator"
	"github.com/5kyf4ll/molly-project/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CheckScanStatusHandler creates the handler for GET /api/check_scan_status/{id}.
// The frontend polls it while a scan runs; terminal scans include the summary
// and report URL.
func CheckScanStatusHandler(db *store.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			errorResponse(w, "ID de escaneo inválido.", http.StatusBadRequest)
			return
		}

		scan, err := db.GetScan(r.Context(), scanID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				errorResponse(w, "Escaneo no encontrado.", http.StatusNotFound)
				return
			}
			logger.Error("failed to load scan", zap.Int64("scan_id", scanID), zap.Error(err))
			errorResponse(w, "Error interno del servidor.", http.StatusInternalServerError)
			return
		}

		if !scan.Status.IsTerminal() {
			writeJSON(w, http.StatusOK, map[string]string{"status": "in_progress"})
			return
		}

		summary := scan.Summary
		if summary == "" {
			summary = "Escaneo completado/fallido."
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":     scan.Status.String(),
			"summary":    summary,
			"report_url": fmt.Sprintf("/view_report/%d", scan.ID),
		})
	}
}

// ListScansHandler creates the handler for GET /api/scans
func ListScansHandler(db *store.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scans, err := db.GetAllScans(r.Context())
		if err != nil {
			logger.Error("failed to list scans", zap.Error(err))
			errorResponse(w, "Error interno del servidor.", http.StatusInternalServerError)
			return
		}
		if scans == nil {
			scans = []store.Scan{}
		}
		writeJSON(w, http.StatusOK, scans)
	}
}

// SessionStatusHandler creates the handler for GET /api/session_status
func SessionStatusHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, activeProject, lastScanID := orch.SessionStatus()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         status,
			"active_project": activeProject,
			"last_scan_id":   lastScanID,
		})
	}
}
