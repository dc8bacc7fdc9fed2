package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/5kyf4ll/molly-project/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ViewReportHandler creates the handler for GET /view_report/{id}. It serves
// a scan's PDF inline. Reports outside the configured root are refused.
func ViewReportHandler(db *store.Store, reportRoot string, logger *zap.Logger) http.HandlerFunc {
	absRoot, err := filepath.Abs(reportRoot)
	if err != nil {
		absRoot = reportRoot
	}

	return func(w http.ResponseWriter, r *http.Request) {
		scanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			errorResponse(w, "ID de escaneo inválido.", http.StatusBadRequest)
			return
		}

		scan, err := db.GetScan(r.Context(), scanID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				errorResponse(w, "Informe no encontrado o no disponible.", http.StatusNotFound)
				return
			}
			logger.Error("failed to load scan", zap.Int64("scan_id", scanID), zap.Error(err))
			errorResponse(w, "Error interno del servidor.", http.StatusInternalServerError)
			return
		}

		if scan.ResultsPath == "" {
			errorResponse(w, "Informe no encontrado o no disponible.", http.StatusNotFound)
			return
		}

		absPath, err := filepath.Abs(scan.ResultsPath)
		if err != nil || !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
			logger.Warn("report path outside report root",
				zap.Int64("scan_id", scanID),
				zap.String("path", scan.ResultsPath))
			errorResponse(w, "Acceso al informe denegado.", http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", "inline")
		http.ServeFile(w, r, absPath)
	}
}
