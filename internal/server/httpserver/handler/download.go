package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/twinisland/filebay/internal/telemetry/logger"
)

// handleDownload handles GET /api/download/{code}.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	resp, err := h.uploads.Download(r.Context(), r.PathValue("code"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(resp.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": resp.Name,
	}))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if n, err := io.Copy(w, resp.Body); err != nil {
		logger.L(r.Context()).Warn("download interrupted", "sent", n, "size", resp.Size, "error", err)
	}
}

// handleConfig handles GET /api/config.
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	limits := h.uploads.Limits()
	h.writeJSON(w, r, http.StatusOK, ConfigResponse{
		MaxBytes:   limits.MaxBytes,
		TTLSeconds: int64(limits.TTL.Seconds()),
	})
}
