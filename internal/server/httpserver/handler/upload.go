package handler

import (
	"net/http"
	"strconv"

	"github.com/twinisland/filebay/internal/core/domain"
	"github.com/twinisland/filebay/internal/core/service"
	"github.com/twinisland/filebay/internal/telemetry/logger"
)

// handleApply handles POST /api/apply.
func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	resp, err := h.uploads.Apply(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, ApplyResponse{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
	})
}

// handleUpload handles POST /api/upload?token=&offset=. The request body is
// the chunk.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var offset uint64
	if s := q.Get("offset"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			drain(r)
			h.handleServiceError(w, r, domain.ErrInvalidOffset.WithDetails("offset is not a number"))
			return
		}
		offset = v
	}

	resp, err := h.uploads.Upload(r.Context(), &service.UploadRequest{
		Token:  q.Get("token"),
		Offset: offset,
		Body:   r.Body,
	})
	if err != nil {
		logger.L(r.Context()).Debug("upload chunk rejected", "offset", offset, "error", err)
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, UploadResponse{Written: resp.Written})
}

// handleFinalize handles POST /api/finalize?token=&name=.
func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	resp, err := h.uploads.Finalize(r.Context(), &service.FinalizeRequest{
		Token: q.Get("token"),
		Name:  q.Get("name"),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, FinalizeResponse{
		Code:      resp.Code,
		Name:      resp.Name,
		Size:      resp.Size,
		ExpiresAt: resp.ExpiresAt,
	})
}

// handleAbandon handles POST /api/abandon?token=.
func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.uploads.Abandon(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]bool{"abandoned": true})
}
