package feedback

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/doorwayhq/doorway-api/internal/types"
)

// Handler exposes the correction/confirmation endpoints.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

type correctionRequest struct {
	Entrance   types.GeoPoint `json:"entrance"`
	Accessible bool           `json:"accessible"`
}

type confirmationRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// SubmitCorrection handles POST /v1/places/{placeID}/corrections.
func (h *Handler) SubmitCorrection(w http.ResponseWriter, r *http.Request) {
	placeID := r.PathValue("placeID")

	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, types.ErrBadRequest)
		return
	}

	correction, err := h.svc.SubmitCorrection(r.Context(), placeID, req.Entrance, req.Accessible)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, correction)
}

// SubmitConfirmation handles POST /v1/places/{placeID}/confirmations.
func (h *Handler) SubmitConfirmation(w http.ResponseWriter, r *http.Request) {
	placeID := r.PathValue("placeID")

	var req confirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, types.ErrBadRequest)
		return
	}

	confirmation, err := h.svc.SubmitConfirmation(r.Context(), placeID, req.Fingerprint)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, confirmation)
}

// Verification handles GET /v1/places/{placeID}/verification.
func (h *Handler) Verification(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.VerificationFor(r.Context(), r.PathValue("placeID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
