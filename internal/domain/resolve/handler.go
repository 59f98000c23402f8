package resolve

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/doorwayhq/doorway-api/internal/types"
)

// Handler exposes the resolution endpoints.
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

// Resolve handles GET /v1/entrances/resolve?q=...&lat=...&lon=...
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, types.ErrBadRequest)
		return
	}
	near, err := parseNear(r)
	if err != nil {
		respondError(w, err)
		return
	}

	response, err := h.svc.ResolveEntrance(r.Context(), query, near)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, response)
}

// Suggest handles GET /v1/geocode/suggest?q=...&lat=...&lon=...
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, types.ErrBadRequest)
		return
	}
	near, err := parseNear(r)
	if err != nil {
		respondError(w, err)
		return
	}

	suggestions, err := h.svc.Suggest(r.Context(), query, near)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// parseNear reads the optional lat/lon bias pair. Both must be present and
// in range, or neither.
func parseNear(r *http.Request) (*types.GeoPoint, error) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return nil, types.ErrBadRequest
	}
	point := types.GeoPoint{Lat: lat, Lon: lon}
	if !point.Valid() {
		return nil, types.ErrBadRequest
	}
	return &point, nil
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
	case errors.Is(err, types.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, types.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
