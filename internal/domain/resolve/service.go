package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/doorwayhq/doorway-api/internal/gateway"
	"github.com/doorwayhq/doorway-api/internal/geo"
	"github.com/doorwayhq/doorway-api/internal/types"
	"github.com/doorwayhq/doorway-api/pkg/config"
	"github.com/doorwayhq/doorway-api/pkg/observability"
)

var _ Service = (*ServiceImpl)(nil)

// Service is the entrance resolution pipeline.
type Service interface {
	// ResolveEntrance produces the best-guess entrance for a free-text query.
	ResolveEntrance(ctx context.Context, query string, near *types.GeoPoint) (*types.EntranceResponse, error)
	// Suggest returns ranked geocode candidates for typeahead.
	Suggest(ctx context.Context, query string, near *types.GeoPoint) ([]Suggestion, error)
	// EvictPlace drops the cached resolution for a place. Called by the
	// feedback service when a correction lands.
	EvictPlace(placeID string)
}

// Suggestion is one typeahead candidate with its stable place id attached so
// the UI can submit feedback against it.
type Suggestion struct {
	PlaceID     string            `json:"placeId"`
	DisplayName string            `json:"displayName"`
	Center      types.GeoPoint    `json:"center"`
	Box         types.BoundingBox `json:"bbox"`
}

// FeedbackReader is the read side of the correction/confirmation store.
type FeedbackReader interface {
	LatestCorrection(ctx context.Context, placeID string) (*types.Correction, error)
	ConfirmationStats(ctx context.Context, placeID string) (types.ConfirmationStats, error)
}

type ServiceImpl struct {
	logger   *slog.Logger
	geocoder gateway.Geocoder
	roads    gateway.RoadFetcher
	feedback FeedbackReader
	cfg      config.ResolverConfig

	// responses caches the heuristic part of a resolution per place.
	// Corrections and confirmation stats are overlaid fresh on every read.
	responses *cache.Cache
}

func NewServiceImpl(
	geocoder gateway.Geocoder,
	roads gateway.RoadFetcher,
	feedback FeedbackReader,
	cfg config.ResolverConfig,
	logger *slog.Logger,
) *ServiceImpl {
	return &ServiceImpl{
		logger:    logger.With(slog.String("component", "resolver")),
		geocoder:  geocoder,
		roads:     roads,
		feedback:  feedback,
		cfg:       cfg,
		responses: cache.New(cfg.ResponseCacheTTL, 2*cfg.ResponseCacheTTL),
	}
}

// heuristicResult is what the tiers produce before feedback is overlaid.
type heuristicResult struct {
	placeID   string
	name      string
	center    types.GeoPoint
	box       types.BoundingBox
	estimate  types.EntranceEstimate
	dropoff   *types.GeoPoint
	footprint types.Polygon
	paths     []types.PathSegment
}

// ResolveEntrance implements Service.
func (s *ServiceImpl) ResolveEntrance(ctx context.Context, query string, near *types.GeoPoint) (*types.EntranceResponse, error) {
	ctx, span := otel.Tracer("doorway/resolve").Start(ctx, "resolve.entrance")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	geocoded, err := s.geocoder.Resolve(ctx, query, near)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", query, err)
	}

	placeID := types.PlaceIDFor(geocoded.DisplayName, geocoded.Center)

	var result *heuristicResult
	if v, ok := s.responses.Get(placeID); ok {
		observability.CacheEventsTotal.WithLabelValues("responses", observability.CacheHit).Inc()
		result = v.(*heuristicResult)
	} else {
		observability.CacheEventsTotal.WithLabelValues("responses", observability.CacheMiss).Inc()
		result = s.runTiers(ctx, placeID, geocoded)
		s.responses.Set(placeID, result, cache.DefaultExpiration)
	}

	response := s.assemble(ctx, result)
	span.SetAttributes(
		attribute.String("method", response.Method),
		attribute.String("confidence", string(response.Entrance.Confidence)),
	)
	observability.ResolutionsTotal.WithLabelValues(response.Method, string(response.Entrance.Confidence)).Inc()
	return response, nil
}

// runTiers executes the heuristic pipeline: tighten the search box, fetch
// road/path context, then try each tier in order until one produces a point.
func (s *ServiceImpl) runTiers(ctx context.Context, placeID string, geocoded *types.GeocodeResult) *heuristicResult {
	footprint := geocoded.Footprint

	// The anchor candidate: footprint centroid when known, else the
	// geocoded center.
	anchorBase := geocoded.Center
	if c, ok := geo.Centroid(footprint); ok {
		anchorBase = c
	}

	// Coarse geocodes come back with useless admin-boundary boxes. Replace
	// anything over the sanity threshold with a building-scale box.
	box := geocoded.Box
	if box.AreaDeg2() > s.cfg.MaxGeocodeBoxAreaDeg2 {
		s.logger.DebugContext(ctx, "replacing oversized geocoder bbox",
			slog.String("place_id", placeID),
			slog.Float64("area_deg2", box.AreaDeg2()))
		box = geo.BoxAround(anchorBase, s.cfg.TightBoxRadiusMeters)
	}

	paths, err := s.roads.FetchPaths(ctx, box)
	if err != nil {
		// Road context is best effort; Tier B covers its absence.
		s.logger.WarnContext(ctx, "road fetch failed, continuing without paths",
			slog.String("place_id", placeID), slog.Any("error", err))
		paths = &types.PathSet{}
	}

	// Clamping the anchor onto the footprint boundary keeps the nearest-path
	// search from drifting toward the center of oddly shaped buildings.
	anchor := anchorBase
	if len(footprint) > 0 {
		anchor = geo.ClampToBoundary(anchorBase, footprint)
	}

	estimate, ok := s.tierPolygonPath(anchor, footprint, paths)
	if !ok {
		estimate = s.tierBBoxFallback(geocoded.Center, footprint)
	}

	return &heuristicResult{
		placeID:   placeID,
		name:      geocoded.DisplayName,
		center:    geocoded.Center,
		box:       box,
		estimate:  estimate,
		dropoff:   s.dropoffFor(estimate.Point, paths),
		footprint: footprint,
		paths:     paths.Walkable,
	}
}

// tierPolygonPath projects the anchor onto the nearest walkable path and
// clamps the projection back onto the footprint boundary, or onto a
// building-scale synthetic box when no footprint exists. Confidence is
// scored by the raw anchor-to-path distance.
func (s *ServiceImpl) tierPolygonPath(anchor types.GeoPoint, footprint types.Polygon, paths *types.PathSet) (types.EntranceEstimate, bool) {
	proj, ok := nearestAcross(anchor, paths.Walkable)
	if !ok {
		return types.EntranceEstimate{}, false
	}

	ring := footprint
	if len(ring) == 0 {
		ring = geo.SyntheticBoxPolygon(anchor, s.cfg.FallbackBoxRadiusMeters)
	}
	point := geo.ClampToBoundary(proj.Point, ring)

	confidence := types.ConfidenceMedium
	if proj.Distance < s.cfg.NearPathHighConfidenceMeters {
		confidence = types.ConfidenceHigh
	}
	return types.EntranceEstimate{
		Point:      point,
		Method:     types.MethodPolygonPath,
		Confidence: confidence,
	}, true
}

// tierBBoxFallback clamps the geocoded center onto the footprint, or onto a
// synthetic building-scale box when no footprint exists. Always succeeds.
func (s *ServiceImpl) tierBBoxFallback(center types.GeoPoint, footprint types.Polygon) types.EntranceEstimate {
	ring := footprint
	if len(ring) == 0 {
		ring = geo.SyntheticBoxPolygon(center, s.cfg.FallbackBoxRadiusMeters)
	}
	return types.EntranceEstimate{
		Point:      geo.ClampToBoundary(center, ring),
		Method:     types.MethodBBoxFallback,
		Confidence: types.ConfidenceLow,
	}
}

func (s *ServiceImpl) dropoffFor(entrance types.GeoPoint, paths *types.PathSet) *types.GeoPoint {
	proj, ok := nearestAcross(entrance, paths.Drivable)
	if !ok {
		return nil
	}
	point := proj.Point
	return &point
}

func nearestAcross(p types.GeoPoint, segments []types.PathSegment) (geo.ChainProjection, bool) {
	var best geo.ChainProjection
	found := false
	for _, segment := range segments {
		proj, ok := geo.NearestPointOnChain(p, segment.Points)
		if !ok {
			continue
		}
		if !found || proj.Distance < best.Distance {
			best = proj
			found = true
		}
	}
	return best, found
}

// assemble overlays feedback onto the heuristic result. A stored correction
// supersedes the heuristic entirely; store trouble degrades to the heuristic
// answer rather than failing the resolution.
func (s *ServiceImpl) assemble(ctx context.Context, h *heuristicResult) *types.EntranceResponse {
	response := &types.EntranceResponse{
		ID:     h.placeID,
		Name:   h.name,
		Center: h.center,
		Box:    h.box,
		Method: h.estimate.Method,
		Entrance: types.EntrancePoint{
			Lat:        h.estimate.Point.Lat,
			Lon:        h.estimate.Point.Lon,
			Confidence: h.estimate.Confidence,
		},
		Dropoff: h.dropoff,
		Paths:   make([]types.GeoJSONLine, 0, len(h.paths)),
	}
	if len(h.footprint) > 0 {
		response.Footprint = h.footprint.GeoJSON()
	}
	for _, segment := range h.paths {
		response.Paths = append(response.Paths, segment.GeoJSON())
	}

	correction, err := s.feedback.LatestCorrection(ctx, h.placeID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read correction, using heuristic",
			slog.String("place_id", h.placeID), slog.Any("error", err))
	}
	if correction != nil {
		response.Method = types.MethodUserCorrection
		response.Entrance = types.EntrancePoint{
			Lat:        correction.Entrance.Lat,
			Lon:        correction.Entrance.Lon,
			Confidence: types.ConfidenceHigh,
			Accessible: correction.Accessible,
		}
	}

	stats, err := s.feedback.ConfirmationStats(ctx, h.placeID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read confirmation stats",
			slog.String("place_id", h.placeID), slog.Any("error", err))
	} else {
		response.VerifiedCount = stats.Count
		response.LastVerifiedAt = stats.LastConfirmedAt
	}

	return response
}

// Suggest implements Service.
func (s *ServiceImpl) Suggest(ctx context.Context, query string, near *types.GeoPoint) ([]Suggestion, error) {
	candidates, err := s.geocoder.Suggest(ctx, query, near)
	if err != nil {
		return nil, fmt.Errorf("suggest %q: %w", query, err)
	}

	suggestions := make([]Suggestion, 0, len(candidates))
	for _, candidate := range candidates {
		suggestions = append(suggestions, Suggestion{
			PlaceID:     types.PlaceIDFor(candidate.DisplayName, candidate.Center),
			DisplayName: candidate.DisplayName,
			Center:      candidate.Center,
			Box:         candidate.Box,
		})
	}
	return suggestions, nil
}

// EvictPlace implements Service.
func (s *ServiceImpl) EvictPlace(placeID string) {
	s.responses.Delete(placeID)
}
