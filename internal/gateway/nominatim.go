package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/doorwayhq/doorway-api/internal/geo"
	"github.com/doorwayhq/doorway-api/internal/types"
	"github.com/doorwayhq/doorway-api/pkg/config"
	"github.com/doorwayhq/doorway-api/pkg/observability"
)

// nearBiasRadiusMeters sizes the viewbox hint sent with biased queries.
const nearBiasRadiusMeters = 5000

var _ Geocoder = (*NominatimClient)(nil)

// Geocoder produces normalized geocode results for free-text queries.
type Geocoder interface {
	// Suggest returns ranked candidates without polygon geometry.
	Suggest(ctx context.Context, query string, near *types.GeoPoint) ([]types.GeocodeResult, error)
	// Resolve returns the best candidate with footprint geometry, or
	// types.ErrNotFound when the provider has no match.
	Resolve(ctx context.Context, query string, near *types.GeoPoint) (*types.GeocodeResult, error)
}

// NominatimClient talks to a Nominatim-compatible geocoding endpoint behind a
// read-through TTL cache and a courtesy token bucket. Cache hits never consume
// a token; concurrent identical misses collapse into one upstream call.
type NominatimClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	buckets   *TokenBuckets
	suggests  *cache.Cache
	details   *cache.Cache
	group     singleflight.Group
	logger    *slog.Logger
}

// NewNominatimClient wires the geocoder with its cache and bucket.
func NewNominatimClient(cfg config.UpstreamConfig, buckets *TokenBuckets, logger *slog.Logger) *NominatimClient {
	return &NominatimClient{
		baseURL:   cfg.NominatimBaseURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		buckets:   buckets,
		suggests:  cache.New(cfg.SuggestCacheTTL, 2*cfg.SuggestCacheTTL),
		details:   cache.New(cfg.DetailCacheTTL, 2*cfg.DetailCacheTTL),
		logger:    logger.With(slog.String("component", "nominatim")),
	}
}

// Suggest implements Geocoder.
func (c *NominatimClient) Suggest(ctx context.Context, query string, near *types.GeoPoint) ([]types.GeocodeResult, error) {
	key := requestKey("suggest", query, near)
	if v, ok := c.suggests.Get(key); ok {
		observability.CacheEventsTotal.WithLabelValues("geocode_suggest", observability.CacheHit).Inc()
		return v.([]types.GeocodeResult), nil
	}
	observability.CacheEventsTotal.WithLabelValues("geocode_suggest", observability.CacheMiss).Inc()

	results, err := c.search(ctx, key, query, near, false)
	if err != nil {
		return nil, err
	}
	c.suggests.Set(key, results, cache.DefaultExpiration)
	return results, nil
}

// Resolve implements Geocoder.
func (c *NominatimClient) Resolve(ctx context.Context, query string, near *types.GeoPoint) (*types.GeocodeResult, error) {
	key := requestKey("detail", query, near)
	if v, ok := c.details.Get(key); ok {
		observability.CacheEventsTotal.WithLabelValues("geocode_detail", observability.CacheHit).Inc()
		result := v.(types.GeocodeResult)
		return &result, nil
	}
	observability.CacheEventsTotal.WithLabelValues("geocode_detail", observability.CacheMiss).Inc()

	results, err := c.search(ctx, key, query, near, true)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("geocode %q: %w", query, types.ErrNotFound)
	}
	best := results[0]
	c.details.Set(key, best, cache.DefaultExpiration)
	return &best, nil
}

// search performs the rate-limited upstream call. The singleflight key is the
// cache key, so a thundering herd of identical queries costs one token.
func (c *NominatimClient) search(ctx context.Context, key, query string, near *types.GeoPoint, detail bool) ([]types.GeocodeResult, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		if !c.buckets.Take(BucketGeocode) {
			observability.UpstreamRequestsTotal.WithLabelValues(BucketGeocode, observability.OutcomeRateLimited).Inc()
			return nil, fmt.Errorf("geocode bucket empty: %w", types.ErrRateLimited)
		}
		return c.fetch(ctx, query, near, detail)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.GeocodeResult), nil
}

func (c *NominatimClient) fetch(ctx context.Context, query string, near *types.GeoPoint, detail bool) ([]types.GeocodeResult, error) {
	ctx, span := otel.Tracer("doorway/gateway").Start(ctx, "nominatim.search")
	defer span.End()
	span.SetAttributes(attribute.String("query", query), attribute.Bool("detail", detail))

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "0")
	if detail {
		params.Set("limit", "1")
		params.Set("polygon_geojson", "1")
	} else {
		params.Set("limit", "5")
	}
	if near != nil {
		box := geo.BoxAround(*near, nearBiasRadiusMeters)
		params.Set("viewbox", fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", box.West, box.North, box.East, box.South))
		params.Set("bounded", "0")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(BucketGeocode, observability.OutcomeError).Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: geocode request failed: %v", types.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.UpstreamRequestsTotal.WithLabelValues(BucketGeocode, observability.OutcomeError).Inc()
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("%w: geocode returned %s", types.ErrUpstreamUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(BucketGeocode, observability.OutcomeError).Inc()
		return nil, fmt.Errorf("%w: read geocode response: %v", types.ErrUpstreamUnavailable, err)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(BucketGeocode, observability.OutcomeError).Inc()
		return nil, fmt.Errorf("%w: decode geocode response: %v", types.ErrUpstreamUnavailable, err)
	}
	observability.UpstreamRequestsTotal.WithLabelValues(BucketGeocode, observability.OutcomeOK).Inc()

	results := make([]types.GeocodeResult, 0, len(places))
	for _, place := range places {
		normalized, ok := place.normalize()
		if !ok {
			c.logger.WarnContext(ctx, "dropping malformed geocode candidate",
				slog.String("display_name", place.DisplayName))
			continue
		}
		results = append(results, normalized)
	}
	return results, nil
}

// nominatimPlace is the provider wire shape. It is normalized into
// types.GeocodeResult here and never crosses the gateway boundary.
type nominatimPlace struct {
	DisplayName string           `json:"display_name"`
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	BoundingBox []string         `json:"boundingbox"` // [south, north, west, east]
	GeoJSON     *geoJSONGeometry `json:"geojson,omitempty"`
}

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func (p nominatimPlace) normalize() (types.GeocodeResult, bool) {
	lat, errLat := strconv.ParseFloat(p.Lat, 64)
	lon, errLon := strconv.ParseFloat(p.Lon, 64)
	if errLat != nil || errLon != nil {
		return types.GeocodeResult{}, false
	}
	center := types.GeoPoint{Lat: lat, Lon: lon}
	if !center.Valid() {
		return types.GeocodeResult{}, false
	}

	box := geo.BoxAround(center, nearBiasRadiusMeters)
	if parsed, ok := parseBoundingBox(p.BoundingBox); ok {
		box = parsed
	}
	box = ensureContains(box, center)

	return types.GeocodeResult{
		DisplayName: p.DisplayName,
		Center:      center,
		Box:         box,
		Footprint:   p.GeoJSON.outerRing(),
	}, true
}

func parseBoundingBox(raw []string) (types.BoundingBox, bool) {
	if len(raw) != 4 {
		return types.BoundingBox{}, false
	}
	vals := make([]float64, 4)
	for i, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.BoundingBox{}, false
		}
		vals[i] = f
	}
	box := types.BoundingBox{South: vals[0], North: vals[1], West: vals[2], East: vals[3]}
	box.Normalize()
	return box, true
}

// ensureContains widens the box just enough to honor the invariant that a
// box always contains its center point.
func ensureContains(box types.BoundingBox, center types.GeoPoint) types.BoundingBox {
	if box.Contains(center) {
		return box
	}
	if center.Lon < box.West {
		box.West = center.Lon
	}
	if center.Lon > box.East {
		box.East = center.Lon
	}
	if center.Lat < box.South {
		box.South = center.Lat
	}
	if center.Lat > box.North {
		box.North = center.Lat
	}
	return box
}

// outerRing reduces the geometry to the outer ring of its first polygon.
// Point and line geometries yield no footprint.
func (g *geoJSONGeometry) outerRing() types.Polygon {
	if g == nil {
		return nil
	}
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil
		}
		return ringToPolygon(rings)
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil || len(polys) == 0 {
			return nil
		}
		return ringToPolygon(polys[0])
	default:
		return nil
	}
}

func ringToPolygon(rings [][][]float64) types.Polygon {
	if len(rings) == 0 || len(rings[0]) < 3 {
		return nil
	}
	ring := make(types.Polygon, 0, len(rings[0])+1)
	for _, pair := range rings[0] {
		if len(pair) < 2 {
			return nil
		}
		ring = append(ring, types.GeoPoint{Lat: pair[1], Lon: pair[0]})
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

func requestKey(mode, query string, near *types.GeoPoint) string {
	if near == nil {
		return fmt.Sprintf("%s|%s", mode, query)
	}
	return fmt.Sprintf("%s|%s|%.4f,%.4f", mode, query, near.Lat, near.Lon)
}
