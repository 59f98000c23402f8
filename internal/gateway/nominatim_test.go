package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorwayhq/doorway-api/internal/types"
	"github.com/doorwayhq/doorway-api/pkg/config"
)

const detailFixture = `[
	{
		"display_name": "123 Example St, Seattle",
		"lat": "47.6",
		"lon": "-122.3",
		"boundingbox": ["47.5995", "47.6005", "-122.3008", "-122.2992"],
		"geojson": {
			"type": "Polygon",
			"coordinates": [[[-122.3005, 47.5997], [-122.2995, 47.5997], [-122.2995, 47.6003], [-122.3005, 47.6003], [-122.3005, 47.5997]]]
		}
	}
]`

func upstreamConfig(baseURL string) config.UpstreamConfig {
	return config.UpstreamConfig{
		NominatimBaseURL:   baseURL,
		UserAgent:          "doorway-test",
		HTTPTimeout:        2 * time.Second,
		SuggestCacheTTL:    time.Minute,
		DetailCacheTTL:     time.Minute,
		RoadCacheTTL:       time.Minute,
		GeocodeBurst:       2,
		GeocodeRefillEvery: time.Hour,
	}
}

func geocodeBuckets(burst int) *TokenBuckets {
	return NewTokenBuckets(map[string]BucketSpec{
		BucketGeocode: {RefillEvery: time.Hour, Burst: burst},
	})
}

func TestResolveNormalizesProviderResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "123 Example St", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("polygon_geojson"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(detailFixture))
	}))
	defer server.Close()

	client := NewNominatimClient(upstreamConfig(server.URL), geocodeBuckets(2), slog.Default())

	result, err := client.Resolve(context.Background(), "123 Example St", nil)
	require.NoError(t, err)
	assert.Equal(t, "123 Example St, Seattle", result.DisplayName)
	assert.InDelta(t, 47.6, result.Center.Lat, 1e-9)
	assert.InDelta(t, -122.3, result.Center.Lon, 1e-9)
	// boundingbox arrives as [south, north, west, east] strings.
	assert.InDelta(t, 47.5995, result.Box.South, 1e-9)
	assert.InDelta(t, -122.3008, result.Box.West, 1e-9)
	assert.True(t, result.Box.Contains(result.Center))
	require.NotNil(t, result.Footprint)
	assert.True(t, result.Footprint.Closed())
}

func TestResolveCacheHitSkipsNetworkAndBucket(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(detailFixture))
	}))
	defer server.Close()

	// Bucket capacity 1: the second call can only succeed via the cache.
	client := NewNominatimClient(upstreamConfig(server.URL), geocodeBuckets(1), slog.Default())

	first, err := client.Resolve(context.Background(), "123 Example St", nil)
	require.NoError(t, err)

	second, err := client.Resolve(context.Background(), "123 Example St", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "cache hit must short-circuit the network call")
	assert.Equal(t, first.DisplayName, second.DisplayName)
}

func TestResolveNoMatchIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewNominatimClient(upstreamConfig(server.URL), geocodeBuckets(2), slog.Default())

	_, err := client.Resolve(context.Background(), "nowhere at all", nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSuggestRateLimitedSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(detailFixture))
	}))
	defer server.Close()

	client := NewNominatimClient(upstreamConfig(server.URL), geocodeBuckets(1), slog.Default())

	_, err := client.Suggest(context.Background(), "first", nil)
	require.NoError(t, err)

	// Different query, so no cache hit; the empty bucket must surface.
	_, err = client.Suggest(context.Background(), "second", nil)
	assert.ErrorIs(t, err, types.ErrRateLimited)
}

func TestResolveUpstreamErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewNominatimClient(upstreamConfig(server.URL), geocodeBuckets(2), slog.Default())

	_, err := client.Resolve(context.Background(), "123 Example St", nil)
	assert.ErrorIs(t, err, types.ErrUpstreamUnavailable)
}

func TestParseBoundingBoxRejectsMalformed(t *testing.T) {
	_, ok := parseBoundingBox([]string{"a", "b", "c", "d"})
	assert.False(t, ok)

	_, ok = parseBoundingBox([]string{"1", "2"})
	assert.False(t, ok)

	box, ok := parseBoundingBox([]string{"47.5", "47.7", "-122.4", "-122.2"})
	require.True(t, ok)
	assert.Equal(t, types.BoundingBox{West: -122.4, South: 47.5, East: -122.2, North: 47.7}, box)
}

func TestOuterRingMultiPolygonTakesFirst(t *testing.T) {
	g := &geoJSONGeometry{
		Type:        "MultiPolygon",
		Coordinates: []byte(`[[[[0,0],[1,0],[1,1],[0,0]]],[[[5,5],[6,5],[6,6],[5,5]]]]`),
	}
	ring := g.outerRing()
	require.NotNil(t, ring)
	assert.True(t, ring.Closed())
	assert.InDelta(t, 0.0, ring[0].Lon, 1e-9)
}
