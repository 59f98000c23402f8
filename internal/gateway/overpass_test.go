package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorwayhq/doorway-api/internal/types"
	"github.com/doorwayhq/doorway-api/pkg/config"
)

const overpassFixture = `{
	"version": 0.6,
	"generator": "test",
	"osm3s": {"timestamp_osm_base": "2026-08-23T00:00:00Z", "copyright": "test"},
	"elements": [
		{"type": "node", "id": 1, "lat": 47.6001, "lon": -122.3001},
		{"type": "node", "id": 2, "lat": 47.6002, "lon": -122.2999},
		{"type": "node", "id": 3, "lat": 47.5999, "lon": -122.3002},
		{"type": "node", "id": 4, "lat": 47.5998, "lon": -122.2998},
		{"type": "way", "id": 10, "nodes": [1, 2], "tags": {"highway": "footway"}},
		{"type": "way", "id": 11, "nodes": [3, 4], "tags": {"highway": "residential"}},
		{"type": "way", "id": 12, "nodes": [1, 3], "tags": {"highway": "motorway"}}
	]
}`

func overpassTestConfig(url string) config.UpstreamConfig {
	cfg := upstreamConfig("")
	cfg.OverpassURL = url
	return cfg
}

func overpassBuckets(burst int) *TokenBuckets {
	return NewTokenBuckets(map[string]BucketSpec{
		BucketOverpass: {RefillEvery: time.Hour, Burst: burst},
	})
}

func testBox() types.BoundingBox {
	return types.BoundingBox{West: -122.301, South: 47.599, East: -122.299, North: 47.601}
}

func TestFetchPathsClassifiesWays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(overpassFixture))
	}))
	defer server.Close()

	client := NewOverpassClient(overpassTestConfig(server.URL), overpassBuckets(1), slog.Default())

	set, err := client.FetchPaths(context.Background(), testBox())
	require.NoError(t, err)
	require.Len(t, set.Walkable, 1)
	require.Len(t, set.Drivable, 1)
	// The motorway way is unclassified and dropped.
	assert.Equal(t, "way/10", set.Walkable[0].ID)
	assert.Equal(t, "way/11", set.Drivable[0].ID)
	assert.Len(t, set.Walkable[0].Points, 2)
}

func TestFetchPathsCacheHitSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(overpassFixture))
	}))
	defer server.Close()

	client := NewOverpassClient(overpassTestConfig(server.URL), overpassBuckets(1), slog.Default())

	_, err := client.FetchPaths(context.Background(), testBox())
	require.NoError(t, err)
	_, err = client.FetchPaths(context.Background(), testBox())
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "second fetch for the same box must come from cache")
}

func TestFetchPathsLimiterRefusalServesEmpty(t *testing.T) {
	client := NewOverpassClient(overpassTestConfig("http://127.0.0.1:0"), overpassBuckets(0), slog.Default())

	set, err := client.FetchPaths(context.Background(), testBox())
	require.NoError(t, err, "limiter refusal must never fail the pipeline")
	assert.True(t, set.Empty())
}

func TestFetchPathsConcurrentFetchesShareOneToken(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(overpassFixture))
	}))
	defer server.Close()

	// Bucket capacity 1: with the token taken inside the singleflight group,
	// all concurrent fetches for the same box ride the single upstream call.
	client := NewOverpassClient(overpassTestConfig(server.URL), overpassBuckets(1), slog.Default())

	const workers = 4
	sets := make([]*types.PathSet, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			set, err := client.FetchPaths(context.Background(), testBox())
			assert.NoError(t, err)
			sets[i] = set
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, set := range sets {
		require.NotNil(t, set)
		assert.False(t, set.Empty(), "every concurrent caller must see the shared result")
	}
}

func TestFetchPathsUpstreamFailureServesEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOverpassClient(overpassTestConfig(server.URL), overpassBuckets(1), slog.Default())

	set, err := client.FetchPaths(context.Background(), testBox())
	require.NoError(t, err, "upstream failure must degrade, not propagate")
	assert.True(t, set.Empty())
}

func TestClassifyTags(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want roadKind
	}{
		{"footway", map[string]string{"highway": "footway"}, kindWalkable},
		{"path", map[string]string{"highway": "path"}, kindWalkable},
		{"pedestrian street", map[string]string{"highway": "pedestrian"}, kindWalkable},
		{"sidewalk form", map[string]string{"highway": "cycleway", "footway": "sidewalk"}, kindWalkable},
		{"residential", map[string]string{"highway": "residential"}, kindDrivable},
		{"living street", map[string]string{"highway": "living_street"}, kindDrivable},
		{"service", map[string]string{"highway": "service"}, kindDrivable},
		{"motorway dropped", map[string]string{"highway": "motorway"}, kindNone},
		{"untagged dropped", map[string]string{}, kindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyTags(tt.tags))
		})
	}
}

func TestRoadKeyRounds(t *testing.T) {
	a := types.BoundingBox{West: -122.30001, South: 47.59999, East: -122.29899, North: 47.60101}
	b := types.BoundingBox{West: -122.30003, South: 47.59997, East: -122.29901, North: 47.60099}
	assert.Equal(t, roadKey(a), roadKey(b), "near-identical boxes share a cache key")
}
