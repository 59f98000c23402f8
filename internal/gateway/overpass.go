package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	overpass "github.com/serjvanilla/go-overpass"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/doorwayhq/doorway-api/internal/types"
	"github.com/doorwayhq/doorway-api/pkg/config"
	"github.com/doorwayhq/doorway-api/pkg/observability"
)

var _ RoadFetcher = (*OverpassClient)(nil)

// RoadFetcher returns the classified road/path context for a search box.
// Implementations degrade instead of failing: on upstream trouble the last
// cached set is served, else an empty set — never an error that would block
// the resolution pipeline.
type RoadFetcher interface {
	FetchPaths(ctx context.Context, box types.BoundingBox) (*types.PathSet, error)
}

// staleRetention keeps expired road sets around so limiter refusals and
// upstream outages can still serve the last known data.
const staleRetention = 24 * time.Hour

// OverpassClient queries an Overpass endpoint for walkable paths and drivable
// roads inside a bounding box, behind a TTL cache keyed by the rounded box
// and the strictest courtesy bucket in the gateway.
type OverpassClient struct {
	client   *overpass.Client
	buckets  *TokenBuckets
	roads    *cache.Cache
	group    singleflight.Group
	logger   *slog.Logger
	freshFor time.Duration
	timeout  time.Duration
}

type cachedRoads struct {
	set       *types.PathSet
	fetchedAt time.Time
}

// NewOverpassClient wires the road/path fetcher.
func NewOverpassClient(cfg config.UpstreamConfig, buckets *TokenBuckets, logger *slog.Logger) *OverpassClient {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client := overpass.NewWithSettings(cfg.OverpassURL, 1, httpClient)
	return &OverpassClient{
		client:   &client,
		buckets:  buckets,
		roads:    cache.New(staleRetention, 2*staleRetention),
		logger:   logger.With(slog.String("component", "overpass")),
		freshFor: cfg.RoadCacheTTL,
		timeout:  cfg.HTTPTimeout,
	}
}

// FetchPaths implements RoadFetcher.
func (c *OverpassClient) FetchPaths(ctx context.Context, box types.BoundingBox) (*types.PathSet, error) {
	key := roadKey(box)

	if entry, ok := c.lookup(key); ok && time.Since(entry.fetchedAt) < c.freshFor {
		observability.CacheEventsTotal.WithLabelValues("roads", observability.CacheHit).Inc()
		return entry.set, nil
	}
	observability.CacheEventsTotal.WithLabelValues("roads", observability.CacheMiss).Inc()

	// The token is taken inside the singleflight group so concurrent
	// identical fetches cost one token, not one each.
	v, err, _ := c.group.Do(key, func() (any, error) {
		if !c.buckets.Take(BucketOverpass) {
			return nil, fmt.Errorf("road bucket empty: %w", types.ErrRateLimited)
		}
		return c.query(ctx, box)
	})
	if errors.Is(err, types.ErrRateLimited) {
		observability.UpstreamRequestsTotal.WithLabelValues(BucketOverpass, observability.OutcomeRateLimited).Inc()
		return c.degrade(ctx, key, "road bucket empty"), nil
	}
	if err != nil {
		c.logger.WarnContext(ctx, "overpass query failed, degrading",
			slog.String("bbox", key), slog.Any("error", err))
		observability.UpstreamRequestsTotal.WithLabelValues(BucketOverpass, observability.OutcomeError).Inc()
		return c.degrade(ctx, key, "overpass query failed"), nil
	}
	observability.UpstreamRequestsTotal.WithLabelValues(BucketOverpass, observability.OutcomeOK).Inc()

	set := v.(*types.PathSet)
	c.roads.Set(key, cachedRoads{set: set, fetchedAt: time.Now()}, cache.DefaultExpiration)
	return set, nil
}

func (c *OverpassClient) lookup(key string) (cachedRoads, bool) {
	v, ok := c.roads.Get(key)
	if !ok {
		return cachedRoads{}, false
	}
	return v.(cachedRoads), true
}

// degrade serves the last cached set if any, else an empty set.
func (c *OverpassClient) degrade(ctx context.Context, key, reason string) *types.PathSet {
	if entry, ok := c.lookup(key); ok {
		observability.CacheEventsTotal.WithLabelValues("roads", observability.CacheStale).Inc()
		c.logger.InfoContext(ctx, "serving stale road data",
			slog.String("bbox", key), slog.String("reason", reason))
		return entry.set
	}
	c.logger.InfoContext(ctx, "no road data available",
		slog.String("bbox", key), slog.String("reason", reason))
	return &types.PathSet{}
}

func (c *OverpassClient) query(ctx context.Context, box types.BoundingBox) (*types.PathSet, error) {
	_, span := otel.Tracer("doorway/gateway").Start(ctx, "overpass.query")
	defer span.End()
	span.SetAttributes(attribute.String("bbox", roadKey(box)))

	bbox := fmt.Sprintf("%f,%f,%f,%f", box.South, box.West, box.North, box.East)
	query := fmt.Sprintf(`
		[out:json][timeout:%d];
		(
			way["highway"~"^(footway|path|pedestrian)$"](%s);
			way["footway"="sidewalk"](%s);
			way["highway"~"^(residential|tertiary|secondary|primary|service|living_street)$"](%s);
		);
		out body;
		>;
		out skel qt;
	`, int(c.timeout.Seconds()), bbox, bbox, bbox)

	result, err := c.client.Query(query)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: overpass query: %v", types.ErrUpstreamUnavailable, err)
	}
	return classifyResult(&result), nil
}

// classifyResult splits raw ways into walkable and drivable segments.
// Unclassified tags are dropped. Output order is deterministic.
func classifyResult(result *overpass.Result) *types.PathSet {
	set := &types.PathSet{}

	ids := make([]int64, 0, len(result.Ways))
	for id := range result.Ways {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		way := result.Ways[id]
		if way == nil || len(way.Nodes) < 2 {
			continue
		}
		kind := classifyTags(way.Tags)
		if kind == kindNone {
			continue
		}

		points := make([]types.GeoPoint, 0, len(way.Nodes))
		for _, node := range way.Nodes {
			if node == nil {
				continue
			}
			points = append(points, types.GeoPoint{Lat: node.Lat, Lon: node.Lon})
		}
		if len(points) < 2 {
			continue
		}

		segment := types.PathSegment{ID: fmt.Sprintf("way/%d", id), Points: points}
		switch kind {
		case kindWalkable:
			set.Walkable = append(set.Walkable, segment)
		case kindDrivable:
			set.Drivable = append(set.Drivable, segment)
		}
	}
	return set
}

type roadKind int

const (
	kindNone roadKind = iota
	kindWalkable
	kindDrivable
)

func classifyTags(tags map[string]string) roadKind {
	switch tags["highway"] {
	case "footway", "path", "pedestrian":
		return kindWalkable
	case "residential", "tertiary", "secondary", "primary", "service", "living_street":
		return kindDrivable
	}
	if tags["footway"] == "sidewalk" {
		return kindWalkable
	}
	return kindNone
}

// roadKey rounds the box to four decimals (~11 m) so nearby requests share a
// cache entry.
func roadKey(box types.BoundingBox) string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", box.West, box.South, box.East, box.North)
}
