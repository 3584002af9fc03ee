// Package routing implements the Routing Client (spec.md §4.1): drive
// time/distance for one origin to one or many destinations, calling an
// external routing service and falling back to a great-circle estimate
// whenever the upstream is unreachable or returns a partial result.
// Grounded on task_scheduler/go/scheduling/task_scheduler.go's pattern of
// wrapping a flaky external collaborator (the Swarming API) behind a small
// interface with a local fallback path, and on the teacher's use of
// golang.org/x/sync/errgroup to fan out independent upstream calls.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"go.fieldcore.build/go/sklog"
)

const (
	fallbackSpeedKMH = 50.0
	earthRadiusKM    = 6371.0

	// driveTimeCacheSize bounds the single-pair DriveTime cache. A
	// customer's ETA page polls the same job's technician location
	// repeatedly over a short window; caching the last-computed route per
	// coordinate pair (rounded to ~100m) avoids re-querying the upstream
	// provider on every poll at the cost of returning a slightly stale
	// estimate until the entry is evicted.
	driveTimeCacheSize = 512
)

// LatLng is a single coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// RouteInfo is the result of one origin-destination routing query.
type RouteInfo struct {
	DurationSeconds float64
	DistanceMeters  float64
	// Estimated is true when this RouteInfo was produced by the
	// great-circle fallback rather than the upstream routing service.
	Estimated bool
}

// Client is the Routing Client's public contract.
type Client interface {
	DriveTime(ctx context.Context, from, to LatLng) RouteInfo
	DriveTimeMatrix(ctx context.Context, origin LatLng, destinations []LatLng) []RouteInfo
}

// httpClient is the subset of http.Client that Client needs, so tests can
// substitute a fake transport.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// provider is the production Client, backed by an external routing
// service's /route and /table endpoints. BaseURL empty means always use
// the great-circle fallback (no provider configured for this instance).
type provider struct {
	baseURL string
	apiKey  string
	hc      httpClient
	cache   *lru.Cache
}

// NewClient builds a Client. If baseURL is empty, every call uses the
// great-circle fallback without attempting network I/O.
func NewClient(baseURL, apiKey string, hc httpClient) Client {
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Second}
	}
	cache, err := lru.New(driveTimeCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// driveTimeCacheSize never is.
		panic(err)
	}
	return &provider{baseURL: baseURL, apiKey: apiKey, hc: hc, cache: cache}
}

type routeResponse struct {
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"durationSeconds"`
	DistanceMeters  float64 `json:"distanceMeters"`
}

type tableResponse struct {
	Status string `json:"status"`
	Cells  []*struct {
		Status          string  `json:"status"`
		DurationSeconds float64 `json:"durationSeconds"`
		DistanceMeters  float64 `json:"distanceMeters"`
	} `json:"cells"`
}

// DriveTime returns the drive time/distance from from to to. Any upstream
// failure - network error, non-2xx, non-Ok status - falls back to a
// great-circle estimate and never returns an error (spec.md §4.1: "Fallback
// failures never propagate as errors").
func (p *provider) DriveTime(ctx context.Context, from, to LatLng) RouteInfo {
	if p.baseURL == "" {
		return greatCircleEstimate(from, to)
	}
	key := driveTimeCacheKey(from, to)
	if v, ok := p.cache.Get(key); ok {
		return v.(RouteInfo)
	}
	var resp routeResponse
	err := p.doWithRetry(ctx, "/route", map[string]interface{}{
		"from": from, "to": to,
	}, &resp)
	if err != nil || resp.Status != "Ok" {
		if err != nil {
			sklog.Warningf("routing /route call failed, falling back: %s", err)
		}
		return greatCircleEstimate(from, to)
	}
	info := RouteInfo{DurationSeconds: resp.DurationSeconds, DistanceMeters: resp.DistanceMeters}
	p.cache.Add(key, info)
	return info
}

// driveTimeCacheKey rounds each coordinate to ~3 decimal places (roughly
// 100m) so nearby repeated lookups for the same technician/job pair share
// one cache entry despite minor GPS jitter.
func driveTimeCacheKey(from, to LatLng) string {
	round := func(v float64) float64 { return math.Round(v*1000) / 1000 }
	return fmt.Sprintf("%.3f,%.3f->%.3f,%.3f", round(from.Lat), round(from.Lng), round(to.Lat), round(to.Lng))
}

// DriveTimeMatrix returns index-aligned RouteInfo for origin to each of
// destinations, preferring a single batched /table call over N single
// calls (spec.md §4.1: "Batch is strictly preferable to N single calls").
// A null cell in the response, or a failure of the whole call, falls back
// to great-circle per affected index.
func (p *provider) DriveTimeMatrix(ctx context.Context, origin LatLng, destinations []LatLng) []RouteInfo {
	out := make([]RouteInfo, len(destinations))
	if p.baseURL == "" {
		fillFallback(origin, destinations, out)
		return out
	}
	var resp tableResponse
	err := p.doWithRetry(ctx, "/table", map[string]interface{}{
		"origin": origin, "destinations": destinations,
	}, &resp)
	if err != nil || resp.Status != "Ok" || len(resp.Cells) != len(destinations) {
		if err != nil {
			sklog.Warningf("routing /table call failed, falling back for all %d destinations: %s", len(destinations), err)
		}
		fillFallback(origin, destinations, out)
		return out
	}
	g, gctx := errgroup.WithContext(ctx)
	_ = gctx
	for i := range resp.Cells {
		i := i
		g.Go(func() error {
			cell := resp.Cells[i]
			if cell == nil || cell.Status != "Ok" {
				out[i] = greatCircleEstimate(origin, destinations[i])
				return nil
			}
			out[i] = RouteInfo{DurationSeconds: cell.DurationSeconds, DistanceMeters: cell.DistanceMeters}
			return nil
		})
	}
	_ = g.Wait() // each goroutine is pure computation; it never returns an error.
	return out
}

func fillFallback(origin LatLng, destinations []LatLng, out []RouteInfo) {
	for i, d := range destinations {
		out[i] = greatCircleEstimate(origin, d)
	}
}

// doWithRetry posts body to p.baseURL+path and decodes the JSON response
// into out, retrying transient network errors with exponential backoff.
func (p *provider) doWithRetry(ctx context.Context, path string, body interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
		resp, err := p.hc.Do(req)
		if err != nil {
			return err // transient: retry
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("routing service returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("routing service returned %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}, policy)
}

// greatCircleEstimate computes the haversine distance between from and to
// and derives a duration assuming a constant fallbackSpeedKMH, per
// spec.md §4.1.
func greatCircleEstimate(from, to LatLng) RouteInfo {
	distanceKM := haversineKM(from, to)
	hours := distanceKM / fallbackSpeedKMH
	return RouteInfo{
		DurationSeconds: hours * 3600,
		DistanceMeters:  distanceKM * 1000,
		Estimated:       true,
	}
}

func haversineKM(a, b LatLng) float64 {
	lat1, lat2 := degToRad(a.Lat), degToRad(b.Lat)
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
