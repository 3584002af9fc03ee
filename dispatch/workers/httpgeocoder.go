package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	ttlcache "github.com/patrickmn/go-cache"

	"go.fieldcore.build/go/skerr"
	"go.fieldcore.build/go/sklog"
)

// httpClient is the subset of http.Client HTTPGeocoder needs, so tests can
// substitute a fake transport.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPGeocoder implements Geocoder against an external address-resolution
// provider. Mirrors dispatch/routing's provider.doWithRetry shape: POST a
// JSON body, retry transient network/5xx failures with exponential
// backoff, treat 4xx as permanent.
type HTTPGeocoder struct {
	baseURL string
	apiKey  string
	hc      httpClient
}

// NewHTTPGeocoder builds an HTTPGeocoder. If baseURL is empty, Geocode
// always fails - callers in that configuration should not register this
// worker (spec.md §4.8's geocoding task is only meaningful when a provider
// is configured).
func NewHTTPGeocoder(baseURL, apiKey string, hc httpClient) *HTTPGeocoder {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPGeocoder{baseURL: baseURL, apiKey: apiKey, hc: hc}
}

type geocodeRequest struct {
	Address string `json:"address"`
}

type geocodeResponse struct {
	Status string  `json:"status"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	if g.baseURL == "" {
		return Coordinates{}, skerr.Fmt("no geocoding provider configured")
	}
	b, err := json.Marshal(geocodeRequest{Address: address})
	if err != nil {
		return Coordinates{}, skerr.Wrap(err)
	}
	var resp geocodeResponse
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err = backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/geocode", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}
		httpResp, err := g.hc.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode >= 500 {
			return fmt.Errorf("geocoding service returned %d", httpResp.StatusCode)
		}
		if httpResp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("geocoding service returned %d", httpResp.StatusCode))
		}
		return json.NewDecoder(httpResp.Body).Decode(&resp)
	}, policy)
	if err != nil {
		return Coordinates{}, skerr.Wrapf(err, "geocoding %q", address)
	}
	return Coordinates{Lat: resp.Lat, Lng: resp.Lng}, nil
}

const (
	geocodeCacheTTL             = 24 * time.Hour
	geocodeCacheCleanupInterval = time.Hour
)

// CachedGeocoder wraps another Geocoder with an in-memory address→
// coordinates cache, so re-geocoding the same street address (common
// across jobs/customer_locations sharing a building) doesn't re-hit the
// external provider within geocodeCacheTTL.
type CachedGeocoder struct {
	next  Geocoder
	cache *ttlcache.Cache
}

// NewCachedGeocoder builds a CachedGeocoder fronting next.
func NewCachedGeocoder(next Geocoder) *CachedGeocoder {
	return &CachedGeocoder{next: next, cache: ttlcache.New(geocodeCacheTTL, geocodeCacheCleanupInterval)}
}

func (g *CachedGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	if v, ok := g.cache.Get(address); ok {
		return v.(Coordinates), nil
	}
	coords, err := g.next.Geocode(ctx, address)
	if err != nil {
		return Coordinates{}, err
	}
	g.cache.Set(address, coords, ttlcache.DefaultExpiration)
	return coords, nil
}

// LoggingSMSSender and LoggingEmailSender satisfy SMSSender/EmailSender by
// logging the would-be delivery. Concrete SMS/email provider integration
// is out of scope (spec.md Non-goals); these let ReviewRequestDispatcher
// run end to end in every deployment until a real provider is wired in.
type LoggingSMSSender struct{}

func (LoggingSMSSender) SendSMS(ctx context.Context, toPhone, body string) error {
	sklog.Infof("sms to %s: %s", toPhone, body)
	return nil
}

type LoggingEmailSender struct{}

func (LoggingEmailSender) SendEmail(ctx context.Context, toAddress, subject, body string) error {
	sklog.Infof("email to %s [%s]: %s", toAddress, subject, body)
	return nil
}
