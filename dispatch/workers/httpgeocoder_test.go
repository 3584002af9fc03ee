package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHTTPClient struct {
	do func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) { return f.do(req) }

func jsonResponse(status int, body interface{}) *http.Response {
	b, _ := json.Marshal(body)
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(b)), Header: make(http.Header)}
}

func TestHTTPGeocoder_NoBaseURL_ReturnsError(t *testing.T) {
	g := NewHTTPGeocoder("", "", nil)
	_, err := g.Geocode(context.Background(), "1 Main St")
	assert.Error(t, err)
}

func TestHTTPGeocoder_SuccessfulResolve(t *testing.T) {
	hc := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, geocodeResponse{Status: "Ok", Lat: 37.5, Lng: -122.3}), nil
	}}
	g := NewHTTPGeocoder("http://geocode.example", "", hc)
	coords, err := g.Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, Coordinates{Lat: 37.5, Lng: -122.3}, coords)
}

func TestHTTPGeocoder_PermanentFailure_ReturnsError(t *testing.T) {
	hc := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(400, geocodeResponse{}), nil
	}}
	g := NewHTTPGeocoder("http://geocode.example", "", hc)
	_, err := g.Geocode(context.Background(), "bad address")
	assert.Error(t, err)
}

type countingGeocoder struct {
	calls int
}

func (g *countingGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	g.calls++
	return Coordinates{Lat: 1, Lng: 2}, nil
}

func TestCachedGeocoder_SecondCallForSameAddressSkipsNext(t *testing.T) {
	inner := &countingGeocoder{}
	g := NewCachedGeocoder(inner)
	c1, err := g.Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	c2, err := g.Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_DistinctAddressesBothCallNext(t *testing.T) {
	inner := &countingGeocoder{}
	g := NewCachedGeocoder(inner)
	_, err := g.Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	_, err = g.Geocode(context.Background(), "2 Main St")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestLoggingSMSSender_NeverErrors(t *testing.T) {
	assert.NoError(t, LoggingSMSSender{}.SendSMS(context.Background(), "+15551234567", "your tech is on the way"))
}

func TestLoggingEmailSender_NeverErrors(t *testing.T) {
	assert.NoError(t, LoggingEmailSender{}.SendEmail(context.Background(), "a@example.com", "subject", "body"))
}
