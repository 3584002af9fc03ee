package routing

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

func TestGreatCircleEstimate(t *testing.T) {
	sf := LatLng{Lat: 37.7749, Lng: -122.4194}
	la := LatLng{Lat: 34.0522, Lng: -118.2437}
	info := greatCircleEstimate(sf, la)
	assert.True(t, info.Estimated)
	assert.Greater(t, info.DistanceMeters, 0.0)
	assert.Greater(t, info.DurationSeconds, 0.0)
}

func TestGreatCircleEstimate_SamePoint(t *testing.T) {
	p := LatLng{Lat: 10, Lng: 10}
	info := greatCircleEstimate(p, p)
	assert.Equal(t, 0.0, info.DistanceMeters)
	assert.Equal(t, 0.0, info.DurationSeconds)
}

func TestNewClient_EmptyBaseURL_AlwaysFallsBack(t *testing.T) {
	c := NewClient("", "", nil)
	info := c.DriveTime(context.Background(), LatLng{Lat: 1, Lng: 1}, LatLng{Lat: 2, Lng: 2})
	assert.True(t, info.Estimated)
}

func TestDriveTimeMatrix_EmptyBaseURL_FallsBackForEveryDestination(t *testing.T) {
	c := NewClient("", "", nil)
	dests := []LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}, {Lat: 3, Lng: 3}}
	out := c.DriveTimeMatrix(context.Background(), LatLng{Lat: 0, Lng: 0}, dests)
	require.Len(t, out, 3)
	for _, r := range out {
		assert.True(t, r.Estimated)
	}
}

// fakeHTTPClient adapts a func into an httpClient.
type fakeHTTPClient struct {
	do func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) { return f.do(req) }

func jsonResponse(status int, body interface{}) *http.Response {
	b, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(b)),
		Header:     make(http.Header),
	}
}

func TestDriveTime_UpstreamOk_CachesAndReturnsResult(t *testing.T) {
	calls := 0
	hc := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(200, routeResponse{Status: "Ok", DurationSeconds: 300, DistanceMeters: 1000}), nil
	}}
	c := NewClient("http://routing.example", "", hc)
	from, to := LatLng{Lat: 1, Lng: 1}, LatLng{Lat: 2, Lng: 2}

	info1 := c.DriveTime(context.Background(), from, to)
	assert.False(t, info1.Estimated)
	assert.Equal(t, 300.0, info1.DurationSeconds)
	assert.Equal(t, 1, calls)

	// Second call for the same (rounded) pair should hit the cache, not
	// the upstream again.
	info2 := c.DriveTime(context.Background(), from, to)
	assert.Equal(t, info1, info2)
	assert.Equal(t, 1, calls)
}

func TestDriveTime_UpstreamFailure_FallsBackWithoutError(t *testing.T) {
	hc := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(500, routeResponse{}), nil
	}}
	c := NewClient("http://routing.example", "", hc)
	info := c.DriveTime(context.Background(), LatLng{Lat: 1, Lng: 1}, LatLng{Lat: 2, Lng: 2})
	assert.True(t, info.Estimated)
}

func TestDriveTimeCacheKey_RoundsNearbyCoordinatesToSameKey(t *testing.T) {
	a := driveTimeCacheKey(LatLng{Lat: 1.00001, Lng: 2.00001}, LatLng{Lat: 3, Lng: 4})
	b := driveTimeCacheKey(LatLng{Lat: 1.00002, Lng: 2.00002}, LatLng{Lat: 3, Lng: 4})
	assert.Equal(t, a, b)

	c := driveTimeCacheKey(LatLng{Lat: 1.1, Lng: 2.1}, LatLng{Lat: 3, Lng: 4})
	assert.NotEqual(t, a, c)
}

func TestDriveTimeMatrix_PartialCellFailure_FallsBackPerCell(t *testing.T) {
	hc := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, tableResponse{
			Status: "Ok",
			Cells: []*struct {
				Status          string  `json:"status"`
				DurationSeconds float64 `json:"durationSeconds"`
				DistanceMeters  float64 `json:"distanceMeters"`
			}{
				{Status: "Ok", DurationSeconds: 120, DistanceMeters: 500},
				nil,
			},
		}), nil
	}}
	c := NewClient("http://routing.example", "", hc)
	out := c.DriveTimeMatrix(context.Background(), LatLng{Lat: 0, Lng: 0}, []LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}})
	require.Len(t, out, 2)
	assert.False(t, out[0].Estimated)
	assert.True(t, out[1].Estimated)
}
