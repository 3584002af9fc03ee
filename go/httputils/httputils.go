// Package httputils collects the small helpers every JSON handler in this
// repo needs: writing an error body, decoding a request body, and parsing
// pagination parameters. Grounded on the call-site contract of
// go.skia.org/infra/go/httputils as used throughout golden/go/web/web.go
// (httputils.ReportError, httputils.PaginationParams,
// httputils.ResponsePagination) — that package's source was not part of
// the retrieved pack, so the shape below is reconstructed from its callers.
package httputils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.fieldcore.build/go/sklog"
)

// ReportError writes a JSON error body and logs the underlying error
// server-side. The client never sees err's text, only message.
func ReportError(w http.ResponseWriter, err error, message string, status int) {
	sklog.Warningf("%s: %s", message, err)
	WriteJSON(w, map[string]string{"error": message}, status)
}

// WriteJSON marshals v as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		sklog.Errorf("failed to encode JSON response: %s", err)
	}
}

// ParseJSON decodes the request body into v.
func ParseJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ResponsePagination mirrors the offset/size/total shape every list
// endpoint in this repo returns.
type ResponsePagination struct {
	Offset int `json:"offset"`
	Size   int `json:"size"`
	Total  int `json:"total"`
}

// PaginationParams extracts "offset" and "size" from query values, applying
// defaultSize and clamping to maxSize.
func PaginationParams(values url.Values, defaultOffset, defaultSize, maxSize int) (offset, size int, err error) {
	offset = defaultOffset
	size = defaultSize
	if v := values.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", v)
		}
	}
	if v := values.Get("size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size <= 0 {
			return 0, 0, fmt.Errorf("invalid size %q", v)
		}
	}
	if size > maxSize {
		size = maxSize
	}
	return offset, size, nil
}

// ReadyHandleFunc answers liveness/readiness probes with a bare 200.
func ReadyHandleFunc(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
