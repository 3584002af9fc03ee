package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus_MapsEachCode(t *testing.T) {
	cases := []struct {
		build    func() *Error
		wantCode int
	}{
		{func() *Error { return Validation("bad") }, http.StatusBadRequest},
		{func() *Error { return Auth("no") }, http.StatusUnauthorized},
		{func() *Error { return TenantViolation("nope") }, http.StatusNotFound},
		{func() *Error { return NotFound("missing") }, http.StatusNotFound},
		{func() *Error { return Conflict("busy") }, http.StatusConflict},
		{func() *Error { return RateLimited("slow down") }, http.StatusTooManyRequests},
		{func() *Error { return ExternalUnavailable(errors.New("boom"), "down") }, http.StatusBadGateway},
	}
	for _, c := range cases {
		err := c.build()
		assert.Equal(t, c.wantCode, err.HTTPStatus())
	}
}

func TestTenantViolationAndNotFound_BothMapTo404(t *testing.T) {
	// Cross-tenant reads are deliberately indistinguishable from a
	// genuinely missing row at the HTTP layer.
	assert.Equal(t, NotFound("x").HTTPStatus(), TenantViolation("y").HTTPStatus())
}

func TestError_FormatsMessageWithAndWithoutCause(t *testing.T) {
	plain := Validation("field %s required", "email")
	assert.Equal(t, "validation_error: field email required", plain.Error())

	wrapped := ExternalUnavailable(errors.New("timeout"), "routing provider")
	assert.Contains(t, wrapped.Error(), "timeout")
	assert.Contains(t, wrapped.Error(), "routing provider")
}

func TestAs_ExtractsFromWrappedChain(t *testing.T) {
	base := NotFound("job %s", "j1")
	wrapped := fmt.Errorf("loading job: %w", base)
	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, got.Code)
}

func TestAs_FalseForNonAppErr(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestUnwrap_ReturnsCause(t *testing.T) {
	cause := errors.New("root")
	err := ExternalUnavailable(cause, "down")
	assert.Equal(t, cause, errors.Unwrap(err))
}
