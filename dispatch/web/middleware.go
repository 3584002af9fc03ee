// Package web implements the HTTP Surface (spec.md §6): a chi router
// exposing every route over dispatch/*'s domain packages, with bearer-auth
// resolution, panic recovery, rate limiting on unauthenticated endpoints,
// and security headers. Grounded on golden/cmd/baseline_server/
// baseline_server.go's chi.NewRouter + httputils.ReportError-per-handler
// shape; the route-counter-wrapping convention of that file is kept for
// instrumentation (metricsMiddleware below) and regrounded on
// go.fieldcore.build/go/metrics2.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/unrolled/secure"
	"golang.org/x/time/rate"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/auth"
	"go.fieldcore.build/go/httputils"
	"go.fieldcore.build/go/metrics2"
	"go.fieldcore.build/go/sklog"
)

type contextKey string

const authUserKey contextKey = "authUser"
const requestIDKey contextKey = "requestID"

// authUserFrom retrieves the AuthUser a prior middleware resolved.
func authUserFrom(r *http.Request) (auth.AuthUser, bool) {
	u, ok := r.Context().Value(authUserKey).(auth.AuthUser)
	return u, ok
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// requestIDMiddleware assigns every request a request id, surfaced in
// error bodies so a caller can correlate with server-side logs.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverMiddleware converts a panic anywhere downstream into a 500
// response instead of crashing the process, logging the request id for
// correlation (grounded on the teacher's LoggingGzipRequestResponse
// wrapper, which plays the same "never let one request take down the
// server" role for compression/logging).
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				sklog.Errorf("panic handling %s %s [request %s]: %v", r.Method, r.URL.Path, requestIDFrom(r), rec)
				writeError(w, r, apperr.CodeInternal, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the bearer token on every request into an
// AuthUser and stores it on the context. Routes that don't require auth
// (login/register/health/eta) are mounted outside this middleware's
// subrouter.
func authMiddleware(issuer *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := r.Header.Get("Authorization")
			if !strings.HasPrefix(hdr, "Bearer ") {
				writeError(w, r, apperr.CodeAuth, "missing bearer token", http.StatusUnauthorized)
				return
			}
			u, err := issuer.Verify(strings.TrimPrefix(hdr, "Bearer "))
			if err != nil {
				writeError(w, r, apperr.CodeAuth, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), authUserKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitMiddleware applies a per-process token bucket to endpoints that
// cannot be gated behind auth (login, register), mitigating credential
// stuffing and signup abuse (spec.md §6).
func rateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, r, apperr.CodeRateLimited, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// securityHeaders wraps unrolled/secure to set the baseline response
// headers every environment (including -local) should carry.
func securityHeaders(isLocal bool) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		SSLRedirect:          !isLocal,
		IsDevelopment:        isLocal,
	})
	return s.Handler
}

// metricsMiddleware counts requests per route, mirroring the teacher's
// per-route RPC counter wrapping in baseline_server.go.
func metricsMiddleware(routeLabel string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		counter := metrics2.GetCounter("dispatch_web_route_requests", map[string]string{"route": routeLabel})
		latency := metrics2.GetGauge("dispatch_web_route_latency_s", map[string]string{"route": routeLabel})
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			counter.Inc(1)
			start := time.Now()
			next.ServeHTTP(w, r)
			latency.Update(time.Since(start).Seconds())
		})
	}
}

// writeError writes a uniform {error, code, requestId} body (spec.md §6).
func writeError(w http.ResponseWriter, r *http.Request, code apperr.Code, message string, status int) {
	httputils.WriteJSON(w, map[string]interface{}{
		"error":     message,
		"code":      code,
		"requestId": requestIDFrom(r),
	}, status)
}

// handleError maps any error returned from a dispatch/* package to its
// HTTP status via apperr, falling back to 500 for unrecognized errors.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperr.As(err); ok {
		sklog.Warningf("%s %s [request %s]: %s", r.Method, r.URL.Path, requestIDFrom(r), appErr)
		writeError(w, r, appErr.Code, appErr.Message, appErr.HTTPStatus())
		return
	}
	sklog.Errorf("%s %s [request %s]: unhandled error: %s", r.Method, r.URL.Path, requestIDFrom(r), err)
	writeError(w, r, apperr.CodeInternal, "internal error", http.StatusInternalServerError)
}
