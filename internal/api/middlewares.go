package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/sethvargo/go-limiter/httplimit"
	"github.com/sethvargo/go-limiter/memorystore"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// contextKey namespaces values this package stores on a request context,
// mirroring the teacher's middlewares.ContextKey convention.
type contextKey int

// requestIDContextKey is the key under which the per-request id (set by
// RequestID) is stored.
const requestIDContextKey contextKey = iota

// RequestID stamps every request with a UUID, generalizing the teacher's
// request-scoped context-value middleware pattern from chain-id/address to
// a plain request identifier since this API carries neither.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		rw.Header().Set("X-Request-Id", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey, id))
		next.ServeHTTP(rw, r)
	})
}

// OtelHTTP wraps a handler with OpenTelemetry HTTP server instrumentation,
// the same wrapper the teacher applies to every route (cmd/api/middlewares/otelhttp.go).
func OtelHTTP(operation string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return otelhttp.NewHandler(h, operation)
	}
}

// GzipCompression wraps a handler with response compression, the
// generalization of the teacher's zstd backup compressor (pkg/backup) to
// the Read API's HTTP responses via the same klauspost/compress module.
func GzipCompression(next http.Handler) http.Handler {
	wrap, err := gzhttp.NewWrapper()
	if err != nil {
		// gzhttp.NewWrapper only errors on invalid options; none are set here.
		panic(err)
	}
	return wrap(next)
}

// clientIPKey extracts the caller's IP for rate-limiting, since this API
// has no authenticated-address context key the way the teacher's
// ContextKeyAddress does.
func clientIPKey(r *http.Request) (string, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, nil
	}
	return host, nil
}

// RateLimit builds a per-IP rate-limiting middleware, the direct analogue
// of the teacher's RateLimitController, keyed on client IP instead of an
// authenticated controller address.
func RateLimit(maxRequestsPerInterval uint64, interval time.Duration) (func(http.Handler) http.Handler, error) {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   maxRequestsPerInterval,
		Interval: interval,
	})
	if err != nil {
		return nil, err
	}
	m, err := httplimit.NewMiddleware(store, clientIPKey)
	if err != nil {
		return nil, err
	}
	return m.Handle, nil
}
