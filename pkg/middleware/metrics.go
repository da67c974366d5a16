package middleware

import (
	"net/http"
	"strings"
	"time"

	"checkpost/pkg/metrics"

	"github.com/julienschmidt/httprouter"
)

const unmatchedRoute = "unmatched"

// Metrics records request counts and latency per route pattern, so
// /api/v1/stops/id/:id is one series however many ids are requested.
func Metrics(router *httprouter.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newStatusWriter(w)

			next.ServeHTTP(wrapped, r)

			metrics.ObserveHTTP(RoutePattern(router, r), r.Method, wrapped.statusCode, time.Since(start))
		})
	}
}

// RoutePattern rebuilds the registered pattern of the route r matches by
// putting the parameter names back in place of their values.
func RoutePattern(router *httprouter.Router, r *http.Request) string {
	if router == nil {
		return r.URL.Path
	}
	handle, params, _ := router.Lookup(r.Method, r.URL.Path)
	if handle == nil {
		return unmatchedRoute
	}
	if len(params) == 0 {
		return r.URL.Path
	}

	segments := strings.Split(r.URL.Path, "/")
	for _, p := range params {
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] == p.Value {
				segments[i] = ":" + p.Key
				break
			}
		}
	}
	return strings.Join(segments, "/")
}
