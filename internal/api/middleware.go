package api

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type RequestObserver interface {
	Request(route string, code int)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// RateLimit rejects requests beyond rps with a burst of burst. A non-positive rps
// disables limiting.
func RateLimit(next http.Handler, rps float64, burst int) http.Handler {
	if rps <= 0 {
		return next
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const unmatchedRoute = "other"

// Observe logs every request and reports its status code under the routes pattern it
// matches. Paths routes does not serve are reported as "other".
func Observe(next http.Handler, routes *http.ServeMux, observer RequestObserver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeLabel(routes, r)
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		if observer != nil {
			observer.Request(route, rec.code)
		}
		slog.Debug("handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"code", rec.code,
			"duration", time.Since(start),
		)
	})
}

func routeLabel(routes *http.ServeMux, r *http.Request) string {
	if routes == nil {
		return unmatchedRoute
	}
	if _, pattern := routes.Handler(r); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}
