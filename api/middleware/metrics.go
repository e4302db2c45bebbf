package middleware

import (
	"net/http"
	"time"
)

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Metrics reports every request under its chi route pattern. It should sit
// above the routes so the pattern is complete once next returns.
func Metrics(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if observer == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			observer.ObserveRequest(routePattern(r), r.Method, rec.code(), time.Since(start))
		})
	}
}
