package middleware

import (
	"fmt"
	"net/http"

	"pokedex/internal/common/logging"
)

// Recover turns a handler panic into a 500 so one bad request cannot take the process down.
func Recover(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.WithContext(r.Context()).Error("Handler panicked", fmt.Errorf("%v", rec),
						logging.String("method", r.Method),
						logging.String("path", r.URL.Path),
					)
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
