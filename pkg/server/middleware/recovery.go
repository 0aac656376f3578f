package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// ErrorResponder writes err to the client in the API error format.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// Recovery turns a handler panic into a generic 500 written by respond. The
// panic value and stack are logged, never returned to the client.
func Recovery(respond ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slog.ErrorContext(r.Context(), "panic in handler",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				respond(w, r, fmt.Errorf("panic: %v", rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
