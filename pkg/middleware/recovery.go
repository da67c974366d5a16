package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "checkpost/pkg/errors"
	httputil "checkpost/pkg/http"
	"checkpost/pkg/logger"
	"checkpost/pkg/metrics"
)

// Recovery turns a handler panic into a 500 envelope. An ingest that panics
// midway may already have stored some rows; the log line carries the
// request id so the batch can be traced.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				metrics.ObservePanic(r.Method)
				log.Error("Panic recovered",
					"request_id", RequestID(r),
					"error", panicError(p),
					"method", r.Method,
					"path", r.URL.Path,
					"content_type", r.Header.Get("Content-Type"),
					"stack", string(debug.Stack()),
				)

				_ = httputil.WriteError(w, apperrors.Internal("Internal server error", panicError(p)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return errors.New(fmt.Sprint(p))
}
