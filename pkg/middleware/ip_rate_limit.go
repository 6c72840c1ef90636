package middleware

import (
	"net/http"
	"time"

	apperrors "medislot/pkg/errors"
	"medislot/pkg/logger"

	"github.com/go-chi/httprate"
)

// IPRateLimit is a fixed window limiter keyed by client IP. Rejections use the
// standard error body.
func IPRateLimit(requests int, window time.Duration, log *logger.Logger) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.Warn("IP rate limit exceeded",
				"request_id", RequestID(r.Context()),
				"path", r.URL.Path,
			)
			if err := apperrors.WriteError(w, apperrors.RateLimited("Too many requests, please try again later")); err != nil {
				log.Error("failed to write error response", "handler", "IPRateLimit", "operation", "WriteError", "error", err)
			}
		}),
	)
}
