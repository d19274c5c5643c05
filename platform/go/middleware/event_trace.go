package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/eventtrace"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
)

// EventTrace populates the context with the invocation's EventInfo and enriches the request logger with it.
// It should run after logging.RequestLogger so the enriched logger replaces the request-scoped one,
// and after the push authentication middleware so the verified caller is recorded.
func EventTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		info := eventtrace.FromHeaders(r.Header, requestID)
		if caller, ok := auth.CallerFromContext(r.Context()); ok {
			info.Caller = caller.Email
		}

		ctx := eventtrace.IntoContext(r.Context(), info)
		if logger, ok := platformlogging.FromContext(ctx); ok {
			ctx = platformlogging.WithLogger(ctx, logger.With(info.Fields()...))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
