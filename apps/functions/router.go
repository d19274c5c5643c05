package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/palmyra-directory/platform/go/middleware"
)

// routeMounter is implemented by the domain handlers.
type routeMounter interface {
	Routes(r chi.Router)
}

// newRouter serves health and metrics unauthenticated; pushAuth guards the
// event and push endpoints and may be nil.
func newRouter(logger *zap.Logger, requestTimeout time.Duration, gatherer prometheus.Gatherer, pushAuth func(http.Handler) http.Handler, mounts ...routeMounter) http.Handler {
	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(requestTimeout),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	rootRouter.Group(func(r chi.Router) {
		if pushAuth != nil {
			r.Use(pushAuth)
		}
		r.Use(platformmiddleware.EventTrace)
		for _, m := range mounts {
			m.Routes(r)
		}
	})

	return rootRouter
}
