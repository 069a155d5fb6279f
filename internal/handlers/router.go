package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
)

// Routes lists the endpoints a binary serves. Nil entries are not mounted.
type Routes struct {
	Mode     string
	Detect   http.HandlerFunc
	Status   http.HandlerFunc
	Feedback http.HandlerFunc
	Metrics  http.Handler
}

// NewRouter mounts routes on a chi mux with request IDs, panic recovery
// and access logging.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, accessLog, chimw.Recoverer)

	r.Get("/health", HandleHealth(rt.Mode))
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics)
	}
	if rt.Detect != nil {
		r.Post("/v1/detect", rt.Detect)
	}
	if rt.Status != nil {
		r.Get("/v1/runs/{runID}", rt.Status)
	}
	if rt.Feedback != nil {
		r.Post("/v1/feedback", rt.Feedback)
	}
	return r
}

func accessLog(next http.Handler) http.Handler {
	log := logger.Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
