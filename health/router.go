package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter serves the aggregator:
//
//	GET /healthz   liveness, 503 when a liveness check is critical
//	GET /readyz    readiness, 503 unless every readiness check is healthy
//	GET /process   the latest published process snapshot
//	GET /checks/{name}
func NewRouter(a *Aggregator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := a.CheckAll(req.Context())
		code := http.StatusOK
		if status.LivenessStatus != StatusHealthy && status.LivenessStatus != StatusWarning {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		status := a.CheckAll(req.Context())
		code := http.StatusOK
		if status.ReadinessStatus != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})

	r.Get("/process", func(w http.ResponseWriter, req *http.Request) {
		snap, ok := a.Snapshot()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrNoSnapshot.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/checks/{name}", func(w http.ResponseWriter, req *http.Request) {
		result, err := a.CheckOne(req.Context(), chi.URLParam(req, "name"))
		if err != nil {
			code := http.StatusNotFound
			if err == ErrNoSnapshot {
				code = http.StatusServiceUnavailable
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
