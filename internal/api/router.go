package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantrail/signals/internal/api/handlers"
	"github.com/quantrail/signals/pkg/logger"
)

// NewRouter wires every HTTP endpoint.
func NewRouter(jobHandler *handlers.JobHandler, signalHandler *handlers.SignalHandler, stream *handlers.StreamHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.Enqueue).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.Recent).Methods("GET")
	api.HandleFunc("/jobs/stream", stream.Serve).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.Get).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.Cancel).Methods("DELETE")
	api.HandleFunc("/queue", jobHandler.QueueStatus).Methods("GET")

	// Signal read endpoints
	api.HandleFunc("/companies/{ticker}/signal", signalHandler.GetByTicker).Methods("GET")

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "signals-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
