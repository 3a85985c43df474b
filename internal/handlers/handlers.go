// Package handlers exposes the FareAround REST API: flight and hotel search,
// price insight, alert lead management and the admin batch trigger.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"farearound/internal/alerts"
	"farearound/internal/amadeus"
	"farearound/internal/common/errors"
	"farearound/internal/common/logging"
	"farearound/internal/config"
	"farearound/internal/storage"
)

// Handlers bundles the dependencies shared by all endpoints.
type Handlers struct {
	client   *amadeus.Client
	alerts   *alerts.Service
	storage  storage.Storage
	config   *config.Config
	logger   logging.Logger
	validate *validator.Validate
}

// New creates the handler set.
func New(client *amadeus.Client, alertService *alerts.Service, store storage.Storage, cfg *config.Config, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Handlers{
		client:   client,
		alerts:   alertService,
		storage:  store,
		config:   cfg,
		logger:   logger,
		validate: validator.New(),
	}
}

// Router builds the API routing table.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search/flights", h.SearchFlights).Methods("GET")
	api.HandleFunc("/search/hotels", h.SearchHotels).Methods("GET")
	api.HandleFunc("/insight", h.GetInsight).Methods("GET")
	api.HandleFunc("/affiliate/info", h.AffiliateInfo).Methods("GET")
	api.HandleFunc("/alerts/leads", h.CreateLead).Methods("POST")
	api.HandleFunc("/alerts/run", h.RunAlerts).Methods("POST")

	return r
}

// Health reports service liveness and storage reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.storage != nil {
		if err := h.storage.Health(); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			h.writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, status)
}

// AffiliateInfo returns the configured affiliate tracking identifiers.
func (h *Handlers) AffiliateInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"affiliate_id": nullable(h.config.AffiliateID),
		"domain":       nullable(h.config.Domain),
	})
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses: validation problems
// are the caller's fault, upstream failures surface as 502 with retries
// already exhausted.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetType(err) {
	case errors.ErrTypeValidation:
		status = http.StatusBadRequest
	case errors.ErrTypeNotFound:
		status = http.StatusNotFound
	case errors.ErrTypeUpstream, errors.ErrTypeAuth:
		status = http.StatusBadGateway
	}

	if status >= 500 {
		h.logger.Error("Request failed", err)
	}

	h.writeJSON(w, status, map[string]string{"detail": err.Error()})
}
