package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"farearound/internal/common/errors"
	"farearound/internal/common/logging"
	"farearound/internal/storage"
)

type createLeadRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Origin        string `json:"origin" validate:"required,len=3,alpha"`
	Destination   string `json:"destination" validate:"required,len=3,alpha"`
	DepartureDate string `json:"departure_date" validate:"required,datetime=2006-01-02"`
}

// CreateLead handles POST /api/alerts/leads: it saves (or refreshes) a lead
// for price monitoring.
func (h *Handlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.ValidationError("invalid JSON body"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Origin = strings.ToUpper(strings.TrimSpace(req.Origin))
	req.Destination = strings.ToUpper(strings.TrimSpace(req.Destination))
	req.DepartureDate = strings.TrimSpace(req.DepartureDate)

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, errors.ValidationError(fmt.Sprintf("invalid lead: %v", err)))
		return
	}

	err := h.storage.UpsertLead(r.Context(), storage.Lead{
		Email:         req.Email,
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureDate: req.DepartureDate,
	})
	if err != nil {
		h.writeError(w, errors.InternalError("failed to save alert lead", err))
		return
	}

	h.logger.Info("Saved alert lead",
		logging.String("route", req.Origin+"-"+req.Destination),
		logging.String("departure_date", req.DepartureDate),
	)

	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "saved"})
}

// RunAlerts handles POST /api/alerts/run: it runs the price-drop batch
// synchronously and returns its summary.
func (h *Handlers) RunAlerts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.alerts.CheckPriceDrops(r.Context())
	if err != nil {
		h.writeError(w, errors.InternalError("alert batch failed", err))
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}
