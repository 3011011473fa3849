package handlers

import (
	"errors"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/report"
)

// ReportHandler serves the run report and the candidate review output.
type ReportHandler struct {
	layout *event.Layout
}

func NewReportHandler(layout *event.Layout) *ReportHandler {
	return &ReportHandler{layout: layout}
}

// Get returns the processing report of the last run.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	rep, err := report.Load(h.layout.ReportPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(w, http.StatusNotFound, "no processing report found, run the matcher first")
			return
		}
		log.WithError(err).Error("failed to load processing report")
		respondError(w, http.StatusInternalServerError, "failed to load processing report")
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// Review returns the candidate review verdicts if a review has been run.
func (h *ReportHandler) Review(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.layout.ReviewPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(w, http.StatusNotFound, "no candidate review found")
			return
		}
		log.WithError(err).Error("failed to read candidate review")
		respondError(w, http.StatusInternalServerError, "failed to read candidate review")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
