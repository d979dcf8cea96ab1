package alertapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

// handleListAlerts serves the staff feed: alerts filterable by room, status,
// severity and time range, newest first. Informational events never become
// alerts, so they can never appear here.
func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := triage.Filter{
		RoomID:   q.Get("room"),
		Status:   triage.Status(q.Get("status")),
		Severity: triage.Severity(q.Get("severity")),
	}
	if f.Status != "" && !f.Status.Known() {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + string(f.Status)})
		return
	}
	if f.Severity != "" && !f.Severity.Known() {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown severity " + string(f.Severity)})
		return
	}

	var ok bool
	if f.Since, ok = a.parseTime(w, q.Get("since"), "since"); !ok {
		return
	}
	if f.Until, ok = a.parseTime(w, q.Get("until"), "until"); !ok {
		return
	}

	alerts, err := a.svc.List(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*triage.Alert{}
	}
	a.writeJSON(w, http.StatusOK, alerts)
}

func (a *API) parseTime(w http.ResponseWriter, raw, name string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name + " timestamp, want RFC3339"})
		return time.Time{}, false
	}
	return t, true
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("roomcompanion.alert.id", id))

	al, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	a.writeJSON(w, http.StatusOK, al)
}

func (a *API) handleAlertAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := a.svc.AuditTrail(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []triage.AuditEntry{}
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.svc.Summary(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleTrends(w http.ResponseWriter, r *http.Request) {
	trends := a.svc.Trends()
	if trends == nil {
		trends = map[string]int64{}
	}
	a.writeJSON(w, http.StatusOK, trends)
}
