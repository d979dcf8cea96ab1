// Package alertapi exposes the triage engine to its external collaborators
// over HTTP: event submission for room devices, lifecycle actions and feed
// queries for the staff portal.
package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

// TriageService defines the business operations alertapi needs.
type TriageService interface {
	Ingest(ctx context.Context, ev event.Event) (*triage.IngestResult, error)
	Acknowledge(ctx context.Context, alertID, staffID string) (*triage.Alert, error)
	Resolve(ctx context.Context, alertID, staffID, note string) (*triage.Alert, error)
	AddNote(ctx context.Context, alertID, staffID, text string) (*triage.Alert, error)
	Get(ctx context.Context, alertID string) (*triage.Alert, bool, error)
	List(ctx context.Context, f triage.Filter) ([]*triage.Alert, error)
	AuditTrail(ctx context.Context, alertID string) ([]triage.AuditEntry, error)
	Summary(ctx context.Context) (map[string]int, error)
	Trends() map[string]int64
}

// Middleware is a chi-compatible HTTP middleware.
type Middleware = func(http.Handler) http.Handler

// API holds dependencies for HTTP handlers.
type API struct {
	logger     log.Logger
	svc        TriageService
	normalizer *event.Normalizer
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, normalizer *event.Normalizer) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if normalizer == nil {
		panic(xerrors.New("event normalizer is required"))
	}
	return &API{
		logger:     logger,
		svc:        svc,
		normalizer: normalizer,
	}
}

// RegisterRoutes attaches API endpoints to the router. deviceAuth guards the
// event submission surface, staffAuth the portal surface; either may be nil.
func (a *API) RegisterRoutes(r chi.Router, deviceAuth, staffAuth Middleware) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if deviceAuth != nil {
				r.Use(deviceAuth)
			}
			r.Post("/events", a.handleIngestEvent)
		})

		r.Group(func(r chi.Router) {
			if staffAuth != nil {
				r.Use(staffAuth)
			}
			r.Get("/alerts", a.handleListAlerts)
			r.Get("/alerts/summary", a.handleSummary)
			r.Get("/alerts/{id}", a.handleGetAlert)
			r.Get("/alerts/{id}/audit", a.handleAlertAudit)
			r.Post("/alerts/{id}/ack", a.handleAcknowledge)
			r.Post("/alerts/{id}/resolve", a.handleResolve)
			r.Post("/alerts/{id}/notes", a.handleAddNote)
			r.Get("/trends", a.handleTrends)
		})
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps typed domain errors to HTTP statuses with a concrete
// reason, so stale portal clients can reconcile ("already resolved") instead
// of showing a generic failure.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *triage.ValidationError
		ure  *triage.UnknownRoomError
		ise  *triage.InvalidStateError
		nfe  *triage.NotFoundError
		sue  *triage.StorageUnavailableError
	)
	switch {
	case errors.As(err, &verr):
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.As(err, &ure):
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": ure.Error()})
	case errors.As(err, &nfe):
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": nfe.Error()})
	case errors.As(err, &ise):
		a.writeJSON(w, http.StatusConflict, map[string]string{"error": ise.Error()})
	case errors.As(err, &sue):
		a.logger.Error(r.Context(), err, "storage unavailable")
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
	default:
		a.logger.Error(r.Context(), err, "internal error")
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
