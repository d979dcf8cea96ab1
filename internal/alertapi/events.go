package alertapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

// handleIngestEvent is the inbound call from the sensing collaborator: a
// single classified event, never raw audio or transcript text.
func (a *API) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var raw event.Event
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	ev, err := a.normalizer.Normalize(raw)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("roomcompanion.event.kind", string(ev.Kind)),
		attribute.String("roomcompanion.event.room", ev.RoomID),
	)

	res, err := a.svc.Ingest(r.Context(), ev)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("roomcompanion.ingest.outcome", string(res.Outcome)))

	status := http.StatusOK
	if res.Outcome == triage.OutcomeCreated {
		status = http.StatusCreated
	}
	a.writeJSON(w, status, res)
}
