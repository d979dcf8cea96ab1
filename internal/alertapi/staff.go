package alertapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// staffAction is the request body shared by the lifecycle endpoints.
// staff_id is an opaque identity token reference used for audit attribution.
type staffAction struct {
	StaffID string `json:"staff_id"`
	Note    string `json:"note,omitempty"`
	Text    string `json:"text,omitempty"`
}

func (a *API) decodeStaffAction(w http.ResponseWriter, r *http.Request) (staffAction, bool) {
	var body staffAction
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return staffAction{}, false
	}
	return body, true
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, ok := a.decodeStaffAction(w, r)
	if !ok {
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("roomcompanion.alert.id", id))

	al, err := a.svc.Acknowledge(r.Context(), id, body.StaffID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, al)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, ok := a.decodeStaffAction(w, r)
	if !ok {
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("roomcompanion.alert.id", id))

	al, err := a.svc.Resolve(r.Context(), id, body.StaffID, body.Note)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, al)
}

func (a *API) handleAddNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, ok := a.decodeStaffAction(w, r)
	if !ok {
		return
	}

	al, err := a.svc.AddNote(r.Context(), id, body.StaffID, body.Text)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, al)
}
