package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kidomigon/nursing-home-ai/internal/authmw"
	"github.com/Kidomigon/nursing-home-ai/internal/event"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeService returns canned responses so handler behavior can be tested in
// isolation from the real triage engine.
type fakeService struct {
	ingest      func(ev event.Event) (*triage.IngestResult, error)
	acknowledge func(alertID, staffID string) (*triage.Alert, error)
	resolve     func(alertID, staffID, note string) (*triage.Alert, error)
	addNote     func(alertID, staffID, text string) (*triage.Alert, error)
	get         func(alertID string) (*triage.Alert, bool, error)
	list        func(f triage.Filter) ([]*triage.Alert, error)
	audit       func(alertID string) ([]triage.AuditEntry, error)
	summary     func() (map[string]int, error)
	trends      func() map[string]int64
}

func (s *fakeService) Ingest(_ context.Context, ev event.Event) (*triage.IngestResult, error) {
	return s.ingest(ev)
}

func (s *fakeService) Acknowledge(_ context.Context, alertID, staffID string) (*triage.Alert, error) {
	return s.acknowledge(alertID, staffID)
}

func (s *fakeService) Resolve(_ context.Context, alertID, staffID, note string) (*triage.Alert, error) {
	return s.resolve(alertID, staffID, note)
}

func (s *fakeService) AddNote(_ context.Context, alertID, staffID, text string) (*triage.Alert, error) {
	return s.addNote(alertID, staffID, text)
}

func (s *fakeService) Get(_ context.Context, alertID string) (*triage.Alert, bool, error) {
	return s.get(alertID)
}

func (s *fakeService) List(_ context.Context, f triage.Filter) ([]*triage.Alert, error) {
	return s.list(f)
}

func (s *fakeService) AuditTrail(_ context.Context, alertID string) ([]triage.AuditEntry, error) {
	return s.audit(alertID)
}

func (s *fakeService) Summary(_ context.Context) (map[string]int, error) {
	return s.summary()
}

func (s *fakeService) Trends() map[string]int64 {
	return s.trends()
}

func sampleAlert(id string) *triage.Alert {
	return &triage.Alert{
		ID:              id,
		RoomID:          "204",
		ResidentRef:     "res-0017",
		Severity:        triage.SeverityEmergency,
		Kind:            event.KindHelpCall,
		OccurrenceCount: 1,
		Status:          triage.StatusNew,
		CreatedAt:       testNow,
		LastSeenAt:      testNow,
	}
}

func newTestServer(t *testing.T, svc TriageService, deviceAuth, staffAuth Middleware) *httptest.Server {
	t.Helper()
	normalizer := event.NewNormalizer(5 * time.Minute).WithNow(func() time.Time { return testNow })
	api := New(nil, svc, normalizer)
	r := chi.NewRouter()
	api.RegisterRoutes(r, deviceAuth, staffAuth)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("{}")
	} else {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func eventBody(kind string, confidence float64) string {
	b, _ := json.Marshal(event.Event{
		RoomID:      "204",
		Kind:        event.Kind(kind),
		Confidence:  confidence,
		ObservedAt:  testNow,
		Explanation: "resident called for help",
	})
	return string(b)
}

func TestIngestEventStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  *triage.IngestResult
		err     error
		body    string
		want    int
		outcome string
	}{
		{
			name:    "created",
			result:  &triage.IngestResult{AlertID: "a1", Outcome: triage.OutcomeCreated},
			body:    eventBody("HELP_CALL", 0.9),
			want:    http.StatusCreated,
			outcome: "created",
		},
		{
			name:    "merged",
			result:  &triage.IngestResult{AlertID: "a1", Outcome: triage.OutcomeMerged},
			body:    eventBody("HELP_CALL", 0.9),
			want:    http.StatusOK,
			outcome: "merged",
		},
		{
			name:    "suppressed",
			result:  &triage.IngestResult{Outcome: triage.OutcomeSuppressed},
			body:    eventBody("ORIENTATION_QUESTION", 0.95),
			want:    http.StatusOK,
			outcome: "suppressed",
		},
		{
			name: "unknown room",
			err:  &triage.UnknownRoomError{RoomID: "204"},
			body: eventBody("HELP_CALL", 0.9),
			want: http.StatusNotFound,
		},
		{
			name: "storage down",
			err:  &triage.StorageUnavailableError{Err: errors.New("conn refused")},
			body: eventBody("HELP_CALL", 0.9),
			want: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeService{ingest: func(event.Event) (*triage.IngestResult, error) {
				return tc.result, tc.err
			}}
			srv := newTestServer(t, svc, nil, nil)

			resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/events", tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
			if tc.outcome != "" {
				var got triage.IngestResult
				if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if string(got.Outcome) != tc.outcome {
					t.Errorf("outcome = %s, want %s", got.Outcome, tc.outcome)
				}
			}
		})
	}
}

func TestIngestEventRejectsBeforeService(t *testing.T) {
	t.Parallel()

	svc := &fakeService{ingest: func(event.Event) (*triage.IngestResult, error) {
		t.Error("service called for an invalid event")
		return nil, nil
	}}
	srv := newTestServer(t, svc, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"missing room", `{"kind":"HELP_CALL","confidence":0.9,"observed_at":"` + testNow.Format(time.RFC3339) + `"}`},
		{"unknown kind", eventBody("SHOUTING", 0.9)},
		{"confidence out of range", eventBody("HELP_CALL", 1.5)},
		{"stale timestamp", `{"room_id":"204","kind":"HELP_CALL","confidence":0.9,"observed_at":"2020-01-01T00:00:00Z"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/events", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestStaffActionStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"not found", &triage.NotFoundError{AlertID: "a1"}, http.StatusNotFound},
		{"state conflict", &triage.InvalidStateError{AlertID: "a1", Status: triage.StatusResolved, Op: "acknowledge"}, http.StatusConflict},
		{"validation", &triage.ValidationError{Field: "staff_id", Reason: "must not be empty"}, http.StatusBadRequest},
		{"storage down", &triage.StorageUnavailableError{Err: errors.New("conn refused")}, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeService{
				acknowledge: func(alertID, staffID string) (*triage.Alert, error) {
					if tc.err != nil {
						return nil, tc.err
					}
					al := sampleAlert(alertID)
					al.Status = triage.StatusAcknowledged
					al.AcknowledgedBy = staffID
					return al, nil
				},
			}
			srv := newTestServer(t, svc, nil, nil)

			resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/alerts/a1/ack", `{"staff_id":"staff-7"}`)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestResolvePassesNote(t *testing.T) {
	t.Parallel()

	var gotNote string
	svc := &fakeService{
		resolve: func(alertID, staffID, note string) (*triage.Alert, error) {
			gotNote = note
			al := sampleAlert(alertID)
			al.Status = triage.StatusResolved
			al.ResolvedBy = staffID
			return al, nil
		},
	}
	srv := newTestServer(t, svc, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/alerts/a1/resolve",
		`{"staff_id":"staff-8","note":"false alarm"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if gotNote != "false alarm" {
		t.Errorf("note = %q", gotNote)
	}
}

func TestAddNote(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		addNote: func(alertID, staffID, text string) (*triage.Alert, error) {
			al := sampleAlert(alertID)
			al.Notes = []triage.Note{{Author: staffID, Text: text, At: testNow}}
			return al, nil
		},
	}
	srv := newTestServer(t, svc, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/alerts/a1/notes",
		`{"staff_id":"staff-8","text":"family notified"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var al triage.Alert
	if err := json.NewDecoder(resp.Body).Decode(&al); err != nil {
		t.Fatal(err)
	}
	if len(al.Notes) != 1 || al.Notes[0].Text != "family notified" {
		t.Errorf("notes = %+v", al.Notes)
	}
}

func TestListAlerts(t *testing.T) {
	t.Parallel()

	var gotFilter triage.Filter
	svc := &fakeService{
		list: func(f triage.Filter) ([]*triage.Alert, error) {
			gotFilter = f
			return []*triage.Alert{sampleAlert("a1")}, nil
		},
	}
	srv := newTestServer(t, svc, nil, nil)

	resp := doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/alerts?room=204&status=NEW&severity=EMERGENCY&since=2026-03-10T00:00:00Z", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if gotFilter.RoomID != "204" || gotFilter.Status != triage.StatusNew || gotFilter.Severity != triage.SeverityEmergency {
		t.Errorf("filter = %+v", gotFilter)
	}
	if gotFilter.Since.IsZero() {
		t.Error("since not parsed")
	}

	var alerts []*triage.Alert
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].ID != "a1" {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestListAlertsBadQuery(t *testing.T) {
	t.Parallel()

	svc := &fakeService{list: func(triage.Filter) ([]*triage.Alert, error) {
		t.Error("service called for an invalid filter")
		return nil, nil
	}}
	srv := newTestServer(t, svc, nil, nil)

	for _, q := range []string{"?status=BOGUS", "?severity=LOUD", "?since=yesterday"} {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/alerts"+q, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("query %s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestListAlertsEmptyIsArray(t *testing.T) {
	t.Parallel()

	svc := &fakeService{list: func(triage.Filter) ([]*triage.Alert, error) { return nil, nil }}
	srv := newTestServer(t, svc, nil, nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/alerts", "")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(body)); got != "[]" {
		t.Errorf("body = %q, want empty JSON array", got)
	}
}

func TestGetAlert(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		get: func(alertID string) (*triage.Alert, bool, error) {
			if alertID == "a1" {
				return sampleAlert("a1"), true, nil
			}
			return nil, false, nil
		},
	}
	srv := newTestServer(t, svc, nil, nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/alerts/a1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/alerts/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAlertAudit(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		audit: func(alertID string) ([]triage.AuditEntry, error) {
			return []triage.AuditEntry{
				{AlertID: alertID, Transition: triage.TransitionCreated, Actor: triage.ActorSystem, At: testNow},
			}, nil
		},
	}
	srv := newTestServer(t, svc, nil, nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/alerts/a1/audit", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var entries []triage.AuditEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Transition != triage.TransitionCreated {
		t.Errorf("entries = %+v", entries)
	}
}

func TestSummaryAndTrends(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		summary: func() (map[string]int, error) {
			return map[string]int{"total": 2, "NEW": 1, "ACKNOWLEDGED": 1}, nil
		},
		trends: func() map[string]int64 {
			return map[string]int64{"204/ORIENTATION_QUESTION": 5}
		},
	}
	srv := newTestServer(t, svc, nil, nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/alerts/summary", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d", resp.StatusCode)
	}
	var sum map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum["total"] != 2 {
		t.Errorf("summary = %v", sum)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/trends", "")
	var trends map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&trends); err != nil {
		t.Fatal(err)
	}
	if trends["204/ORIENTATION_QUESTION"] != 5 {
		t.Errorf("trends = %v", trends)
	}
}

func TestAuthSeparation(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		ingest: func(event.Event) (*triage.IngestResult, error) {
			return &triage.IngestResult{AlertID: "a1", Outcome: triage.OutcomeCreated}, nil
		},
		list: func(triage.Filter) ([]*triage.Alert, error) { return nil, nil },
	}
	srv := newTestServer(t, svc,
		authmw.BearerToken("device-token"),
		authmw.BearerToken("staff-token"),
	)

	do := func(method, path, token, body string) int {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode
	}

	if got := do(http.MethodPost, "/api/v1/events", "", eventBody("HELP_CALL", 0.9)); got != http.StatusUnauthorized {
		t.Errorf("no token ingest status = %d", got)
	}
	if got := do(http.MethodPost, "/api/v1/events", "staff-token", eventBody("HELP_CALL", 0.9)); got != http.StatusUnauthorized {
		t.Errorf("staff token on device surface status = %d", got)
	}
	if got := do(http.MethodPost, "/api/v1/events", "device-token", eventBody("HELP_CALL", 0.9)); got != http.StatusCreated {
		t.Errorf("device token ingest status = %d", got)
	}
	if got := do(http.MethodGet, "/api/v1/alerts", "device-token", ""); got != http.StatusUnauthorized {
		t.Errorf("device token on staff surface status = %d", got)
	}
	if got := do(http.MethodGet, "/api/v1/alerts", "staff-token", ""); got != http.StatusOK {
		t.Errorf("staff token list status = %d", got)
	}
}
