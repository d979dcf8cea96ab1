package pager

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
	"github.com/Kidomigon/nursing-home-ai/internal/notify"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

func sample(tr triage.Transition) *notify.Notification {
	return &notify.Notification{
		AlertID:         "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		RoomID:          "204",
		Severity:        triage.SeverityEmergency,
		Kind:            event.KindHelpCall,
		OccurrenceCount: 3,
		CreatedAt:       time.Now().UTC(),
		Transition:      tr,
	}
}

func TestNewRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := New("not-a-service-url"); err == nil {
		t.Fatal("New accepted a malformed service URL")
	}
}

func TestSendDeliversToGenericWebhook(t *testing.T) {
	t.Parallel()

	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New("generic+" + srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Name() != "pager" {
		t.Errorf("Name() = %q", c.Name())
	}

	if err := c.Send(context.Background(), sample(triage.TransitionEscalated)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case body := <-bodies:
		for _, want := range []string{"ESCALATION", "HELP_CALL", "room 204", "EMERGENCY"} {
			if !strings.Contains(body, want) {
				t.Errorf("body missing %q: %s", want, body)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never called")
	}
}

func TestSendSurfacesServiceFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New("generic+" + srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Send(context.Background(), sample(triage.TransitionCreated)); err == nil {
		t.Fatal("Send succeeded against failing webhook")
	}
}

func TestSendHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := New("generic+" + srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Send(ctx, sample(triage.TransitionCreated)); err == nil {
		t.Fatal("Send ignored context cancellation")
	}
}
