package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

// fakeChannel records delivered notifications and optionally fails.
type fakeChannel struct {
	name string
	err  error

	mu   sync.Mutex
	got  []*Notification
	seen chan struct{}
}

func newFakeChannel(name string, err error) *fakeChannel {
	return &fakeChannel{name: name, err: err, seen: make(chan struct{}, 64)}
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, n *Notification) error {
	c.mu.Lock()
	c.got = append(c.got, n)
	c.mu.Unlock()
	c.seen <- struct{}{}
	return c.err
}

func (c *fakeChannel) delivered() []*Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Notification(nil), c.got...)
}

func waitFor(t *testing.T, ch *fakeChannel) {
	t.Helper()
	select {
	case <-ch.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func sampleAlert() *triage.Alert {
	return &triage.Alert{
		ID:              "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		RoomID:          "room-12",
		Severity:        triage.SeverityEmergency,
		Kind:            event.KindHelpCall,
		Explanation:     "resident called for help",
		OccurrenceCount: 1,
		Status:          triage.StatusNew,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestDispatchDeliversToAllChannels(t *testing.T) {
	t.Parallel()

	chA := newFakeChannel("a", nil)
	chB := newFakeChannel("b", nil)
	r := NewRouter([]Channel{chA, chB}, nil, RouterOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	al := sampleAlert()
	r.Dispatch(al, triage.TransitionCreated)

	waitFor(t, chA)
	waitFor(t, chB)

	for _, ch := range []*fakeChannel{chA, chB} {
		got := ch.delivered()
		if len(got) != 1 {
			t.Fatalf("channel %s deliveries = %d, want 1", ch.name, len(got))
		}
		n := got[0]
		if n.AlertID != al.ID || n.RoomID != al.RoomID || n.Transition != triage.TransitionCreated {
			t.Errorf("channel %s got %+v", ch.name, n)
		}
	}
}

func TestDispatchNeverBlocks(t *testing.T) {
	t.Parallel()

	// No Run loop draining, queue of one: the second dispatch must drop.
	var drops int
	r := NewRouter(nil, nil, RouterOptions{
		QueueSize:   1,
		OnQueueDrop: func() { drops++ },
	})

	al := sampleAlert()
	done := make(chan struct{})
	go func() {
		r.Dispatch(al, triage.TransitionCreated)
		r.Dispatch(al, triage.TransitionCreated)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
	if drops != 1 {
		t.Errorf("drops = %d, want 1", drops)
	}
}

func TestChannelFailureIsIsolated(t *testing.T) {
	t.Parallel()

	failing := newFakeChannel("bad", errors.New("webhook down"))
	healthy := newFakeChannel("good", nil)

	var mu sync.Mutex
	results := map[string]error{}
	r := NewRouter([]Channel{failing, healthy}, nil, RouterOptions{
		OnResult: func(channel string, err error) {
			mu.Lock()
			results[channel] = err
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Dispatch(sampleAlert(), triage.TransitionEscalated)

	waitFor(t, failing)
	waitFor(t, healthy)

	if len(healthy.delivered()) != 1 {
		t.Error("failure in one channel suppressed delivery to another")
	}

	mu.Lock()
	defer mu.Unlock()
	if results["bad"] == nil {
		t.Error("failing channel result not observed")
	}
	if results["good"] != nil {
		t.Errorf("healthy channel reported error: %v", results["good"])
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil, nil, RouterOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
