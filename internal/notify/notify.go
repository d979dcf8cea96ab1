// Package notify fans committed alert state changes out to staff-facing
// channels. Dispatch is fire-and-continue through a bounded queue: a slow or
// failing channel can never add latency to event ingestion or fail the state
// change that produced the notification.
package notify

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

// Notification is the outbound payload delivered to each channel. It carries
// only alert metadata, never conversation content.
type Notification struct {
	AlertID         string            `json:"alert_id"`
	RoomID          string            `json:"room_id"`
	Severity        triage.Severity   `json:"severity"`
	Kind            event.Kind        `json:"kind"`
	Explanation     string            `json:"explanation"`
	OccurrenceCount int               `json:"occurrence_count"`
	CreatedAt       time.Time         `json:"created_at"`
	Transition      triage.Transition `json:"transition"`
}

// Channel delivers a notification to one destination. Errors are logged and
// counted, never propagated to the state-changing caller.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// RouterOptions tunes the dispatch queue and observation hooks.
type RouterOptions struct {
	// QueueSize bounds the dispatch queue; 0 means 256.
	QueueSize int
	// SendTimeout bounds each delivery attempt; 0 means 10s.
	SendTimeout time.Duration
	// OnResult is called after each channel attempt (wired to metrics).
	OnResult func(channel string, err error)
	// OnQueueDrop is called when a full queue drops a notification.
	OnQueueDrop func()
}

// Router implements triage.Dispatcher over a set of channels.
type Router struct {
	channels []Channel
	queue    chan *Notification
	timeout  time.Duration
	onResult func(channel string, err error)
	onDrop   func()
	logger   log.Logger
}

// NewRouter creates a Router. Run must be started for deliveries to happen.
func NewRouter(channels []Channel, logger log.Logger, opts RouterOptions) *Router {
	if logger == nil {
		logger = log.Nop()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = 256
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Router{
		channels: channels,
		queue:    make(chan *Notification, size),
		timeout:  timeout,
		onResult: opts.OnResult,
		onDrop:   opts.OnQueueDrop,
		logger:   logger,
	}
}

// Dispatch enqueues a notification for the alert's transition and returns
// immediately. When the queue is full the notification is dropped with a log
// line and a counter bump; the alert itself is already committed and shows
// up in the feed regardless.
func (r *Router) Dispatch(al *triage.Alert, transition triage.Transition) {
	n := &Notification{
		AlertID:         al.ID,
		RoomID:          al.RoomID,
		Severity:        al.Severity,
		Kind:            al.Kind,
		Explanation:     al.Explanation,
		OccurrenceCount: al.OccurrenceCount,
		CreatedAt:       al.CreatedAt,
		Transition:      transition,
	}

	select {
	case r.queue <- n:
	default:
		r.logger.Warn(context.Background(), "notification queue full, dropping",
			"alert_id", n.AlertID, "transition", n.Transition)
		if r.onDrop != nil {
			r.onDrop()
		}
	}
}

// Run delivers queued notifications until ctx is done. Each channel attempt
// is independent: failures are logged and counted without affecting the
// other channels.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-r.queue:
			r.fanOut(ctx, n)
		}
	}
}

func (r *Router) fanOut(ctx context.Context, n *Notification) {
	for _, ch := range r.channels {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := ch.Send(cctx, n)
		cancel()

		if err != nil {
			r.logger.Error(ctx, err, "notification delivery failed",
				"channel", ch.Name(), "alert_id", n.AlertID, "transition", n.Transition)
		}
		if r.onResult != nil {
			r.onResult(ch.Name(), err)
		}
	}
}
