package triage

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
)

// TrendRecorder counts suppressed (informational, non-visible) events per
// room and kind so they show up in aggregate trend queries without ever
// becoming actionable alerts. Counts age out after the retention window; no
// event content is stored.
type TrendRecorder struct {
	c *gocache.Cache
}

// NewTrendRecorder creates a recorder whose counters expire after retention.
func NewTrendRecorder(retention time.Duration) *TrendRecorder {
	return &TrendRecorder{
		c: gocache.New(retention, 10*time.Minute),
	}
}

// Record increments the counter for a suppressed event.
func (t *TrendRecorder) Record(roomID string, kind event.Kind) {
	key := roomID + "/" + string(kind)
	if err := t.c.Add(key, int64(1), gocache.DefaultExpiration); err != nil {
		// Key exists; lost Add races resolve here as a plain increment.
		_, _ = t.c.IncrementInt64(key, 1)
	}
}

// Snapshot returns the current counts keyed by "room/kind".
func (t *TrendRecorder) Snapshot() map[string]int64 {
	items := t.c.Items()
	out := make(map[string]int64, len(items))
	for k, item := range items {
		if n, ok := item.Object.(int64); ok {
			out[k] = n
		}
	}
	return out
}
