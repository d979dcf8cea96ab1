// Package pager delivers alert notifications to secondary channels (SMS,
// ntfy, pagers) through shoutrrr service URLs, so an unacknowledged
// emergency can reach staff who are away from the portal feed.
package pager

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/Kidomigon/nursing-home-ai/internal/notify"
	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

// Channel sends short alert messages to one or more shoutrrr URLs.
type Channel struct {
	sender *router.ServiceRouter
}

// New creates a pager channel from shoutrrr service URLs
// (e.g. "ntfy://host/facility-alerts", "generic+https://...").
func New(urls ...string) (*Channel, error) {
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("pager: create sender: %w", err)
	}
	return &Channel{sender: sender}, nil
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return "pager" }

// Send delivers the notification to every configured service. Individual
// service failures are joined into one error for logging.
func (c *Channel) Send(ctx context.Context, n *notify.Notification) error {
	title := "New alert"
	if n.Transition == triage.TransitionEscalated {
		title = "ESCALATION"
	}
	msg := fmt.Sprintf("%s: %s in room %s (%s, seen %dx)",
		title, n.Kind, n.RoomID, n.Severity, n.OccurrenceCount)

	done := make(chan error, 1)
	go func() {
		done <- errors.Join(c.sender.Send(msg, &types.Params{"title": title})...)
	}()

	// shoutrrr's Send has no context support; honor cancellation ourselves.
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("pager: send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pager: send: %w", ctx.Err())
	}
}
