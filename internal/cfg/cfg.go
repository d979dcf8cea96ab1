// Package cfg holds the application-level configuration for the triage
// engine, following the shared cfg.Registerable/cfg.Validatable flag
// conventions. Policy knobs (dedup windows, severity thresholds, escalation
// deadlines) are explicit here so multiple facilities can run isolated
// instances with their own values.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Config adds engine-specific configuration fields.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	DatabaseURL string
	RoomsFile   string

	DeviceAPIToken string
	StaffAPIToken  string

	EmergencyThreshold float64
	VisibilityFloor    float64

	DedupWindow          time.Duration
	DedupEmergencyWindow time.Duration
	MaxEventSkew         time.Duration

	EscalationInterval time.Duration
	EmergencyDeadline  time.Duration
	UrgentDeadline     time.Duration
	EscalationMax      int

	TrendRetention time.Duration

	SlackWebhookURL string
	PagerURLs       string
	NotifyQueueSize int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.RoomsFile, "rooms-file", "", "path to JSON room -> resident-ref mapping (required)")
	fs.StringVar(&c.DeviceAPIToken, "device-api-token", "", "bearer token for the room-device event submission surface (required)")
	fs.StringVar(&c.StaffAPIToken, "staff-api-token", "", "bearer token for the staff portal surface (required)")
	fs.Float64Var(&c.EmergencyThreshold, "emergency-threshold", 0.75, "confidence at or above which distress-class events become EMERGENCY (0..1)")
	fs.Float64Var(&c.VisibilityFloor, "visibility-floor", 0.40, "confidence below which events are suppressed as informational (0..1)")
	fs.DurationVar(&c.DedupWindow, "dedup-window", 5*time.Minute, "merge window for non-emergency alerts")
	fs.DurationVar(&c.DedupEmergencyWindow, "dedup-emergency-window", 2*time.Minute, "merge window for emergency alerts")
	fs.DurationVar(&c.MaxEventSkew, "max-event-skew", 5*time.Minute, "maximum accepted clock skew on event timestamps")
	fs.DurationVar(&c.EscalationInterval, "escalation-interval", 15*time.Second, "poll cadence of the escalation scheduler")
	fs.DurationVar(&c.EmergencyDeadline, "emergency-deadline", 3*time.Minute, "response deadline before an unacknowledged EMERGENCY alert escalates")
	fs.DurationVar(&c.UrgentDeadline, "urgent-deadline", 10*time.Minute, "response deadline before an unacknowledged URGENT alert escalates")
	fs.IntVar(&c.EscalationMax, "escalation-max", 0, "cap on repeat escalations per alert (0 = unlimited)")
	fs.DurationVar(&c.TrendRetention, "trend-retention", 24*time.Hour, "retention window for suppressed-event trend counters")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for the staff feed channel")
	fs.StringVar(&c.PagerURLs, "pager-urls", "", "comma-separated shoutrrr URLs for the paging/SMS channel")
	fs.IntVar(&c.NotifyQueueSize, "notify-queue-size", 256, "bound on the notification dispatch queue")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.RoomsFile == "" {
		errs = append(errs, errors.New("ROOMS_FILE is required"))
	}
	if c.DeviceAPIToken == "" {
		errs = append(errs, errors.New("DEVICE_API_TOKEN is required"))
	}
	if c.StaffAPIToken == "" {
		errs = append(errs, errors.New("STAFF_API_TOKEN is required"))
	}

	if c.EmergencyThreshold <= 0 || c.EmergencyThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid EMERGENCY_THRESHOLD %v (must be in (0,1])", c.EmergencyThreshold))
	}
	if c.VisibilityFloor < 0 || c.VisibilityFloor > 1 {
		errs = append(errs, fmt.Errorf("invalid VISIBILITY_FLOOR %v (must be in [0,1])", c.VisibilityFloor))
	}
	if c.VisibilityFloor >= c.EmergencyThreshold {
		errs = append(errs, fmt.Errorf("VISIBILITY_FLOOR %v must be below EMERGENCY_THRESHOLD %v", c.VisibilityFloor, c.EmergencyThreshold))
	}

	if c.DedupWindow <= 0 {
		errs = append(errs, fmt.Errorf("invalid DEDUP_WINDOW %s (must be positive)", c.DedupWindow))
	}
	if c.DedupEmergencyWindow <= 0 || c.DedupEmergencyWindow > c.DedupWindow {
		errs = append(errs, fmt.Errorf("invalid DEDUP_EMERGENCY_WINDOW %s (must be positive and at most DEDUP_WINDOW %s)", c.DedupEmergencyWindow, c.DedupWindow))
	}
	if c.MaxEventSkew <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_EVENT_SKEW %s (must be positive)", c.MaxEventSkew))
	}

	if c.EscalationInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid ESCALATION_INTERVAL %s (must be positive)", c.EscalationInterval))
	}
	if c.EmergencyDeadline <= 0 {
		errs = append(errs, fmt.Errorf("invalid EMERGENCY_DEADLINE %s (must be positive)", c.EmergencyDeadline))
	}
	if c.UrgentDeadline <= 0 || c.UrgentDeadline < c.EmergencyDeadline {
		errs = append(errs, fmt.Errorf("invalid URGENT_DEADLINE %s (must be positive and at least EMERGENCY_DEADLINE %s)", c.UrgentDeadline, c.EmergencyDeadline))
	}
	if c.EscalationMax < 0 {
		errs = append(errs, fmt.Errorf("invalid ESCALATION_MAX %d (must be >= 0)", c.EscalationMax))
	}

	if c.TrendRetention <= 0 {
		errs = append(errs, fmt.Errorf("invalid TREND_RETENTION %s (must be positive)", c.TrendRetention))
	}
	if c.NotifyQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_QUEUE_SIZE %d (must be positive)", c.NotifyQueueSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
