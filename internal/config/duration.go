package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string. Empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Timings returns the batch delays, falling back to 3s / 4s / 1s.
// Validate has already rejected malformed values.
func (d DispatchConfig) Timings() (summaryLead, spacing, resetDelay time.Duration) {
	summaryLead, _ = ParseDurationOrDefault("dispatch.summary_lead", d.SummaryLead, 3*time.Second)
	spacing, _ = ParseDurationOrDefault("dispatch.spacing", d.Spacing, 4*time.Second)
	resetDelay, _ = ParseDurationOrDefault("dispatch.reset_delay", d.ResetDelay, time.Second)
	return summaryLead, spacing, resetDelay
}
