package config

import "strings"

// PollPatch is a partial PollConfig update. Nil fields keep their current value.
type PollPatch struct {
	APIURL              *string `json:"api_url,omitempty"`
	Email               *string `json:"email,omitempty"`
	UserID              *string `json:"user_id,omitempty"`
	PollingInterval     *int    `json:"polling_interval,omitempty"`
	Types               *string `json:"types,omitempty"`
	Enabled             *bool   `json:"enabled,omitempty"`
	RepeatNotifications *bool   `json:"repeat_notifications,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p PollPatch) Empty() bool {
	return p.APIURL == nil && p.Email == nil && p.UserID == nil && p.PollingInterval == nil &&
		p.Types == nil && p.Enabled == nil && p.RepeatNotifications == nil
}

// Apply merges the patch into pc. Identity fields are trimmed; an interval
// that is not positive is rejected and pc is left untouched.
func (p PollPatch) Apply(pc *PollConfig) error {
	if p.PollingInterval != nil && *p.PollingInterval <= 0 {
		return invalid("polling_interval must be > 0 (got %d)", *p.PollingInterval)
	}
	if p.Types != nil && strings.TrimSpace(*p.Types) == "" {
		return invalid("types must not be empty")
	}

	if p.APIURL != nil {
		pc.APIURL = strings.TrimSpace(*p.APIURL)
	}
	if p.Email != nil {
		pc.Email = strings.TrimSpace(*p.Email)
	}
	if p.UserID != nil {
		pc.UserID = strings.TrimSpace(*p.UserID)
	}
	if p.PollingInterval != nil {
		pc.PollingInterval = *p.PollingInterval
	}
	if p.Types != nil {
		pc.Types = strings.TrimSpace(*p.Types)
	}
	if p.Enabled != nil {
		pc.Enabled = *p.Enabled
	}
	if p.RepeatNotifications != nil {
		pc.RepeatNotifications = *p.RepeatNotifications
	}
	return nil
}
