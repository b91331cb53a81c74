// Package settings is the interactive settings surface: a terminal form that
// edits the poll settings and renderers for daemon status and diagnostics.
package settings

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"alertd/internal/config"
	"alertd/internal/policy"
)

// Values holds the form state. Interval is kept as text so the input can be
// validated before it is converted.
type Values struct {
	APIURL   string
	Email    string
	UserID   string
	Interval string
	Types    []string
	Enabled  bool
	Repeat   bool
}

// FromPoll seeds form values from the current settings.
func FromPoll(pc config.PollConfig) Values {
	v := Values{
		APIURL:   pc.APIURL,
		Email:    pc.Email,
		UserID:   pc.UserID,
		Interval: strconv.Itoa(pc.PollingInterval),
		Enabled:  pc.Enabled,
		Repeat:   pc.RepeatNotifications,
	}
	if tf := pc.TypeFilter(); tf != config.TypesAll {
		for _, t := range strings.Split(tf, ",") {
			if t = strings.TrimSpace(t); t != "" {
				v.Types = append(v.Types, t)
			}
		}
	}
	return v
}

// Patch converts the form values into a partial update. No selected type
// means every type.
func (v Values) Patch() (config.PollPatch, error) {
	ms, err := parseInterval(v.Interval)
	if err != nil {
		return config.PollPatch{}, err
	}
	types := config.TypesAll
	if len(v.Types) > 0 {
		sel := slices.Clone(v.Types)
		slices.Sort(sel)
		types = strings.Join(slices.Compact(sel), ",")
	}
	apiURL, email, userID := v.APIURL, v.Email, v.UserID
	enabled, repeat := v.Enabled, v.Repeat
	return config.PollPatch{
		APIURL:              &apiURL,
		Email:               &email,
		UserID:              &userID,
		PollingInterval:     &ms,
		Types:               &types,
		Enabled:             &enabled,
		RepeatNotifications: &repeat,
	}, nil
}

func parseInterval(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("polling interval must be a number of milliseconds")
	}
	if n < config.MinPollingIntervalMs {
		return 0, fmt.Errorf("polling interval must be at least %d ms", config.MinPollingIntervalMs)
	}
	return n, nil
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter a full URL (http://host/path)")
	}
	return nil
}

func validateInterval(s string) error {
	_, err := parseInterval(s)
	return err
}

// NewForm builds the settings form bound to v.
func NewForm(v *Values) *huh.Form {
	opts := make([]huh.Option[string], 0, len(policy.KnownTypes()))
	for _, t := range policy.KnownTypes() {
		opts = append(opts, huh.NewOption(policy.Label(t)+" ("+t+")", t))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API URL").
				Description("Notifications endpoint of the work server").
				Placeholder("http://localhost:3000/api/notifications").
				Value(&v.APIURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Email").
				Description("Used in preference to the user id").
				Value(&v.Email),
			huh.NewInput().
				Title("User ID").
				Value(&v.UserID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Polling interval (ms)").
				Value(&v.Interval).
				Validate(validateInterval),
			huh.NewMultiSelect[string]().
				Title("Types").
				Description("Nothing selected means all types").
				Options(opts...).
				Value(&v.Types),
			huh.NewConfirm().
				Title("Polling enabled").
				Value(&v.Enabled),
			huh.NewConfirm().
				Title("Repeat notifications").
				Description("Show pending notifications on every poll").
				Value(&v.Repeat),
		),
	)
}

// Run shows the form and returns the resulting patch. An aborted form
// returns huh.ErrUserAborted.
func Run(ctx context.Context, pc config.PollConfig) (config.PollPatch, error) {
	v := FromPoll(pc)
	if err := NewForm(&v).RunWithContext(ctx); err != nil {
		return config.PollPatch{}, err
	}
	return v.Patch()
}
