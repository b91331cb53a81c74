package config

import (
	"net"
	"os"
	"strings"
)

// Default returns the settings used when no file exists yet, seeded from the
// process environment (API_URL, WEB_URL, USER_ID, EMAIL, PORT).
func Default() *Config {
	return DefaultFrom(os.Getenv)
}

// DefaultFrom is Default with an injectable environment lookup.
func DefaultFrom(getenv func(string) string) *Config {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }

	apiURL := env("API_URL")
	if apiURL == "" {
		if web := env("WEB_URL"); web != "" {
			apiURL = strings.TrimRight(web, "/") + "/api/notifications"
		} else {
			apiURL = "http://localhost:3000/api/notifications"
		}
	}
	port := env("PORT")
	if port == "" {
		port = DefaultServerPort
	}

	return &Config{
		Poll: PollConfig{
			APIURL:              apiURL,
			Email:               env("EMAIL"),
			UserID:              env("USER_ID"),
			PollingInterval:     DefaultPollingIntervalMs,
			Types:               TypesAll,
			Enabled:             true,
			RepeatNotifications: true,
		},
		Admin: AdminConfig{
			Identities: []string{},
			Markers:    []string{"admin"},
		},
		Dispatch: DispatchConfig{
			SummaryLead: "3s",
			Spacing:     "4s",
			ResetDelay:  "1s",
		},
		Sink: SinkConfig{
			Driver:      "auto",
			AppName:     "alertd",
			RatePerSec:  5,
			QueueSize:   256,
			HistorySize: 200,
		},
		Server: ServerConfig{
			Enabled:     true,
			Addr:        net.JoinHostPort("127.0.0.1", port),
			CORSOrigins: []string{"*"},
			RatePerSec:  20,
			ReadTimeout: "10s",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Enabled: false, Path: "./alertd.log"},
		},
	}
}
