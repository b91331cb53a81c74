// Package userunit installs and drives alertd as a systemd user unit
// (~/.config/systemd/user/<name>.service).
package userunit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("userunit: unsupported OS (linux only)")

// Unit describes the service file written by Install.
type Unit struct {
	Name        string
	Description string
	ExecStart   string
	Args        []string
	WorkDir     string
	Env         map[string]string
}

// FileName returns "<name>.service".
func (u Unit) FileName() string {
	return strings.TrimSuffix(u.Name, ".service") + ".service"
}

// Path returns where the unit file lives for the current user.
func (u Unit) Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "systemd", "user", u.FileName()), nil
}

// Render produces the unit file. The daemon reports readiness via sd_notify,
// so the unit is Type=notify.
func (u Unit) Render() string {
	var b strings.Builder
	desc := u.Description
	if desc == "" {
		desc = u.Name
	}
	fmt.Fprintf(&b, "[Unit]\nDescription=%s\nAfter=network-online.target\n\n", desc)
	b.WriteString("[Service]\nType=notify\n")
	exec := quoteArg(u.ExecStart)
	for _, a := range u.Args {
		exec += " " + quoteArg(a)
	}
	fmt.Fprintf(&b, "ExecStart=%s\n", exec)
	if u.WorkDir != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", u.WorkDir)
	}
	keys := make([]string, 0, len(u.Env))
	for k := range u.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "Environment=%s\n", quoteArg(k+"="+u.Env[k]))
	}
	b.WriteString("Restart=on-failure\nRestartSec=5\n\n[Install]\nWantedBy=default.target\n")
	return b.String()
}

func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// Status is the subset of unit properties shown by the CLI.
type Status struct {
	Name        string
	Active      string // active, inactive, failed, etc.
	SubState    string // running, dead, etc.
	LoadState   string // loaded, not-found, etc.
	Enabled     bool
	ActiveSince time.Time
}

func parseTimestamp(props map[string]interface{}, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		// systemd timestamps are in microseconds since the Unix epoch
		return time.Unix(int64(ts/1_000_000), 0)
	}
	return time.Time{}
}

func getStringProperty(props map[string]interface{}, key string) string {
	v, _ := props[key].(string)
	return v
}

func statusFromProps(name string, props map[string]interface{}) Status {
	st := Status{
		Name:      name,
		Active:    getStringProperty(props, "ActiveState"),
		SubState:  getStringProperty(props, "SubState"),
		LoadState: getStringProperty(props, "LoadState"),
	}
	if st.LoadState == "not-found" {
		st.Active = "unknown"
		st.SubState = "not-found"
		return st
	}
	st.Enabled = getStringProperty(props, "UnitFileState") == "enabled"
	st.ActiveSince = parseTimestamp(props, "ActiveEnterTimestamp")
	return st
}
