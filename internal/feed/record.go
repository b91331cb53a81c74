package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Priority values understood by the sinks.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Record is one notification as returned by the remote API.
type Record struct {
	ID       ID              `json:"id"`
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Priority string          `json:"priority,omitempty"`
	Icon     string          `json:"icon,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// EffectivePriority returns Priority with the "normal" default applied.
func (r Record) EffectivePriority() string {
	if strings.EqualFold(strings.TrimSpace(r.Priority), PriorityHigh) {
		return PriorityHigh
	}
	return PriorityNormal
}

// ID is a record id. The API sends either numbers or strings; both decode to
// the same decimal text.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("feed: id must be a string or number")
	}
	if i, err := n.Int64(); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// User carries the requester details the API may return.
type User struct {
	IsSuperAdmin *bool `json:"is_super_admin,omitempty"`
}

// response is the wire shape of a poll response. Notifications stays raw so
// a non-array value can be told apart from an empty list.
type response struct {
	Success       bool            `json:"success"`
	Notifications json.RawMessage `json:"notifications"`
	LastChecked   json.RawMessage `json:"last_checked"`
	User          *User           `json:"user"`
	Message       string          `json:"message,omitempty"`
}

// watermarkText reads last_checked as a string. A number keeps its literal
// text; null or any other shape yields "".
func watermarkText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// decodeRecords returns ok=false when raw is missing or not a JSON array.
func decodeRecords(raw json.RawMessage) ([]Record, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}
