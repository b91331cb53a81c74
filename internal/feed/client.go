package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"alertd/internal/config"
	logx "alertd/pkg/logx"
)

// DefaultTimeout bounds every request to the remote API.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Kind classifies a failed fetch.
type Kind string

const (
	KindConnectionRefused Kind = "connection_refused"
	KindTimeout           Kind = "timeout"
	KindServerError       Kind = "server_error"
	KindCanceled          Kind = "canceled"
	KindOther             Kind = "other"
	KindMisconfigured     Kind = "misconfigured"
)

// Failure describes why a fetch produced no records.
type Failure struct {
	Kind   Kind
	Status int
	Err    error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", f.Kind, f.Status, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Request is one poll.
type Request struct {
	Poll config.PollConfig
	// Watermark is the last_checked value from the previous successful fetch.
	Watermark string
}

// Result is the outcome of Fetch. Failure is nil on transport success;
// Malformed is set when the body was not a usable poll response.
type Result struct {
	Records     []Record
	LastChecked string
	User        User
	Status      int
	Failure     *Failure
	Malformed   bool
	// NoIdentity is set when neither email nor user_id is configured.
	NoIdentity bool
}

// Client talks to the remote notification API.
type Client struct {
	http *http.Client
	log  logx.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func New(log logx.Logger, opts ...Option) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		http: &http.Client{Timeout: DefaultTimeout},
		log:  log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// identityParam returns the query key/value identifying the requester.
// Email wins over user_id; a user_id that looks like an address is sent as
// email since that is what the API filters on.
func identityParam(p config.PollConfig) (key, val string) {
	if e := strings.TrimSpace(p.Email); e != "" {
		return "email", e
	}
	if id := strings.TrimSpace(p.UserID); id != "" {
		if strings.Contains(id, "@") {
			return "email", id
		}
		return "user_id", id
	}
	return "", ""
}

// Identity returns the configured identity string (email or user_id).
func Identity(p config.PollConfig) string {
	_, v := identityParam(p)
	return v
}

func buildURL(base string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("api_url %q is not absolute", base)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch performs one poll. It never returns an error; every problem is
// described by Result.Failure or Result.Malformed.
func (c *Client) Fetch(ctx context.Context, req Request) Result {
	p := req.Poll
	if strings.TrimSpace(p.APIURL) == "" {
		return Result{Failure: &Failure{Kind: KindMisconfigured, Err: errors.New("api_url is not set")}}
	}

	params := url.Values{}
	var res Result
	if k, v := identityParam(p); k != "" {
		params.Set(k, v)
	} else {
		res.NoIdentity = true
		c.log.Warn("no email or user_id configured; the API may return notifications for every user")
	}
	if !p.RepeatNotifications && req.Watermark != "" {
		params.Set("last_checked", req.Watermark)
	}
	if t := p.TypeFilter(); t != config.TypesAll {
		params.Set("types", t)
	}

	target, err := buildURL(p.APIURL, params)
	if err != nil {
		res.Failure = &Failure{Kind: KindMisconfigured, Err: err}
		return res
	}

	status, body, err := c.get(ctx, target)
	res.Status = status
	if err != nil {
		res.Failure = classify(err)
		return res
	}
	if status >= 500 {
		res.Failure = &Failure{Kind: KindServerError, Status: status, Err: fmt.Errorf("server returned %s", http.StatusText(status))}
		return res
	}
	if status < 200 || status > 299 {
		res.Failure = &Failure{Kind: KindOther, Status: status, Err: fmt.Errorf("unexpected status %s", http.StatusText(status))}
		return res
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		c.log.Warn("poll response is not JSON", logx.Int("status", status), logx.Err(err))
		res.Malformed = true
		return res
	}
	records, ok := decodeRecords(r.Notifications)
	if !r.Success || !ok {
		c.log.Warn("poll response unusable",
			logx.Bool("success", r.Success),
			logx.Bool("notifications_array", ok),
		)
		res.Malformed = true
		return res
	}
	res.Records = records
	res.LastChecked = watermarkText(r.LastChecked)
	if r.User != nil {
		res.User = *r.User
	}
	return res
}

func (c *Client) get(ctx context.Context, target string) (int, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	hreq.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(hreq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func classify(err error) *Failure {
	var ne net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return &Failure{Kind: KindConnectionRefused, Err: err}
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: KindCanceled, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindTimeout, Err: err}
	case errors.As(err, &ne) && ne.Timeout():
		return &Failure{Kind: KindTimeout, Err: err}
	default:
		return &Failure{Kind: KindOther, Err: err}
	}
}

// ProbeResult is the diagnostics view of one identity-only request.
type ProbeResult struct {
	Success       bool            `json:"success"`
	Count         int             `json:"count,omitempty"`
	Message       string          `json:"message"`
	Status        int             `json:"status,omitempty"`
	Kind          Kind            `json:"kind,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Notifications []Record        `json:"notifications,omitempty"`
}

// Probe checks connectivity with the configured identity only: no watermark
// and no type filter, so every pending notification is reported. Any status
// below 500 counts as a response.
func (c *Client) Probe(ctx context.Context, p config.PollConfig) ProbeResult {
	if strings.TrimSpace(p.APIURL) == "" {
		return ProbeResult{Message: "api_url is not set", Kind: KindMisconfigured}
	}
	k, v := identityParam(p)
	if k == "" {
		return ProbeResult{Message: "email or user_id is not set", Kind: KindMisconfigured}
	}
	target, err := buildURL(p.APIURL, url.Values{k: []string{v}})
	if err != nil {
		return ProbeResult{Message: err.Error(), Kind: KindMisconfigured}
	}

	status, body, err := c.get(ctx, target)
	if err != nil {
		f := classify(err)
		return ProbeResult{Message: probeMessage(f), Kind: f.Kind}
	}
	if status >= 500 {
		return ProbeResult{Status: status, Kind: KindServerError, Message: fmt.Sprintf("server error (%d): %s", status, http.StatusText(status))}
	}

	out := ProbeResult{Status: status}
	if json.Valid(body) {
		out.Data = json.RawMessage(body)
	}
	if status != http.StatusOK || len(out.Data) == 0 {
		out.Message = fmt.Sprintf("unexpected API response (status %d)", status)
		return out
	}
	var r response
	_ = json.Unmarshal(body, &r)
	records, _ := decodeRecords(r.Notifications)
	out.Success = true
	out.Notifications = records
	out.Count = len(records)
	out.Message = fmt.Sprintf("connected; %d notification(s) pending", len(records))
	return out
}

func probeMessage(f *Failure) string {
	switch f.Kind {
	case KindConnectionRefused:
		return "connection refused; is the API server running?"
	case KindTimeout:
		return "request timed out"
	case KindCanceled:
		return "request canceled"
	default:
		return f.Err.Error()
	}
}
