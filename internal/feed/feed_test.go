package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"alertd/internal/config"
	logx "alertd/pkg/logx"
)

type capture struct {
	mu    sync.Mutex
	query []url.Values
}

func (c *capture) last() url.Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.query) == 0 {
		return nil
	}
	return c.query[len(c.query)-1]
}

func newAPI(t *testing.T, status int, body string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.query = append(c.query, r.URL.Query())
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestFetchQueryParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		poll      config.PollConfig
		watermark string
		want      map[string]string
		absent    []string
	}{
		{
			name:   "email wins over user id",
			poll:   config.PollConfig{Email: " a@b.com ", UserID: "7", Types: "all", RepeatNotifications: true},
			want:   map[string]string{"email": "a@b.com"},
			absent: []string{"user_id", "last_checked", "types"},
		},
		{
			name:   "user id only",
			poll:   config.PollConfig{UserID: "7", Types: "meeting", RepeatNotifications: true},
			want:   map[string]string{"user_id": "7", "types": "meeting"},
			absent: []string{"email"},
		},
		{
			name:      "watermark only when repeat is off",
			poll:      config.PollConfig{Email: "a@b.com", RepeatNotifications: false},
			watermark: "2024-01-01T00:00:00Z",
			want:      map[string]string{"last_checked": "2024-01-01T00:00:00Z"},
		},
		{
			name:      "repeat mode never sends watermark",
			poll:      config.PollConfig{Email: "a@b.com", RepeatNotifications: true},
			watermark: "2024-01-01T00:00:00Z",
			absent:    []string{"last_checked"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, rec := newAPI(t, 200, `{"success":true,"notifications":[]}`)
			tt.poll.APIURL = srv.URL + "/api/notifications"
			res := New(logx.Nop()).Fetch(context.Background(), Request{Poll: tt.poll, Watermark: tt.watermark})
			if res.Failure != nil || res.Malformed {
				t.Fatalf("unexpected result: %+v", res)
			}
			q := rec.last()
			for k, v := range tt.want {
				if got := q.Get(k); got != v {
					t.Fatalf("%s = %q, want %q", k, got, v)
				}
			}
			for _, k := range tt.absent {
				if q.Has(k) {
					t.Fatalf("%s must be absent, got %q", k, q.Get(k))
				}
			}
		})
	}
}

func TestFetchNoIdentityStillPolls(t *testing.T) {
	t.Parallel()
	srv, rec := newAPI(t, 200, `{"success":true,"notifications":[]}`)
	res := New(logx.Nop()).Fetch(context.Background(), Request{Poll: config.PollConfig{APIURL: srv.URL}})
	if !res.NoIdentity || res.Failure != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if q := rec.last(); q == nil || q.Has("email") || q.Has("user_id") {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestFetchDecodesRecords(t *testing.T) {
	t.Parallel()
	body := `{"success":true,"last_checked":"wm-2","user":{"is_super_admin":true},
	"notifications":[
		{"id":12,"type":"meeting","title":"T1","message":"M1"},
		{"id":"abc","type":"customer_edit","title":"T2","message":"M2","priority":"high","data":{"k":1}}
	]}`
	srv, _ := newAPI(t, 200, body)
	res := New(logx.Nop()).Fetch(context.Background(), Request{Poll: config.PollConfig{APIURL: srv.URL, Email: "a@b.com"}})
	if res.Failure != nil || res.Malformed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d", len(res.Records))
	}
	if res.Records[0].ID != "12" || res.Records[1].ID != "abc" {
		t.Fatalf("ids = %q, %q", res.Records[0].ID, res.Records[1].ID)
	}
	if res.Records[0].EffectivePriority() != PriorityNormal || res.Records[1].EffectivePriority() != PriorityHigh {
		t.Fatal("priority defaults not applied")
	}
	if res.LastChecked != "wm-2" {
		t.Fatalf("last_checked = %q", res.LastChecked)
	}
	if res.User.IsSuperAdmin == nil || !*res.User.IsSuperAdmin {
		t.Fatal("user flag lost")
	}
	var data map[string]int
	if err := json.Unmarshal(res.Records[1].Data, &data); err != nil || data["k"] != 1 {
		t.Fatalf("data not passed through: %s", res.Records[1].Data)
	}
}

func TestFetchNumericLastChecked(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		`1718000000000`: "1718000000000",
		`null`:          "",
		`{"at":1}`:      "",
	}
	for raw, want := range cases {
		body := `{"success":true,"notifications":[{"id":1,"type":"meeting","title":"T"}],"last_checked":` + raw + `}`
		srv, _ := newAPI(t, 200, body)
		res := New(logx.Nop()).Fetch(context.Background(), Request{Poll: config.PollConfig{APIURL: srv.URL, Email: "a@b.com"}})
		if res.Malformed || len(res.Records) != 1 {
			t.Fatalf("last_checked %s: unexpected result %+v", raw, res)
		}
		if res.LastChecked != want {
			t.Fatalf("last_checked %s = %q, want %q", raw, res.LastChecked, want)
		}
	}
}

func TestFetchMalformed(t *testing.T) {
	t.Parallel()
	for _, body := range []string{
		`not json`,
		`{"success":false,"notifications":[]}`,
		`{"success":true,"notifications":{"id":1}}`,
		`{"success":true}`,
	} {
		srv, _ := newAPI(t, 200, body)
		res := New(logx.Nop()).Fetch(context.Background(), Request{Poll: config.PollConfig{APIURL: srv.URL, Email: "a@b.com"}})
		if !res.Malformed || res.Failure != nil || len(res.Records) != 0 {
			t.Fatalf("body %q: unexpected result %+v", body, res)
		}
	}
}

func TestFetchFailureKinds(t *testing.T) {
	t.Parallel()

	srv5xx, _ := newAPI(t, 503, `{}`)
	res := New(logx.Nop()).Fetch(context.Background(), Request{Poll: config.PollConfig{APIURL: srv5xx.URL}})
	if res.Failure == nil || res.Failure.Kind != KindServerError || res.Failure.Status != 503 {
		t.Fatalf("5xx: %+v", res.Failure)
	}

	srv4xx, _ := newAPI(t, 404, `{}`)
	res = New(logx.Nop()).Fetch(context.Background(), Request{Poll: config.PollConfig{APIURL: srv4xx.URL}})
	if res.Failure == nil || res.Failure.Kind != KindOther {
		t.Fatalf("4xx: %+v", res.Failure)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	addr := closed.URL
	closed.Close()
	res = New(logx.Nop()).Fetch(context.Background(), Request{Poll: config.PollConfig{APIURL: addr}})
	if res.Failure == nil || res.Failure.Kind != KindConnectionRefused {
		t.Fatalf("refused: %+v", res.Failure)
	}

	res = New(logx.Nop()).Fetch(context.Background(), Request{Poll: config.PollConfig{}})
	if res.Failure == nil || res.Failure.Kind != KindMisconfigured {
		t.Fatalf("missing url: %+v", res.Failure)
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	res := New(logx.Nop(), WithTimeout(50*time.Millisecond)).Fetch(context.Background(), Request{Poll: config.PollConfig{APIURL: srv.URL}})
	if res.Failure == nil || res.Failure.Kind != KindTimeout {
		t.Fatalf("timeout: %+v", res.Failure)
	}
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()
	srv, _ := newAPI(t, 200, `{"success":true,"notifications":[]}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := New(logx.Nop()).Fetch(ctx, Request{Poll: config.PollConfig{APIURL: srv.URL}})
	if res.Failure == nil || res.Failure.Kind != KindCanceled {
		t.Fatalf("canceled: %+v", res.Failure)
	}
	if !errors.Is(res.Failure, context.Canceled) {
		t.Fatal("failure does not unwrap to context.Canceled")
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()
	srv, rec := newAPI(t, 200, `{"success":true,"notifications":[{"id":1,"type":"meeting","title":"a","message":"b"}]}`)
	p := config.PollConfig{APIURL: srv.URL, Email: "a@b.com", Types: "meeting", RepeatNotifications: false}
	out := New(logx.Nop()).Probe(context.Background(), p)
	if !out.Success || out.Count != 1 || out.Status != 200 || len(out.Data) == 0 {
		t.Fatalf("probe: %+v", out)
	}
	q := rec.last()
	if q.Has("types") || q.Has("last_checked") || q.Get("email") != "a@b.com" {
		t.Fatalf("probe query %v", q)
	}

	if out := New(logx.Nop()).Probe(context.Background(), config.PollConfig{APIURL: srv.URL}); out.Success || out.Kind != KindMisconfigured {
		t.Fatalf("probe without identity: %+v", out)
	}

	srv4xx, _ := newAPI(t, 401, `{"error":"nope"}`)
	out = New(logx.Nop()).Probe(context.Background(), config.PollConfig{APIURL: srv4xx.URL, UserID: "7"})
	if out.Success || out.Status != 401 {
		t.Fatalf("probe 401: %+v", out)
	}
}
