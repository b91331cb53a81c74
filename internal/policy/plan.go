package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"alertd/internal/config"
	"alertd/internal/feed"
	"alertd/internal/notifier"
)

// Input is everything one cycle hands to the policy.
type Input struct {
	Result feed.Result
	Poll   config.PollConfig
	Admin  config.AdminConfig
}

// Batch is the outcome of Evaluate: the records that survived filtering and
// deduplication, plus counters for logging.
type Batch struct {
	Token      uint64
	Repeat     bool
	Records    []feed.Record
	Fetched    int
	Filtered   int
	Duplicates int
	Admin      bool
}

// Evaluate applies filtering, deduplication and the watermark update to one
// fetch result. Callers serialize Evaluate per State so check-then-insert on
// the seen-set is atomic per batch.
func Evaluate(st *State, in Input) Batch {
	res := in.Result
	b := Batch{Repeat: in.Poll.RepeatNotifications, Fetched: len(res.Records)}
	if res.Failure != nil || res.Malformed {
		return b
	}

	b.Admin = IsAdmin(res.User.IsSuperAdmin, feed.Identity(in.Poll), in.Admin)
	kept, dropped := Filter(res.Records, b.Admin)
	b.Filtered = dropped

	if b.Repeat {
		b.Records = kept
		return b
	}

	b.Token = st.NewToken()
	b.Records = make([]feed.Record, 0, len(kept))
	for _, r := range kept {
		if !st.Claim(r.ID.String(), b.Token) {
			b.Duplicates++
			continue
		}
		b.Records = append(b.Records, r)
	}
	if res.LastChecked != "" {
		st.SetWatermark(res.LastChecked)
	}
	return b
}

// Timings are the batch delays. SummaryLead separates the summary from the
// first individual notification; Spacing separates consecutive individuals.
type Timings struct {
	SummaryLead time.Duration
	Spacing     time.Duration
}

// Step is one notification of a plan. Delay is measured from the start of
// the batch. RecordID is empty for the summary.
type Step struct {
	Delay    time.Duration
	RecordID string
	Notice   notifier.Notification
}

// Plan is the ordered dispatch schedule for one batch.
type Plan struct {
	Token  uint64
	Repeat bool
	Steps  []Step
}

// Empty reports whether nothing is to be dispatched.
func (p Plan) Empty() bool { return len(p.Steps) == 0 }

// BuildPlan arranges a batch: nothing for zero records, one immediate
// notification for a single record, otherwise a summary followed by the
// individual notifications at SummaryLead, then every Spacing.
func BuildPlan(b Batch, t Timings) Plan {
	p := Plan{Token: b.Token, Repeat: b.Repeat}
	switch len(b.Records) {
	case 0:
		return p
	case 1:
		r := b.Records[0]
		p.Steps = []Step{{RecordID: r.ID.String(), Notice: fromRecord(r)}}
		return p
	}

	p.Steps = make([]Step, 0, len(b.Records)+1)
	p.Steps = append(p.Steps, Step{Notice: Summary(b.Records)})
	delay := t.SummaryLead
	for i, r := range b.Records {
		if i > 0 {
			delay += t.Spacing
		}
		p.Steps = append(p.Steps, Step{Delay: delay, RecordID: r.ID.String(), Notice: fromRecord(r)})
	}
	return p
}

// Summary builds the batch summary: the total in the title and one
// "<label>: <count>건" line per category in first-appearance order.
func Summary(records []feed.Record) notifier.Notification {
	order := make([]string, 0, 4)
	counts := map[string]int{}
	for _, r := range records {
		if _, ok := counts[r.Type]; !ok {
			order = append(order, r.Type)
		}
		counts[r.Type]++
	}
	lines := make([]string, 0, len(order))
	for _, typ := range order {
		lines = append(lines, fmt.Sprintf("%s: %d건", Label(typ), counts[typ]))
	}
	return notifier.Notification{
		ID:       uuid.NewString(),
		Title:    fmt.Sprintf("%d개의 새 알림", len(records)),
		Body:     strings.Join(lines, "\n"),
		Priority: feed.PriorityHigh,
		Source:   notifier.SourceSummary,
	}
}

// fromRecord maps a record to its notification. A blank title falls back to
// the category label so the notifier never rejects it.
func fromRecord(r feed.Record) notifier.Notification {
	title := r.Title
	if strings.TrimSpace(title) == "" {
		title = Label(r.Type)
	}
	return notifier.Notification{
		ID:       r.ID.String(),
		Title:    title,
		Body:     r.Message,
		Icon:     r.Icon,
		Priority: r.EffectivePriority(),
		Type:     r.Type,
		Data:     r.Data,
		Source:   notifier.SourcePoll,
	}
}
