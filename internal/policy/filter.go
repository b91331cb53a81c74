package policy

import (
	"slices"
	"strings"

	"alertd/internal/config"
	"alertd/internal/feed"
)

// TypeCustomerEdit is the record-edit category reserved for administrators.
const TypeCustomerEdit = "customer_edit"

var typeLabels = map[string]string{
	"meeting":             "회의",
	"sales_consultation":  "상담",
	"work_cooperation":    "업무협조",
	"institution_request": "교육원",
	TypeCustomerEdit:      "고객정보 수정",
}

// Label returns the display name of a category tag. Unknown tags are
// returned as-is.
func Label(typ string) string {
	if l, ok := typeLabels[typ]; ok {
		return l
	}
	if typ == "" {
		return "기타"
	}
	return typ
}

// KnownTypes returns the category tags that have a display name, sorted.
func KnownTypes() []string {
	out := make([]string, 0, len(typeLabels))
	for t := range typeLabels {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// IsAdmin decides whether the requester may see administrator-only records.
// A true flag from the API grants it; otherwise, including an explicit false,
// the configured fallback rule is matched against identity. This only gates
// notification filtering.
func IsAdmin(apiFlag *bool, identity string, rule config.AdminConfig) bool {
	if apiFlag != nil && *apiFlag {
		return true
	}
	id := strings.ToLower(strings.TrimSpace(identity))
	if id == "" {
		return false
	}
	for _, a := range rule.Identities {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" && a == id {
			return true
		}
	}
	for _, m := range rule.Markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" && strings.Contains(id, m) {
			return true
		}
	}
	return false
}

// Filter drops administrator-only records for non-administrators. It
// returns the kept records and the number dropped.
func Filter(records []feed.Record, admin bool) ([]feed.Record, int) {
	if admin {
		return records, 0
	}
	out := make([]feed.Record, 0, len(records))
	dropped := 0
	for _, r := range records {
		if r.Type == TypeCustomerEdit {
			dropped++
			continue
		}
		out = append(out, r)
	}
	return out, dropped
}
