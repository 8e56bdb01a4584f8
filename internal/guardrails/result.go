package guardrails

import "sort"

// Finding kinds.
const (
	KindPII    = "pii"
	KindSecret = "secret"
)

// Result holds the findings of one check and the redacted content.
type Result struct {
	// Original is never serialized.
	Original string    `json:"-"`
	Redacted string    `json:"redacted"`
	Findings []Finding `json:"findings,omitempty"`

	// ByRule counts findings per rule or detector.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding locates a match. The matched text is not kept.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
	Line        int    `json:"line,omitempty"`
}

func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rules that matched, sorted.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Kinds reports whether any PII or secret finding exists.
func (r *Result) Kinds() (pii, secret bool) {
	for _, f := range r.Findings {
		switch f.Kind {
		case KindPII:
			pii = true
		case KindSecret:
			secret = true
		}
	}
	return pii, secret
}
