// Package guardrails detects personal data and credentials in user content
// and produces a redacted copy.
//
// Credentials are matched by built-in rules and the gitleaks catalog.
// Personal-data detectors are opt-in per check.
package guardrails

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultRedaction replaces every match.
const DefaultRedaction = "[REDACTED]"

// Config configures a Guardrails.
type Config struct {
	// RedactionString replaces matches (default "[REDACTED]").
	RedactionString string `koanf:"redaction_string"`

	// Rules are the credential rules; nil means DefaultRules.
	Rules []Rule `koanf:"rules"`

	// AllowList holds patterns whose matches are never reported.
	AllowList []string `koanf:"allow_list"`

	// DisableGitleaks skips the gitleaks catalog.
	DisableGitleaks bool `koanf:"disable_gitleaks"`
}

// Options selects what one check looks for.
type Options struct {
	PII     []Detector
	Secrets bool
}

// SecretsOnly is the check applied to chat messages.
var SecretsOnly = Options{Secrets: true}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []string
}

// Guardrails is safe for concurrent use.
type Guardrails struct {
	redaction string
	rules     []compiledRule
	pii       map[Detector]*regexp.Regexp
	allow     []*regexp.Regexp
	gitleaks  *gitleaksScanner
}

// span is a match position before merging.
type span struct {
	start, end  int
	ruleID      string
	description string
	kind        string
}

// New compiles cfg. Loading the gitleaks catalog takes a moment, so build
// one Guardrails per process.
func New(cfg Config) (*Guardrails, error) {
	g := &Guardrails{
		redaction: cfg.RedactionString,
		pii:       make(map[Detector]*regexp.Regexp, len(piiPatterns)),
	}
	if g.redaction == "" {
		g.redaction = DefaultRedaction
	}

	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: ID is required", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		g.rules = append(g.rules, compiledRule{Rule: r, pattern: re, keywords: kws})
	}

	for d, p := range piiPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("detector %s: invalid pattern: %w", d, err)
		}
		g.pii[d] = re
	}

	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		g.allow = append(g.allow, re)
	}

	if !cfg.DisableGitleaks {
		scanner, err := newGitleaksScanner()
		if err != nil {
			return nil, fmt.Errorf("loading gitleaks rules: %w", err)
		}
		g.gitleaks = scanner
	}
	return g, nil
}

// Check scans content and returns findings plus a redacted copy.
func (g *Guardrails) Check(content string, opts Options) *Result {
	var spans []span

	for _, d := range opts.PII {
		re, ok := g.pii[d]
		if !ok {
			continue
		}
		for _, m := range re.FindAllStringIndex(content, -1) {
			spans = append(spans, span{start: m[0], end: m[1], ruleID: string(d), description: string(d), kind: KindPII})
		}
	}

	if opts.Secrets {
		lower := strings.ToLower(content)
		for _, r := range g.rules {
			if !hasKeyword(lower, r.keywords) {
				continue
			}
			for _, m := range r.pattern.FindAllStringIndex(content, -1) {
				spans = append(spans, span{start: m[0], end: m[1], ruleID: r.ID, description: r.Description, kind: KindSecret})
			}
		}
		if g.gitleaks != nil {
			spans = append(spans, g.gitleaks.scan(content)...)
		}
	}

	result := &Result{
		Original: content,
		Redacted: content,
		Findings: make([]Finding, 0, len(spans)),
		ByRule:   map[string]int{},
	}
	kept := spans[:0]
	for _, s := range spans {
		if s.start >= s.end || g.allowed(content[s.start:s.end]) {
			continue
		}
		kept = append(kept, s)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].start != kept[j].start {
			return kept[i].start < kept[j].start
		}
		return kept[i].ruleID < kept[j].ruleID
	})

	for _, s := range kept {
		result.Findings = append(result.Findings, Finding{
			RuleID:      s.ruleID,
			Description: s.description,
			Kind:        s.kind,
			StartIndex:  s.start,
			EndIndex:    s.end,
			Line:        strings.Count(content[:s.start], "\n") + 1,
		})
		result.ByRule[s.ruleID]++
	}
	result.Redacted = g.redact(content, kept)
	return result
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (g *Guardrails) allowed(match string) bool {
	for _, re := range g.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// redact replaces merged spans. spans must be sorted by start.
func (g *Guardrails) redact(content string, spans []span) string {
	if len(spans) == 0 {
		return content
	}
	var b strings.Builder
	pos := 0
	end := -1
	for _, s := range spans {
		if s.start <= end {
			if s.end > end {
				end = s.end
			}
			continue
		}
		if end >= 0 {
			b.WriteString(g.redaction)
			pos = end
		}
		b.WriteString(content[pos:s.start])
		end = s.end
	}
	b.WriteString(g.redaction)
	b.WriteString(content[end:])
	return b.String()
}
