package guardrails

import (
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaksScanner wraps the default gitleaks rule catalog. The detector
// accumulates state across scans, so calls are serialized.
type gitleaksScanner struct {
	mu       sync.Mutex
	detector *detect.Detector
}

func newGitleaksScanner() (*gitleaksScanner, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	return &gitleaksScanner{detector: d}, nil
}

// scan returns a span for every occurrence of every detected secret.
func (g *gitleaksScanner) scan(content string) []span {
	g.mu.Lock()
	findings := g.detector.DetectString(content)
	g.mu.Unlock()

	var out []span
	seen := map[string]bool{}
	for _, f := range findings {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" || seen[f.RuleID+"\x00"+secret] {
			continue
		}
		seen[f.RuleID+"\x00"+secret] = true

		for from := 0; ; {
			i := strings.Index(content[from:], secret)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, span{
				start:       start,
				end:         start + len(secret),
				ruleID:      "gitleaks:" + f.RuleID,
				description: f.Description,
				kind:        KindSecret,
			})
			from = start + len(secret)
		}
	}
	return out
}
