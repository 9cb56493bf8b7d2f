package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/yousuf/stackmap/internal/config"
)

type rewriteRule struct {
	match glob.Glob
	rule  config.RewriteRule
}

// Rewriter is a formatter driven by ordered glob rules. The first rule whose
// pattern matches a path strips StripPrefix, prepends Prefix and appends
// Append. Paths no rule matches pass through unchanged.
type Rewriter struct {
	rules []rewriteRule
}

// NewRewriter compiles rules with '/' as the segment separator, so '*' stays
// within one segment and '**' crosses them
func NewRewriter(rules []config.RewriteRule) (*Rewriter, error) {
	r := &Rewriter{rules: make([]rewriteRule, 0, len(rules))}
	for i, rule := range rules {
		g, err := glob.Compile(rule.Match, '/')
		if err != nil {
			return nil, fmt.Errorf("rewrites[%d]: invalid pattern %q: %w", i, rule.Match, err)
		}
		r.rules = append(r.rules, rewriteRule{match: g, rule: rule})
	}
	return r, nil
}

func (r *Rewriter) Format(_ context.Context, path string) (string, error) {
	return r.Rewrite(path), nil
}

// Rewrite applies the first matching rule to path
func (r *Rewriter) Rewrite(path string) string {
	for _, rr := range r.rules {
		if !rr.match.Match(path) {
			continue
		}
		out := strings.TrimPrefix(path, rr.rule.StripPrefix)
		out = rr.rule.Prefix + out
		if rr.rule.Append != "" && !strings.HasSuffix(out, rr.rule.Append) {
			out += rr.rule.Append
		}
		return out
	}
	return path
}
