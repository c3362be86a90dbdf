package authn

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Policy decides what happens to a path.
type Policy int

const (
	// Protect requires an authenticated user.
	Protect Policy = iota + 1
	// Allow forwards without authentication.
	Allow
)

// String implements fmt.Stringer.
func (p Policy) String() string {
	switch p {
	case Protect:
		return "protect"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// ParsePolicy maps "protect" and "allow" (also "public") to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "protect", "deny":
		return Protect, nil
	case "allow", "public":
		return Allow, nil
	default:
		return 0, fmt.Errorf("authn: unknown policy %q", s)
	}
}

// PathRule pairs a pattern with whether matching paths require auth.
// Patterns are exact paths or globs where "*" matches within one segment
// and "**" across segments.
type PathRule struct {
	Pattern      string
	RequiresAuth bool
}

// ParseRule parses "protect:/api/**" or "public:/login".
func ParseRule(s string) (PathRule, error) {
	kind, pattern, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || pattern == "" {
		return PathRule{}, fmt.Errorf("authn: rule %q must look like <protect|public>:<pattern>", s)
	}
	policy, err := ParsePolicy(kind)
	if err != nil {
		return PathRule{}, err
	}
	return PathRule{Pattern: pattern, RequiresAuth: policy == Protect}, nil
}

type compiledRule struct {
	PathRule
	glob glob.Glob
}

// PathMatcher evaluates rules in order; the first match wins and the
// default policy applies otherwise. It is immutable after construction.
type PathMatcher struct {
	rules    []compiledRule
	fallback Policy
}

// NewPathMatcher compiles rules. The fallback must be Protect or Allow.
func NewPathMatcher(fallback Policy, rules ...PathRule) (*PathMatcher, error) {
	if fallback != Protect && fallback != Allow {
		return nil, fmt.Errorf("authn: default policy must be set explicitly")
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("authn: compile rule %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{PathRule: r, glob: g})
	}
	return &PathMatcher{rules: compiled, fallback: fallback}, nil
}

// RequiresAuth reports whether path needs an authenticated user.
func (m *PathMatcher) RequiresAuth(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, r := range m.rules {
		if r.Pattern == path || r.glob.Match(path) {
			return r.RequiresAuth
		}
	}
	return m.fallback == Protect
}

// Default returns the policy applied when no rule matches.
func (m *PathMatcher) Default() Policy {
	return m.fallback
}
