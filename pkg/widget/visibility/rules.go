// Package visibility derives which widget surfaces are shown: the launcher,
// the backdrop and the host-page elements hidden while the widget is up.
package visibility

import (
	"net/url"
	"strings"
)

// Wildcard is the rule matching every path, and the suffix marking a prefix
// rule.
const Wildcard = "*"

type RuleKind int

const (
	RuleExact RuleKind = iota
	RulePrefix
	RuleWildcard
)

// Rule is one path restriction.
type Rule struct {
	Kind RuleKind
	// Path is the normalized path (exact rules) or prefix (prefix rules).
	Path string
	// Segment is set for prefix rules written as "/dir/*": they match "/dir"
	// and everything below it, but not "/directory".
	Segment bool
}

// ParseRule parses "*", "<prefix>*" or an exact path.
func ParseRule(raw string) Rule {
	raw = strings.TrimSpace(raw)
	if raw == Wildcard {
		return Rule{Kind: RuleWildcard}
	}
	if strings.HasSuffix(raw, Wildcard) {
		prefix := strings.TrimSuffix(raw, Wildcard)
		return Rule{
			Kind:    RulePrefix,
			Path:    NormalizePath(prefix),
			Segment: strings.HasSuffix(prefix, "/"),
		}
	}
	return Rule{Kind: RuleExact, Path: NormalizePath(raw)}
}

// Match reports whether the normalized path matches the rule.
func (r Rule) Match(path string) bool {
	switch r.Kind {
	case RuleWildcard:
		return true
	case RulePrefix:
		if r.Path == "/" {
			return true
		}
		// "/dir/*" covers /dir itself and everything below it, but not
		// /directory.
		if r.Segment {
			return path == r.Path || strings.HasPrefix(path, r.Path+"/")
		}
		return strings.HasPrefix(path, r.Path)
	default:
		return path == r.Path
	}
}

// Rules is an ordered rule set.
type Rules []Rule

func ParseRules(raw []string) Rules {
	out := make(Rules, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		out = append(out, ParseRule(r))
	}
	return out
}

// Match reports whether any rule matches rawPath after normalization.
func (rs Rules) Match(rawPath string) bool {
	path := NormalizePath(rawPath)
	for _, r := range rs {
		if r.Match(path) {
			return true
		}
	}
	return false
}

var root = &url.URL{Path: "/"}

// NormalizePath strips query and fragment, resolves the path against "/",
// removes trailing slashes and maps the empty path to "/".
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = root.ResolveReference(u).Path
	} else if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
