package tracer

import (
	"regexp"
	"strings"
	"sync"
)

// globMatch compiles a glob pattern using '*' (any run, including empty)
// and '?' (exactly one byte) wildcards into an anchored regular expression
// string. Any other byte is escaped and matched literally. Matching is
// case-sensitive and byte-oriented.
func globMatch(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	return b.String()
}

// globCache avoids recompiling the same pattern on every call; matcher
// construction happens once per finalized rule set, but span-sampling
// evaluates rules per-span on the hot path.
var globCache sync.Map // pattern string -> *regexp.Regexp

func compileGlob(pattern string) *regexp.Regexp {
	if v, ok := globCache.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re := regexp.MustCompile(globMatch(pattern))
	globCache.Store(pattern, re)
	return re
}

// Matcher holds four glob patterns evaluated against a span's service,
// name, resource, and required tag values. A nil or empty field pattern
// defaults to "*" (match anything).
type Matcher struct {
	Service  string
	Name     string
	Resource string
	Tags     map[string]string
}

func patternOrWildcard(p string) string {
	if p == "" {
		return "*"
	}
	return p
}

// Matches reports whether the given field values satisfy the matcher. tags
// is the span's full tag set (strings only; numeric tags never participate
// in rule matching).
func (m Matcher) Matches(service, name, resource string, tags map[string]string) bool {
	if !compileGlob(patternOrWildcard(m.Service)).MatchString(service) {
		return false
	}
	if !compileGlob(patternOrWildcard(m.Name)).MatchString(name) {
		return false
	}
	if !compileGlob(patternOrWildcard(m.Resource)).MatchString(resource) {
		return false
	}
	for tagName, pattern := range m.Tags {
		v, ok := tags[tagName]
		if !ok {
			return false
		}
		if !compileGlob(patternOrWildcard(pattern)).MatchString(v) {
			return false
		}
	}
	return true
}

// RuleKind distinguishes trace rules from span rules for JSON marshaling:
// the wire "type" field is "1" for trace rules and "2" for span rules.
type RuleKind int

const (
	RuleKindTrace RuleKind = 1
	RuleKindSpan  RuleKind = 2
)

// Rule is a matcher plus a sample rate and, for span rules, an optional
// per-second cap.
type Rule struct {
	Matcher
	SampleRate   float64
	MaxPerSecond float64 // 0 means "unlimited" for span rules; unused for trace rules
	Kind         RuleKind
}

// ruleJSON mirrors the wire/config shape: service, name, resource, tags,
// sample_rate, type, max_per_second, in that field order.
type ruleJSON struct {
	Service      string            `json:"service,omitempty"`
	Name         string            `json:"name,omitempty"`
	Resource     string            `json:"resource,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	SampleRate   *float64          `json:"sample_rate,omitempty"`
	Type         string            `json:"type,omitempty"`
	MaxPerSecond *float64          `json:"max_per_second,omitempty"`
}

func (r Rule) toJSON() ruleJSON {
	out := ruleJSON{
		Service:  r.Service,
		Name:     r.Name,
		Resource: r.Resource,
		Tags:     r.Tags,
	}
	rate := r.SampleRate
	out.SampleRate = &rate
	if r.Kind == RuleKindSpan {
		out.Type = "2"
		if r.MaxPerSecond > 0 {
			mps := r.MaxPerSecond
			out.MaxPerSecond = &mps
		}
	} else {
		out.Type = "1"
	}
	return out
}

func ruleFromJSON(j ruleJSON, kind RuleKind) Rule {
	r := Rule{
		Matcher: Matcher{
			Service:  j.Service,
			Name:     j.Name,
			Resource: j.Resource,
			Tags:     j.Tags,
		},
		SampleRate: 1.0,
		Kind:       kind,
	}
	if j.SampleRate != nil {
		r.SampleRate = *j.SampleRate
	}
	if j.MaxPerSecond != nil {
		r.MaxPerSecond = *j.MaxPerSecond
	}
	return r
}
