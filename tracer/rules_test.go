package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"?", "a", true},
		{"?", "", false},
		{"?", "ab", false},
		{"test.?", "test.a", true},
		{"test.?", "test.ab", false},
		{"*.honey", "get.honey", true},
		{"*.honey", "honey", false},
		{"get.*", "get.honey", true},
		{"poohbear", "poohbear", true},
		{"poohbear", "Poohbear", false},
		{"a?c*", "abcdef", true},
		{"a?c*", "ac", false},
	}
	for _, tc := range tests {
		m := Matcher{Service: tc.pattern}
		got := m.Matches(tc.input, "op", "res", nil)
		assert.Equal(t, tc.want, got, "pattern %q against %q", tc.pattern, tc.input)
	}
}

func TestMatcherDefaultsToWildcard(t *testing.T) {
	m := Matcher{}
	assert.True(t, m.Matches("any-service", "any-name", "any-resource", map[string]string{"k": "v"}))
}

func TestMatcherRequiredTags(t *testing.T) {
	m := Matcher{Tags: map[string]string{"http.method": "GET"}}
	assert.True(t, m.Matches("svc", "op", "res", map[string]string{"http.method": "GET"}))
	assert.False(t, m.Matches("svc", "op", "res", map[string]string{"http.method": "POST"}))
	assert.False(t, m.Matches("svc", "op", "res", nil))
}

func TestMatcherAllFourFields(t *testing.T) {
	m := Matcher{Service: "poohbear", Name: "get.honey", Resource: "*"}
	assert.True(t, m.Matches("poohbear", "get.honey", "anything", nil))
	assert.False(t, m.Matches("poohbear", "get.jam", "anything", nil))
}

func TestRuleJSONRoundTrip(t *testing.T) {
	j := ruleJSON{Service: "svc", SampleRate: floatPtr(0.5)}
	r := ruleFromJSON(j, RuleKindTrace)
	assert.Equal(t, "svc", r.Service)
	assert.Equal(t, 0.5, r.SampleRate)
	assert.Equal(t, RuleKindTrace, r.Kind)

	back := r.toJSON()
	assert.Equal(t, "1", back.Type)
	assert.Equal(t, "svc", back.Service)
}

func floatPtr(f float64) *float64 { return &f }
