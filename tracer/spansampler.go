package tracer

import "github.com/dd-trace-core/tracer/ext"

// spanSamplingRule pairs a Matcher with a sample rate and an independent
// per-rule rate limiter, consulted only when the enclosing trace has been
// dropped.
type spanSamplingRule struct {
	Rule
	limiter *rateLimiter // nil when the rule is unlimited
}

// spanSampler independently decides whether individual spans of an
// already-dropped trace should still be emitted. Unlike the
// trace sampler it hashes the span id, not the trace id, since the
// decision must vary span-by-span within one dropped trace.
type spanSampler struct {
	rules []*spanSamplingRule
	clock Clock
}

func newSpanSampler(rules []Rule, clock Clock) *spanSampler {
	if clock == nil {
		clock = realClock{}
	}
	out := make([]*spanSamplingRule, 0, len(rules))
	for _, r := range rules {
		sr := &spanSamplingRule{Rule: r}
		if r.MaxPerSecond > 0 {
			sr.limiter = newRateLimiter(r.MaxPerSecond, clock)
		}
		out = append(out, sr)
	}
	return &spanSampler{rules: out, clock: clock}
}

// spanSampleResult reports whether a span survives independent sampling
// and the tags that must be attached when it does.
type spanSampleResult struct {
	keep     bool
	ruleRate float64
	maxPS    float64 // 0 means unlimited / not configured
}

func (s *spanSampler) sample(spanID uint64, service, name, resource string, tags map[string]string) spanSampleResult {
	for _, r := range s.rules {
		if !r.Matches(service, name, resource, tags) {
			continue
		}
		if !sampledByRate(spanID, r.SampleRate) {
			return spanSampleResult{keep: false}
		}
		if r.limiter != nil {
			if allowed, _ := r.limiter.allow(); !allowed {
				return spanSampleResult{keep: false}
			}
		}
		return spanSampleResult{keep: true, ruleRate: r.SampleRate, maxPS: r.MaxPerSecond}
	}
	return spanSampleResult{keep: false}
}

// applyTo attaches the three numeric tags the span sampler records on a
// kept span: mechanism, rule_rate, and (when configured) max_per_second.
// Called on a finished spanData record, since span sampling runs over
// already-closed spans at trace submission time.
func (r spanSampleResult) applyTo(d *spanData) {
	d.setNumericTagLocked(ext.SpanSamplingMechanism, float64(ext.MechanismSingleSpanSampling))
	d.setNumericTagLocked(ext.SingleSpanSamplingRuleRate, r.ruleRate)
	if r.maxPS > 0 {
		d.setNumericTagLocked(ext.SingleSpanSamplingMPS, r.maxPS)
	}
}
