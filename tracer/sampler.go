package tracer

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/dd-trace-core/tracer/ext"
)

// knuthFactor is the odd 64-bit multiplier used to turn a trace id into a
// deterministic pseudo-random value for sampling, matching the legacy
// tracer/sampler.go and ddtrace/tracer/sampler.go formula so that
// independently-configured tracers agree on the same trace id.
const knuthFactor uint64 = 1111111111111111111

// knuthHash intentionally overflows uint64 multiplication (mod 2^64).
func knuthHash(traceID uint64) uint64 { return traceID * knuthFactor }

// sampledByRate reports whether traceID's hash falls below rate's share of
// the id space, using knuthHash. rate <= 0 never keeps; rate >= 1 always
// keeps.
func sampledByRate(traceID uint64, rate float64) bool {
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	return float64(knuthHash(traceID)) < rate*maxUint64Float
}

var maxUint64Float = math.Nextafter(1<<64, 0)

// rateTableKey builds the agent-rate table lookup key for a service+env
// pair: "service:<svc>,env:<env>".
func rateTableKey(service, env string) string {
	return fmt.Sprintf("service:%s,env:%s", service, env)
}

const rateTableDefaultKey = "service:,env:"

// traceSampler implements the trace-sampler decision algorithm: rule match
// first, then the agent-supplied rate table, then a process default.
type traceSampler struct {
	rules      []Rule
	limiter    *rateLimiter
	agentRates atomic.Pointer[map[string]float64]
}

func newTraceSampler(rules []Rule, limiterCapacity float64, clock Clock) *traceSampler {
	s := &traceSampler{
		rules:   rules,
		limiter: newRateLimiter(limiterCapacity, clock),
	}
	empty := map[string]float64{}
	s.agentRates.Store(&empty)
	return s
}

// updateAgentRates atomically replaces the agent-rate table, as reported by
// the collector's response to a flush.
func (s *traceSampler) updateAgentRates(rates map[string]float64) {
	cp := make(map[string]float64, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	s.agentRates.Store(&cp)
}

// traceSampleResult carries the outcome of a trace-sampler evaluation: the
// keep/drop decision, the mechanism that produced it, and any sample-rate
// tags that should be recorded on the local root span.
type traceSampleResult struct {
	keep      bool
	mechanism int
	priority  int
	rateTags  map[string]float64
}

// sample evaluates the trace sampler's decision algorithm
// against the local root span's final field values.
func (s *traceSampler) sample(traceID uint64, service, name, resource, env string, tags map[string]string) traceSampleResult {
	rateTags := map[string]float64{}

	if rule := s.matchRule(service, name, resource, tags); rule != nil {
		keep := sampledByRate(traceID, rule.SampleRate)
		rateTags[ext.TagRuleSampleRate] = rule.SampleRate
		if keep {
			allowed, effRate := s.limiter.allow()
			rateTags[ext.TagLimiterRate] = effRate
			if !allowed {
				keep = false
			}
		}
		priority := ext.PriorityAutoReject
		if keep {
			priority = ext.PriorityUserKeep
		}
		return traceSampleResult{keep: keep, mechanism: ext.MechanismRuleRate, priority: priority, rateTags: rateTags}
	}

	rates := *s.agentRates.Load()
	if rate, ok := rates[rateTableKey(service, env)]; ok {
		rateTags[ext.TagAgentPSR] = rate
		keep := sampledByRate(traceID, rate)
		priority := ext.PriorityAutoReject
		if keep {
			priority = ext.PriorityAutoKeep
		}
		return traceSampleResult{keep: keep, mechanism: ext.MechanismAgentRate, priority: priority, rateTags: rateTags}
	}

	rate := 1.0
	if def, ok := rates[rateTableDefaultKey]; ok {
		rate = def
	}
	rateTags[ext.TagAgentPSR] = rate
	keep := sampledByRate(traceID, rate)
	priority := ext.PriorityAutoReject
	mech := ext.MechanismDefault
	if keep {
		priority = ext.PriorityAutoKeep
	}
	return traceSampleResult{keep: keep, mechanism: mech, priority: priority, rateTags: rateTags}
}

func (s *traceSampler) matchRule(service, name, resource string, tags map[string]string) *Rule {
	for i := range s.rules {
		if s.rules[i].Matches(service, name, resource, tags) {
			return &s.rules[i]
		}
	}
	return nil
}
