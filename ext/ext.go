// Package ext holds the tag names, numeric codes, and span field keys shared
// between the tracer's internal components and any caller that inspects spans
// directly.
package ext

// Sampling priority values, transported across services in the
// "_sampling_priority_v1" metric and in propagation headers. Values below 1
// mean "drop", values of 1 or more mean "keep".
const (
	PriorityUserReject = -1
	PriorityAutoReject = 0
	PriorityAutoKeep   = 1
	PriorityUserKeep   = 2
)

// Span tag/metric keys used across the sampler, the propagation codec, and
// the trace segment. The "_dd." prefix marks library-reserved tags.
const (
	ServiceName  = "service.name"
	ResourceName = "resource.name"
	SpanType     = "span.type"
	Error        = "error"
	ErrorMsg     = "error.message"
	ErrorType    = "error.type"
	ErrorStack   = "error.stack"

	SamplingPriority = "_sampling_priority_v1"

	TagHostname        = "_dd.hostname"
	TagOrigin          = "_dd.origin"
	TagPropagationErr  = "_dd.propagation_error"
	TagDecisionMaker   = "_dd.p.dm"
	TagAgentPSR        = "_dd.agent_psr"
	TagRuleSampleRate  = "_dd.rule_psr"
	TagLimiterRate     = "_dd.limit_psr"
	TagBaseService     = "_dd.base_service"
	TagTraceID128      = "_dd.p.tid"
	PropagatedTagPrefix = "_dd.p."

	SpanSamplingMechanism     = "_dd.span_sampling.mechanism"
	SingleSpanSamplingRuleRate = "_dd.span_sampling.rule_rate"
	SingleSpanSamplingMPS      = "_dd.span_sampling.max_per_second"
)

// Mechanism codes recorded as the decision maker ("_dd.p.dm") suffix and used
// to select the span.SamplingPriority metric's meaning. These values are
// stable across tracer versions and must match the agent's expectations.
const (
	MechanismUnknown           = -1
	MechanismDefault           = 0
	MechanismAgentRate         = 1
	MechanismRemoteRate        = 2
	MechanismRuleRate          = 3
	MechanismManual            = 4
	MechanismSingleSpanSampling = 8
)

// Lang identifies this tracer's implementation language to the agent.
const Lang = "go"
