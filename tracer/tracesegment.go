package tracer

import (
	"sync"

	"github.com/dd-trace-core/tracer/ext"
)

// samplingOrigin records who made a trace segment's sampling decision.
type samplingOrigin int

const (
	OriginLocal samplingOrigin = iota
	OriginExtracted
	OriginDelegated
)

// samplingDecision holds a priority, the mechanism that produced it, and
// where it came from.
type samplingDecision struct {
	priority  int
	mechanism int
	origin    samplingOrigin
}

// collector is the agent uploader's contract as seen by a trace segment:
// accept a finished batch of spans belonging to one trace.
type collector interface {
	Push(spans []spanData)
}

// traceSegment is the per-process coordinator shared by every live span of
// one trace. It owns the open-span counter, the sampling decision, the
// propagated-tags mapping, and the finished span buffer, and submits
// exactly once, when the open count returns to zero.
type traceSegment struct {
	mu sync.Mutex

	cfg *finalizedConfig

	traceID   uint64
	rootID    uint64
	rootIndex int // index into spans once the root has finished, else -1
	rootSpan  *Span

	spans     []spanData
	openCount int
	submitted bool

	decision        *samplingDecision
	pendingRateTags map[string]float64
	dmInjected      bool

	traceTags map[string]string // the "_dd.p." propagated subset
	origin    string

	deferredPropErr string
}

func newTraceSegment(cfg *finalizedConfig, traceID uint64, extracted *extractedContext) *traceSegment {
	t := &traceSegment{
		cfg:       cfg,
		traceID:   traceID,
		rootIndex: -1,
		openCount: 1,
		traceTags: make(map[string]string),
	}
	if extracted != nil {
		t.origin = extracted.origin
		if extracted.traceTags != nil {
			for k, v := range extracted.traceTags {
				t.traceTags[k] = v
			}
		}
		if extracted.hasPriority {
			t.decision = &samplingDecision{
				priority:  *extracted.priority,
				mechanism: ext.MechanismUnknown,
				origin:    OriginExtracted,
			}
		}
	}
	return t
}

// bindRoot records the segment's local root span. Called once by the
// tracer facade immediately after both are constructed.
func (t *traceSegment) bindRoot(s *Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rootSpan = s
	t.rootID = s.data.SpanID
}

// addChild increments the open-span counter for a newly created child.
// Child creation must observe open_count > 0; a segment that has already
// submitted refuses new children.
func (t *traceSegment) addChild() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openCount <= 0 {
		return false
	}
	t.openCount++
	return true
}

// finishSpan records a closed span's data and, if this was the last live
// span, finalizes sampling, enriches the root, and submits the batch. The
// collector call happens outside the segment lock.
func (t *traceSegment) finishSpan(data spanData) {
	var batch []spanData
	var doPush bool

	t.mu.Lock()
	idx := len(t.spans)
	t.spans = append(t.spans, data)
	if data.SpanID == t.rootID {
		t.rootIndex = idx
	}
	t.openCount--
	if t.openCount == 0 && !t.submitted {
		t.submitted = true
		t.ensureDecisionLocked()
		t.enrichRootLocked()
		batch = t.buildBatchLocked()
		doPush = true
	}
	t.mu.Unlock()

	if doPush && t.cfg.Collector != nil {
		t.cfg.Collector.Push(batch)
	}
}

// rootFieldsLocked returns the local root's current service/name/resource
// and string tags, reading from the finished record if the root has
// already closed, or from the live span otherwise.
func (t *traceSegment) rootFieldsLocked() (service, name, resource string, tags map[string]string) {
	if t.rootIndex >= 0 {
		d := t.spans[t.rootIndex]
		return d.Service, d.Name, d.Resource, d.Meta
	}
	if t.rootSpan == nil {
		return "", "", "", nil
	}
	t.rootSpan.mu.Lock()
	defer t.rootSpan.mu.Unlock()
	d := t.rootSpan.data
	tagsCopy := make(map[string]string, len(d.Meta))
	for k, v := range d.Meta {
		tagsCopy[k] = v
	}
	return d.Service, d.Name, d.Resource, tagsCopy
}

// ensureDecisionLocked finalizes the sampling decision if one has not
// already been made, consulting the trace sampler on the root's current
// field values. Safe to call repeatedly; only the first call (absent an
// override) has effect.
func (t *traceSegment) ensureDecisionLocked() {
	if t.decision != nil {
		return
	}
	service, name, resource, tags := t.rootFieldsLocked()
	if service == "" {
		service = t.cfg.ServiceName
	}
	result := t.cfg.Sampler.sample(t.traceID, service, name, resource, t.cfg.Env, tags)
	t.decision = &samplingDecision{priority: result.priority, mechanism: result.mechanism, origin: OriginLocal}
	t.pendingRateTags = result.rateTags
	t.injectDecisionMakerLocked()
}

// injectDecisionMakerLocked appends "_dd.p.dm" to the propagated-tags set
// the first time a keep decision is made locally.
func (t *traceSegment) injectDecisionMakerLocked() {
	if t.dmInjected || t.decision == nil || t.decision.origin != OriginLocal {
		return
	}
	if t.decision.priority < 1 {
		return
	}
	t.traceTags[ext.TagDecisionMaker] = decisionMakerTag(t.decision.mechanism)
	t.dmInjected = true
}

// overrideSamplingPriority replaces the current decision with an
// operator-initiated one (mechanism = MANUAL, origin = Local), allowed at
// any time prior to submission. This clears any pending agent/rule rate
// tags, since they no longer describe how the trace was sampled.
func (t *traceSegment) overrideSamplingPriority(priority int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decision = &samplingDecision{priority: priority, mechanism: ext.MechanismManual, origin: OriginLocal}
	t.pendingRateTags = nil
	t.dmInjected = false
	t.injectDecisionMakerLocked()
}

// enrichRootLocked attaches hostname, origin, sampling priority, rate
// tags, and any deferred propagation-error tag to the local root span
// immediately before submission.
func (t *traceSegment) enrichRootLocked() {
	if t.rootIndex < 0 {
		return
	}
	root := &t.spans[t.rootIndex]
	if t.cfg.HostnameEnabled && t.cfg.Hostname != "" {
		root.Meta[ext.TagHostname] = t.cfg.Hostname
	}
	if t.origin != "" {
		root.Meta[ext.TagOrigin] = t.origin
	}
	if t.decision != nil {
		root.Metrics[ext.SamplingPriority] = float64(t.decision.priority)
	}
	for k, v := range t.pendingRateTags {
		root.Metrics[k] = v
	}
	if dm, ok := t.traceTags[ext.TagDecisionMaker]; ok {
		root.Meta[ext.TagDecisionMaker] = dm
	}
	if t.deferredPropErr != "" {
		root.Meta[ext.TagPropagationErr] = t.deferredPropErr
		t.deferredPropErr = ""
	}
}

// buildBatchLocked decides what to submit: the whole batch when the
// trace is kept, or only the spans the span sampler keeps (still carrying
// their original trace/parent ids) when it was dropped.
func (t *traceSegment) buildBatchLocked() []spanData {
	if t.decision != nil && t.decision.priority > 0 {
		return t.spans
	}
	if t.cfg.SpanSampler == nil {
		return nil
	}
	kept := make([]spanData, 0, len(t.spans))
	for _, d := range t.spans {
		res := t.cfg.SpanSampler.sample(d.SpanID, d.Service, d.Name, d.Resource, d.Meta)
		if !res.keep {
			continue
		}
		res.applyTo(&d)
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// recordPropagationError defers a "_dd.propagation_error" tag to be
// attached at enrichment time, used when an inject call can't fit the
// propagated-tags payload within its configured cap.
func (t *traceSegment) recordPropagationError(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deferredPropErr = code
}

// inject finalizes the sampling decision if needed (so that the priority
// reported here is stable for the remainder of the trace, per the
// "monotone priority" property) and returns everything the propagation
// codec needs to fill a carrier.
func (t *traceSegment) inject() (priority *int, hasPriority bool, origin string, tags map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureDecisionLocked()
	tagsCopy := make(map[string]string, len(t.traceTags))
	for k, v := range t.traceTags {
		tagsCopy[k] = v
	}
	if t.decision == nil {
		return nil, false, t.origin, tagsCopy
	}
	p := t.decision.priority
	return &p, true, t.origin, tagsCopy
}
