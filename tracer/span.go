package tracer

import (
	"strings"
	"sync"
	"time"

	"github.com/dd-trace-core/tracer/ext"
)

// reservedTagPrefix marks tags the library itself manages; SetTag on the
// public path silently rejects keys under this prefix.
const reservedTagPrefix = "_dd."

// spanData is the persistable payload of one finished span: everything
// that gets encoded onto the wire. Field layout mirrors
// ddtrace/tracer/span.go's internal span struct.
type spanData struct {
	Service     string
	ServiceType string
	Name        string
	Resource    string
	TraceID     uint64
	SpanID      uint64
	ParentID    uint64
	Start       int64 // unix nanoseconds
	Duration    int64 // nanoseconds
	Error       bool
	Meta        map[string]string
	Metrics     map[string]float64
}

func newSpanData() spanData {
	return spanData{
		Meta:    make(map[string]string),
		Metrics: make(map[string]float64),
	}
}

// setTagLocked sets a string tag bypassing the "_dd." reservation check.
// Callers must already hold the span's lock (or own it exclusively, as
// during construction).
func (d *spanData) setTagLocked(key, value string) {
	d.Meta[key] = value
}

func (d *spanData) setNumericTagLocked(key string, value float64) {
	d.Metrics[key] = value
}

// Span is a live handle exclusively owning one spanData slot within a
// trace segment. It is safe for concurrent use; every accessor acquires
// the span's own lock, and structural operations (create_child, close)
// also touch the shared segment under the segment's lock.
type Span struct {
	mu       sync.Mutex
	data     spanData
	segment  *traceSegment
	finished bool
	endSet   bool
	endTime  int64
}

// ID returns the span's own id.
func (s *Span) ID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SpanID
}

// TraceID returns the trace id shared by every span in this segment.
func (s *Span) TraceID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.TraceID
}

// ParentID returns the id of this span's parent, or 0 for a local root.
func (s *Span) ParentID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ParentID
}

// SetTag overwrites or inserts a tag. Keys beginning with "_dd." are
// reserved for the library and are silently ignored on this path.
func (s *Span) SetTag(key string, value interface{}) {
	if strings.HasPrefix(key, reservedTagPrefix) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	switch key {
	case ext.Error:
		s.setErrorLocked(toBool(value))
		return
	case ext.ServiceName:
		s.data.Service = toString(value)
		return
	case ext.ResourceName:
		s.data.Resource = toString(value)
		return
	case ext.SpanType:
		s.data.ServiceType = toString(value)
		return
	}
	if f, ok := toFloat64(value); ok {
		s.data.setNumericTagLocked(key, f)
		return
	}
	s.data.setTagLocked(key, toString(value))
}

// RemoveTag deletes a tag if present; idempotent.
func (s *Span) RemoveTag(key string) {
	if strings.HasPrefix(key, reservedTagPrefix) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Meta, key)
	delete(s.data.Metrics, key)
}

// SetServiceName overwrites the span's service field.
func (s *Span) SetServiceName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Service = name
}

// SetName overwrites the span's operation name.
func (s *Span) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Name = name
}

// SetResourceName overwrites the span's resource field.
func (s *Span) SetResourceName(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Resource = resource
}

// SetServiceType overwrites the span's service type field.
func (s *Span) SetServiceType(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ServiceType = t
}

// SetError marks the span as errored or clears the error state. Clearing
// also removes the error.message, error.type, and error.stack tags.
func (s *Span) SetError(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(v)
}

func (s *Span) setErrorLocked(v bool) {
	s.data.Error = v
	if !v {
		delete(s.data.Meta, ext.ErrorMsg)
		delete(s.data.Meta, ext.ErrorType)
		delete(s.data.Meta, ext.ErrorStack)
	}
}

// SetErrorMessage implies SetError(true) and records the message.
func (s *Span) SetErrorMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Error = true
	s.data.setTagLocked(ext.ErrorMsg, msg)
}

// SetErrorType implies SetError(true) and records the error's type name.
func (s *Span) SetErrorType(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Error = true
	s.data.setTagLocked(ext.ErrorType, t)
}

// SetErrorStack implies SetError(true) and records a stack trace.
func (s *Span) SetErrorStack(stack string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Error = true
	s.data.setTagLocked(ext.ErrorStack, stack)
}

// SetEndTime records an explicit close time, overriding the default of
// "now" taken at Finish.
func (s *Span) SetEndTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endSet = true
	s.endTime = t.UnixNano()
}

// CreateChild starts a new span as a child of s: same trace id, parent_id
// set to s's own id, a freshly allocated span id. This requires the
// segment still have at least one live span; calling it concurrently with
// the segment's final close is a contract violation the caller must avoid
// (a span's lifetime must strictly contain its children's creation).
func (s *Span) CreateChild(name string, opts ...StartSpanOption) *Span {
	if !s.segment.addChild() {
		panic("tracer: CreateChild called after the trace segment has already submitted")
	}
	cfg := StartSpanConfig{Service: s.segment.cfg.ServiceName}
	for _, opt := range opts {
		opt(&cfg)
	}
	start := cfg.StartTime
	if start.IsZero() {
		start = s.segment.cfg.Clock.Now()
	}
	data := newSpanData()
	data.Name = name
	data.Service = cfg.Service
	data.Resource = cfg.Resource
	data.ServiceType = cfg.SpanType
	data.TraceID = s.data.TraceID
	data.ParentID = s.ID()
	data.SpanID = s.segment.cfg.IDGenerator.GenerateID()
	data.Start = start.UnixNano()

	child := &Span{data: data, segment: s.segment}
	for k, v := range cfg.Tags {
		child.SetTag(k, v)
	}
	return child
}

// Inject delegates to the propagation codec, writing headers for every
// configured injection style into w. A propagated-tags payload that would
// exceed the configured cap is omitted and recorded as a propagation
// error on the local root.
func (s *Span) Inject(w TextMapWriter) error {
	priority, hasPriority, origin, tags := s.segment.inject()
	if !hasPriority {
		priority = nil
	}
	var omitted bool
	for _, style := range s.segment.cfg.InjectStyles {
		switch style {
		case StyleDatadog:
			if injectDatadog(w, s.data.TraceID, s.ID(), priority, origin, tags, s.segment.cfg.MaxPropagatedTagsLen) {
				omitted = true
			}
		case StyleB3Single:
			injectB3Single(w, s.data.TraceID, s.ID(), priority)
		}
	}
	if omitted {
		s.segment.recordPropagationError("inject_max_size")
		return newPropagationError("propagated tags header omitted: exceeds max size", nil)
	}
	return nil
}

// Finish closes the span exactly once: sets duration, hands the finished
// spanData to the trace segment, and decrements the segment's open-span
// counter. A second call is a no-op, matching the "double-close is
// impossible by construction" contract via an idempotency guard.
func (s *Span) Finish(opts ...FinishOption) {
	cfg := FinishConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true

	if cfg.Error != nil {
		s.setErrorLocked(true)
		s.data.setTagLocked(ext.ErrorMsg, cfg.Error.Error())
	}

	end := cfg.FinishTime
	if end.IsZero() {
		if s.endSet {
			end = time.Unix(0, s.endTime)
		} else {
			end = s.segment.cfg.Clock.Now()
		}
	}
	s.data.Duration = end.UnixNano() - s.data.Start
	if s.data.Duration < 0 {
		s.data.Duration = 0
	}
	data := s.data
	s.mu.Unlock()

	s.segment.finishSpan(data)
}

