package tracer

// Tracer is the factory for spans: it constructs a root span (fresh trace)
// or extracts one from an inbound carrier, in either case binding it to a
// new trace segment.
type Tracer struct {
	cfg *finalizedConfig
}

// Start finalizes opts into configuration and launches the background
// uploader. The returned Tracer's Stop must be called to flush pending
// traces and release the uploader's goroutine.
func Start(opts ...StartOption) (*Tracer, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	fc, err := finalize(c)
	if err != nil {
		return nil, err
	}
	fc.uploader.Start()
	return &Tracer{cfg: fc}, nil
}

// Stop cancels the background flush worker after one final drain and
// closes any optional metrics client.
func (t *Tracer) Stop() {
	t.cfg.uploader.Stop()
	t.cfg.metrics.close()
}

// StartSpan begins a new trace with a fresh local root span.
func (t *Tracer) StartSpan(name string, opts ...StartSpanOption) *Span {
	return t.startRoot(name, nil, opts...)
}

// StartSpanFrom attempts to extract trace context from r using the
// tracer's configured extraction styles; on success the new local root
// continues the extracted trace, otherwise it behaves like StartSpan.
func (t *Tracer) StartSpanFrom(r TextMapReader, name string, opts ...StartSpanOption) *Span {
	ctx, ok := extract(r, t.cfg.ExtractStyles)
	if !ok {
		return t.startRoot(name, nil, opts...)
	}
	return t.startRoot(name, &ctx, opts...)
}

// startRoot builds the local root span and its trace segment. When
// DD_TRACE_ENABLED is false the segment runs the same state machine but
// with no collector attached, so nothing is ever uploaded.
func (t *Tracer) startRoot(name string, extracted *extractedContext, opts ...StartSpanOption) *Span {
	cfg := t.cfg
	if !cfg.Enabled {
		disabled := *cfg
		disabled.Collector = nil
		cfg = &disabled
	}

	startCfg := StartSpanConfig{Service: cfg.ServiceName}
	for _, opt := range opts {
		opt(&startCfg)
	}
	start := startCfg.StartTime
	if start.IsZero() {
		start = cfg.Clock.Now()
	}

	var traceID, parentID uint64
	if extracted != nil {
		traceID, parentID = extracted.traceID, extracted.parentID
	} else {
		traceID = cfg.IDGenerator.GenerateID()
	}

	segment := newTraceSegment(cfg, traceID, extracted)

	data := newSpanData()
	data.Name = name
	data.Service = startCfg.Service
	data.Resource = startCfg.Resource
	data.ServiceType = startCfg.SpanType
	data.TraceID = traceID
	data.ParentID = parentID
	data.SpanID = cfg.IDGenerator.GenerateID()
	data.Start = start.UnixNano()
	for k, v := range cfg.GlobalTags {
		data.setTagLocked(k, v)
	}
	if cfg.Env != "" {
		data.setTagLocked("env", cfg.Env)
	}
	if cfg.Version != "" {
		data.setTagLocked("version", cfg.Version)
	}

	span := &Span{data: data, segment: segment}
	segment.bindRoot(span)
	for k, v := range startCfg.Tags {
		span.SetTag(k, v)
	}
	return span
}

// OverrideSamplingPriority replaces s's trace segment's sampling decision
// with an operator-initiated one. If Inject has already been called, any
// upstream receiver has already seen the prior value; this is not retried
// or retracted.
func (s *Span) OverrideSamplingPriority(priority int) {
	s.segment.overrideSamplingPriority(priority)
}
