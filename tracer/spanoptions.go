package tracer

import "time"

// StartSpanConfig collects the options passed to StartSpan/CreateChild.
type StartSpanConfig struct {
	Service      string
	Resource     string
	SpanType     string
	Tags         map[string]interface{}
	StartTime    time.Time
}

// StartSpanOption configures a newly created span.
type StartSpanOption func(*StartSpanConfig)

// Tag sets an initial tag on the new span.
func Tag(key string, value interface{}) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = make(map[string]interface{})
		}
		cfg.Tags[key] = value
	}
}

// WithServiceName overrides the new span's service.
func WithServiceName(name string) StartSpanOption {
	return func(cfg *StartSpanConfig) { cfg.Service = name }
}

// WithResourceName sets the new span's resource.
func WithResourceName(name string) StartSpanOption {
	return func(cfg *StartSpanConfig) { cfg.Resource = name }
}

// WithSpanType sets the new span's type.
func WithSpanType(t string) StartSpanOption {
	return func(cfg *StartSpanConfig) { cfg.SpanType = t }
}

// WithStartTime overrides the new span's start time; default is now.
func WithStartTime(t time.Time) StartSpanOption {
	return func(cfg *StartSpanConfig) { cfg.StartTime = t }
}

// FinishConfig collects the options passed to Span.Finish.
type FinishConfig struct {
	FinishTime time.Time
	Error      error
}

// FinishOption configures a Finish call.
type FinishOption func(*FinishConfig)

// FinishTime overrides the end time recorded for the span, equivalent to a
// prior call to SetEndTime.
func FinishTime(t time.Time) FinishOption {
	return func(cfg *FinishConfig) { cfg.FinishTime = t }
}

// WithError marks the span as errored and records err's message, mirroring
// the legacy tracer's finish-time error option.
func WithError(err error) FinishOption {
	return func(cfg *FinishConfig) { cfg.Error = err }
}
