package tracer

import "fmt"

// ErrorKind classifies a tracerError for callers that want to branch on
// failure category without string matching. Values are stable across
// releases.
type ErrorKind int32

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindParsing
	KindPropagation
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindParsing:
		return "parsing"
	case KindPropagation:
		return "propagation"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// tracerError is the single error type produced by this package's data-path
// code. It never wraps a panic; constructors only panic on programmer
// misuse of functional options, mirroring the legacy tracer's behavior for
// WithGlobalTags.
type tracerError struct {
	kind ErrorKind
	msg  string
	err  error
}

func (e *tracerError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %s", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *tracerError) Unwrap() error { return e.err }

// Kind returns the error's category.
func (e *tracerError) Kind() ErrorKind { return e.kind }

func newConfigError(msg string, err error) *tracerError {
	return &tracerError{kind: KindConfiguration, msg: msg, err: err}
}

func newParsingError(msg string, err error) *tracerError {
	return &tracerError{kind: KindParsing, msg: msg, err: err}
}

func newPropagationError(msg string, err error) *tracerError {
	return &tracerError{kind: KindPropagation, msg: msg, err: err}
}

func newIOError(msg string, err error) *tracerError {
	return &tracerError{kind: KindIO, msg: msg, err: err}
}
