package tracer

import (
	"io"

	"github.com/tinylib/msgp/msgp"
)

// spanFieldCount is the number of keys in each span map. encodeSpan writes
// them in the exact order required by the agent's v0.4 endpoint: service,
// name, resource, trace_id, span_id, parent_id, start, duration, error,
// meta, metrics, type.
const spanFieldCount = 12

// encodeSpan writes one span map, hand-rolled in the style of a
// msgp-generated EncodeMsg method since no code generation runs in this
// module.
func encodeSpan(w *msgp.Writer, d spanData) error {
	if err := w.WriteMapHeader(spanFieldCount); err != nil {
		return err
	}
	fields := []struct {
		key   string
		write func() error
	}{
		{"service", func() error { return w.WriteString(d.Service) }},
		{"name", func() error { return w.WriteString(d.Name) }},
		{"resource", func() error { return w.WriteString(d.Resource) }},
		{"trace_id", func() error { return w.WriteUint64(d.TraceID) }},
		{"span_id", func() error { return w.WriteUint64(d.SpanID) }},
		{"parent_id", func() error { return w.WriteUint64(d.ParentID) }},
		{"start", func() error { return w.WriteInt64(d.Start) }},
		{"duration", func() error { return w.WriteInt64(d.Duration) }},
		{"error", func() error { return w.WriteBool(d.Error) }},
		{"meta", func() error { return w.WriteMapStrStr(d.Meta) }},
		{"metrics", func() error { return writeMapStrFloat64(w, d.Metrics) }},
		{"type", func() error { return w.WriteString(d.ServiceType) }},
	}
	for _, f := range fields {
		if err := w.WriteString(f.key); err != nil {
			return err
		}
		if err := f.write(); err != nil {
			return err
		}
	}
	return nil
}

// writeMapStrFloat64 writes a map[string]float64 to the writer. The
// tinylib/msgp version vendored here has no WriteMapStrFloat64 helper,
// so this mirrors the pattern used by its WriteMapStrStr.
func writeMapStrFloat64(w *msgp.Writer, mp map[string]float64) error {
	if err := w.WriteMapHeader(uint32(len(mp))); err != nil {
		return err
	}
	for key, val := range mp {
		if err := w.WriteString(key); err != nil {
			return err
		}
		if err := w.WriteFloat64(val); err != nil {
			return err
		}
	}
	return nil
}

func encodeTrace(w *msgp.Writer, spans []spanData) error {
	if err := w.WriteArrayHeader(uint32(len(spans))); err != nil {
		return err
	}
	for _, s := range spans {
		if err := encodeSpan(w, s); err != nil {
			return err
		}
	}
	return nil
}

// encodePayload writes traces as an array of arrays of span maps, the
// compact binary object encoding required by PUT /v0.4/traces.
func encodePayload(out io.Writer, traces [][]spanData) error {
	w := msgp.NewWriter(out)
	if err := w.WriteArrayHeader(uint32(len(traces))); err != nil {
		return err
	}
	for _, tr := range traces {
		if err := encodeTrace(w, tr); err != nil {
			return err
		}
	}
	return w.Flush()
}
