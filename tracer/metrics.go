package tracer

import "github.com/DataDog/datadog-go/v5/statsd"

// healthMetrics wraps a statsd client for the tracer's own internal health
// counters. The uploader counts failed flushes ("flush.errors") and traces
// sent per flush ("flush.traces"); started spans and dropped traces are not
// counted. It is
// nil-safe throughout so metrics remain fully optional, mirroring how the
// teacher's tracerstats package degrades to a no-op when telemetry is
// disabled.
type healthMetrics struct {
	client *statsd.Client
}

func newHealthMetrics(addr string) *healthMetrics {
	if addr == "" {
		return &healthMetrics{}
	}
	c, err := statsd.New(addr, statsd.WithNamespace("datadog.tracer."))
	if err != nil {
		return &healthMetrics{}
	}
	return &healthMetrics{client: c}
}

func (m *healthMetrics) count(name string, value int64) {
	if m == nil || m.client == nil {
		return
	}
	_ = m.client.Count(name, value, nil, 1)
}

func (m *healthMetrics) close() {
	if m == nil || m.client == nil {
		return
	}
	_ = m.client.Close()
}
