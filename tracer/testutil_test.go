package tracer

import (
	"sync"
	"time"
)

// fakeClock lets tests control "now" deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequentialIDGenerator hands out 1, 2, 3, ... so tests can predict ids.
type sequentialIDGenerator struct {
	mu   sync.Mutex
	next uint64
}

func newSequentialIDGenerator(start uint64) *sequentialIDGenerator {
	return &sequentialIDGenerator{next: start}
}

func (g *sequentialIDGenerator) GenerateID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next
	g.next++
	return id
}

// fakeCollector records every batch it's given, standing in for the
// uploader in tests that exercise the trace segment in isolation.
type fakeCollector struct {
	mu      sync.Mutex
	batches [][]spanData
}

func (c *fakeCollector) Push(spans []spanData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, spans)
}

func (c *fakeCollector) all() [][]spanData {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]spanData, len(c.batches))
	copy(out, c.batches)
	return out
}

// carrier is an in-memory TextMapWriter/TextMapReader, standing in for an
// HTTP header map.
type carrier map[string]string

func (c carrier) Set(key, value string) { c[key] = value }

func (c carrier) ForeachKey(handler func(key, value string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// newTestConfig builds a finalizedConfig wired to a fakeCollector and
// deterministic clock/id generator, bypassing environment variables and
// network I/O entirely.
func newTestConfig(service string, rules []Rule, spanRules []Rule) (*finalizedConfig, *fakeCollector, *fakeClock) {
	clock := newFakeClock(time.Unix(1700000000, 0))
	coll := &fakeCollector{}
	cfg := &finalizedConfig{
		ServiceName:          service,
		GlobalTags:           map[string]string{},
		Enabled:              true,
		InjectStyles:         []PropagationStyle{StyleDatadog},
		ExtractStyles:        []PropagationStyle{StyleDatadog},
		MaxPropagatedTagsLen: defaultMaxPropagatedTagsLen,
		IDGenerator:          newSequentialIDGenerator(100),
		Clock:                clock,
		Sampler:              newTraceSampler(rules, 100, clock),
		SpanSampler:          newSpanSampler(spanRules, clock),
		Collector:            coll,
	}
	return cfg, coll, clock
}
