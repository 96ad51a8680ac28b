package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd-trace-core/tracer/ext"
)

func TestExtractDatadogHeaders(t *testing.T) {
	headers := carrier{
		"x-datadog-trace-id":          "123",
		"x-datadog-parent-id":         "456",
		"x-datadog-sampling-priority": "7",
	}
	ctx, ok := extract(headers, []PropagationStyle{StyleDatadog})
	require.True(t, ok)
	assert.Equal(t, uint64(123), ctx.traceID)
	assert.Equal(t, uint64(456), ctx.parentID)
	require.True(t, ctx.hasPriority)
	assert.Equal(t, 7, *ctx.priority)
}

func TestScenario2ExtractedPriorityPersistsToRoot(t *testing.T) {
	cfg, coll, _ := newTestConfig("testsvc", nil, nil)
	tr := &Tracer{cfg: cfg}
	headers := carrier{
		"x-datadog-trace-id":          "123",
		"x-datadog-parent-id":         "456",
		"x-datadog-sampling-priority": "7",
	}
	span := tr.StartSpanFrom(headers, "web.request")
	span.Finish()

	batches := coll.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	root := batches[0][0]
	assert.Equal(t, float64(7), root.Metrics[ext.SamplingPriority])
}

func TestScenario3PropagatedTagsFilteredAndDecisionMakerAdded(t *testing.T) {
	cfg, _, _ := newTestConfig("testsvc", nil, nil)
	tr := &Tracer{cfg: cfg}
	headers := carrier{
		"x-datadog-trace-id":  "123",
		"x-datadog-parent-id": "456",
		"x-datadog-tags":      "_dd.p.one=1,_dd.p.two=2,three=3",
	}
	span := tr.StartSpanFrom(headers, "web.request")

	out := carrier{}
	err := span.Inject(out)
	require.NoError(t, err)

	tagsHeader := out["x-datadog-tags"]
	assert.Contains(t, tagsHeader, "_dd.p.one=1")
	assert.Contains(t, tagsHeader, "_dd.p.two=2")
	assert.NotContains(t, tagsHeader, "three=3")
	assert.Contains(t, tagsHeader, "_dd.p.dm=")

	span.Finish()
}

func TestRoundTripPropagation(t *testing.T) {
	cfg, _, _ := newTestConfig("testsvc", nil, nil)
	tr := &Tracer{cfg: cfg}
	span := tr.StartSpan("web.request")

	out := carrier{}
	require.NoError(t, span.Inject(out))

	ctx, ok := extract(out, []PropagationStyle{StyleDatadog})
	require.True(t, ok)
	assert.Equal(t, span.TraceID(), ctx.traceID)
	assert.Equal(t, span.ID(), ctx.parentID)
	require.True(t, ctx.hasPriority)

	again := carrier{}
	require.NoError(t, span.Inject(again))
	assert.Equal(t, out["x-datadog-sampling-priority"], again["x-datadog-sampling-priority"],
		"monotone priority: repeated injections report the same priority")

	span.Finish()
}

func TestB3SingleInjectExtract(t *testing.T) {
	cfg, _, _ := newTestConfig("testsvc", nil, nil)
	cfg.InjectStyles = []PropagationStyle{StyleB3Single}
	tr := &Tracer{cfg: cfg}
	span := tr.StartSpan("web.request")

	out := carrier{}
	require.NoError(t, span.Inject(out))
	assert.NotEmpty(t, out["b3"])

	ctx, ok := extract(out, []PropagationStyle{StyleB3Single})
	require.True(t, ok)
	assert.Equal(t, span.TraceID(), ctx.traceID)

	span.Finish()
}

func TestPropagatedTagsCapOmitsHeader(t *testing.T) {
	cfg, coll, _ := newTestConfig("testsvc", nil, nil)
	cfg.MaxPropagatedTagsLen = 10
	tr := &Tracer{cfg: cfg}
	headers := carrier{
		"x-datadog-trace-id":  "123",
		"x-datadog-parent-id": "456",
		"x-datadog-tags":      "_dd.p.reallylongtagvalue=abcdefghijklmnopqrstuvwxyz",
	}
	span := tr.StartSpanFrom(headers, "web.request")

	out := carrier{}
	err := span.Inject(out)
	assert.Error(t, err)
	_, hasTags := out["x-datadog-tags"]
	assert.False(t, hasTags)

	span.Finish()

	batches := coll.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "inject_max_size", batches[0][0].Meta[ext.TagPropagationErr])
}
