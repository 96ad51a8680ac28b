package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd-trace-core/tracer/ext"
)

func TestSegmentSubmitsExactlyOnceAcrossChildren(t *testing.T) {
	cfg, coll, _ := newTestConfig("testsvc", nil, nil)
	tr := &Tracer{cfg: cfg}
	root := tr.StartSpan("parent")
	a := root.CreateChild("a")
	b := root.CreateChild("b")

	a.Finish()
	b.Finish()
	root.Finish()
	root.Finish() // extra finish on root must not resubmit

	batches := coll.all()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}

func TestOverrideSamplingPriorityAfterExtraction(t *testing.T) {
	cfg, coll, _ := newTestConfig("testsvc", nil, nil)
	tr := &Tracer{cfg: cfg}
	headers := carrier{
		"x-datadog-trace-id":          "123",
		"x-datadog-parent-id":         "456",
		"x-datadog-sampling-priority": "1",
	}
	span := tr.StartSpanFrom(headers, "web.request")
	span.OverrideSamplingPriority(ext.PriorityUserKeep)
	span.Finish()

	batch := coll.all()[0]
	assert.Equal(t, float64(ext.PriorityUserKeep), batch[0].Metrics[ext.SamplingPriority])
	assert.Equal(t, "-4", batch[0].Meta[ext.TagDecisionMaker])
}

func TestMonotonePriorityAcrossRepeatedInject(t *testing.T) {
	cfg, _, _ := newTestConfig("testsvc", nil, nil)
	tr := &Tracer{cfg: cfg}
	span := tr.StartSpan("op")

	first := carrier{}
	require.NoError(t, span.Inject(first))

	// a later override must not retroactively change what inject already
	// reported to an earlier caller; it only affects subsequent calls and
	// the final submitted record (Design Notes: no retraction).
	span.OverrideSamplingPriority(ext.PriorityUserReject)

	second := carrier{}
	require.NoError(t, span.Inject(second))
	assert.NotEqual(t, first["x-datadog-sampling-priority"], second["x-datadog-sampling-priority"],
		"override after the first inject changes what subsequent injects report")

	span.Finish()
}

func TestDroppedTraceWithNoSpanSamplingRulesEmitsNothing(t *testing.T) {
	rules := []Rule{{Matcher: Matcher{Service: "poohbear"}, SampleRate: 0, Kind: RuleKindTrace}}
	cfg, coll, _ := newTestConfig("poohbear", rules, nil)
	tr := &Tracer{cfg: cfg}
	root := tr.StartSpan("get.honey")
	child := root.CreateChild("fetch")
	child.Finish()
	root.Finish()

	batches := coll.all()
	require.Len(t, batches, 1)
	assert.Nil(t, batches[0])
}

func TestKeptTraceEmitsFullBatchRegardlessOfSpanSamplingRules(t *testing.T) {
	spanRules := []Rule{{Matcher: Matcher{Name: "fetch"}, SampleRate: 1.0, Kind: RuleKindSpan}}
	cfg, coll, _ := newTestConfig("testsvc", nil, spanRules)
	tr := &Tracer{cfg: cfg}
	root := tr.StartSpan("parent")
	child := root.CreateChild("fetch")
	child.Finish()
	root.Finish()

	batches := coll.all()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2, "a kept trace submits every span, not just what the span sampler would keep")
}
