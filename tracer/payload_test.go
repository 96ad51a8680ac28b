package tracer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
)

func TestEncodePayloadShapeIsArrayOfArraysOfMaps(t *testing.T) {
	d := newSpanData()
	d.Service = "svc"
	d.Name = "op"
	d.Resource = "res"
	d.TraceID = 1
	d.SpanID = 2
	d.ParentID = 0
	d.Start = 100
	d.Duration = 50

	var buf bytes.Buffer
	require.NoError(t, encodePayload(&buf, [][]spanData{{d}}))

	r := msgp.NewReader(&buf)
	n, err := r.ReadArrayHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n, "one trace")

	n, err = r.ReadArrayHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n, "one span in the trace")

	fields, err := r.ReadMapHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(spanFieldCount), fields)
}

func TestEncodePayloadEmptyTraceList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodePayload(&buf, nil))

	r := msgp.NewReader(&buf)
	n, err := r.ReadArrayHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)
}
