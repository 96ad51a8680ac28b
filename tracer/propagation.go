package tracer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dd-trace-core/tracer/ext"
)

// TextMapWriter is implemented by carriers that can hold outgoing
// propagation headers, e.g. an outbound HTTP request's header map.
type TextMapWriter interface {
	Set(key, value string)
}

// TextMapReader is implemented by carriers that can be scanned for
// incoming propagation headers, e.g. an inbound HTTP request's header map.
type TextMapReader interface {
	ForeachKey(handler func(key, value string) error) error
}

// PropagationStyle names a supported wire format for trace context.
type PropagationStyle int

const (
	StyleDatadog PropagationStyle = iota
	StyleB3Single
)

func parsePropagationStyle(name string) (PropagationStyle, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "datadog":
		return StyleDatadog, true
	case "b3", "b3single", "b3 single header":
		return StyleB3Single, true
	default:
		return 0, false
	}
}

const (
	headerTraceID   = "x-datadog-trace-id"
	headerParentID  = "x-datadog-parent-id"
	headerPriority  = "x-datadog-sampling-priority"
	headerOrigin    = "x-datadog-origin"
	headerTags      = "x-datadog-tags"
	headerB3Single  = "b3"
)

// extractedContext is what the propagation codec recovers from an inbound
// carrier: the pieces needed to bind a new trace segment to an upstream
// trace.
type extractedContext struct {
	traceID     uint64
	parentID    uint64
	priority    *int
	hasPriority bool
	origin      string
	traceTags   map[string]string
}

// propagatingTagKeyPattern matches the propagated-tags mapping's key
// grammar: "_dd.p." followed by one or more alphanumerics or underscores.
var propagatingTagKeyPattern = regexp.MustCompile(`^_dd\.p\.[A-Za-z0-9_]+$`)

// encodePropagatingTags serializes the propagated-tags mapping as
// comma-separated key=value pairs in the order given by keys. The mapping
// does not record insertion order; injectDatadog passes the keys sorted
// lexically.
func encodePropagatingTags(tags map[string]string, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := tags[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, ",")
}

// decodePropagatingTags parses the x-datadog-tags payload, retaining only
// keys with the "_dd.p." prefix. A malformed pair fails extraction of the
// whole header: the caller should drop the entire payload, not
// partially apply it.
func decodePropagatingTags(value string) (map[string]string, error) {
	out := make(map[string]string)
	if value == "" {
		return out, nil
	}
	for _, pair := range strings.Split(value, ",") {
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			return nil, newPropagationError("malformed propagated tag pair", nil)
		}
		key, val := pair[:eq], pair[eq+1:]
		if !strings.HasPrefix(key, ext.PropagatedTagPrefix) {
			continue
		}
		if !isPrintableASCIINoCommaEquals(val) {
			return nil, newPropagationError("malformed propagated tag value", nil)
		}
		out[key] = val
	}
	return out, nil
}

func isPrintableASCIINoCommaEquals(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e || c == ',' || c == '=' {
			return false
		}
	}
	return true
}

// sortedTagKeys returns tags' keys in a stable, deterministic order so
// repeated injections of the same tag set produce identical header values.
func sortedTagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decisionMakerTag formats the "_dd.p.dm" value for a given mechanism
// code: a dash-prefixed decimal, e.g. "-3" for the rule mechanism.
func decisionMakerTag(mechanism int) string {
	return "-" + strconv.Itoa(mechanism)
}

// injectDatadog writes the Datadog-style headers into w. propagatedTags
// should already include "_dd.p.dm" if a local decision has been made.
// If the encoded tags header would exceed maxTagsLen, the header is
// omitted and tagsOmitted is true so the caller can record a propagation
// error.
func injectDatadog(w TextMapWriter, traceID, spanID uint64, priority *int, origin string, propagatedTags map[string]string, maxTagsLen int) (tagsOmitted bool) {
	w.Set(headerTraceID, strconv.FormatUint(traceID, 10))
	w.Set(headerParentID, strconv.FormatUint(spanID, 10))
	if priority != nil {
		w.Set(headerPriority, strconv.Itoa(*priority))
	}
	if origin != "" {
		w.Set(headerOrigin, origin)
	}
	if len(propagatedTags) == 0 {
		return false
	}
	encoded := encodePropagatingTags(propagatedTags, sortedTagKeys(propagatedTags))
	if maxTagsLen > 0 && len(encoded) > maxTagsLen {
		return true
	}
	if encoded != "" {
		w.Set(headerTags, encoded)
	}
	return false
}

// injectB3Single writes the single-header B3 style: TRACEID-SPANID-SAMPLED[-PARENTID].
// SAMPLED is "1" for keep, "0" for drop, omitted entirely when undecided.
func injectB3Single(w TextMapWriter, traceID, spanID uint64, priority *int) {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(traceID, 16))
	b.WriteByte('-')
	b.WriteString(strconv.FormatUint(spanID, 16))
	if priority != nil {
		b.WriteByte('-')
		if *priority >= 1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	w.Set(headerB3Single, b.String())
}

// extractDatadog reads the Datadog-style headers out of the collected
// header map. Missing or malformed priority is tolerated (no decision);
// malformed trace/parent ids fail extraction of this style entirely.
func extractDatadog(headers map[string]string) (extractedContext, bool) {
	traceIDStr, ok := headers[headerTraceID]
	if !ok {
		return extractedContext{}, false
	}
	traceID, err := strconv.ParseUint(traceIDStr, 10, 64)
	if err != nil || traceID == 0 {
		return extractedContext{}, false
	}
	v, ok := headers[headerParentID]
	if !ok {
		return extractedContext{}, false
	}
	parentID, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return extractedContext{}, false
	}
	ctx := extractedContext{traceID: traceID, parentID: parentID, origin: headers[headerOrigin]}
	if v, ok := headers[headerPriority]; ok {
		if p, err := strconv.Atoi(v); err == nil {
			ctx.priority = &p
			ctx.hasPriority = true
		}
	}
	if v, ok := headers[headerTags]; ok {
		if tags, err := decodePropagatingTags(v); err == nil {
			ctx.traceTags = tags
		}
	}
	return ctx, true
}

// extractB3Single parses the "b3" single-header style.
func extractB3Single(headers map[string]string) (extractedContext, bool) {
	v, ok := headers[headerB3Single]
	if !ok {
		return extractedContext{}, false
	}
	parts := strings.Split(v, "-")
	if len(parts) < 2 {
		return extractedContext{}, false
	}
	traceID, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil || traceID == 0 {
		return extractedContext{}, false
	}
	parentID, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return extractedContext{}, false
	}
	ctx := extractedContext{traceID: traceID, parentID: parentID}
	if len(parts) >= 3 && parts[2] != "" {
		switch parts[2] {
		case "1":
			p := ext.PriorityAutoKeep
			ctx.priority = &p
			ctx.hasPriority = true
		case "0":
			p := ext.PriorityAutoReject
			ctx.priority = &p
			ctx.hasPriority = true
		}
	}
	return ctx, true
}

// flattenHeaders drains a TextMapReader into a plain map for the
// style-specific extractors, lower-casing keys since header names are
// conventionally case-insensitive.
func flattenHeaders(r TextMapReader) map[string]string {
	out := make(map[string]string)
	_ = r.ForeachKey(func(key, value string) error {
		out[strings.ToLower(key)] = value
		return nil
	})
	return out
}

// extract tries each configured style in order, returning the first style
// that yields a complete {trace_id, parent_id} pair.
func extract(r TextMapReader, styles []PropagationStyle) (extractedContext, bool) {
	headers := flattenHeaders(r)
	for _, style := range styles {
		switch style {
		case StyleDatadog:
			if ctx, ok := extractDatadog(headers); ok {
				return ctx, true
			}
		case StyleB3Single:
			if ctx, ok := extractB3Single(headers); ok {
				return ctx, true
			}
		}
	}
	return extractedContext{}, false
}
