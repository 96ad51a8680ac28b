package tracer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dd-trace-core/tracer/ext"
	"github.com/dd-trace-core/tracer/internal/container"
)

const tracesEndpoint = "/v0.4/traces"

// httpTransport issues the uploader's flush requests over stdlib net/http;
// no third-party HTTP client is warranted for this concern.
type httpTransport struct {
	client      *http.Client
	agentURL    string
	lang        string
	langVersion string
	tracerVer   string
	containerID string
}

func newHTTPTransport(agentURL string, timeout time.Duration) (*httpTransport, error) {
	if _, err := url.Parse(agentURL); err != nil {
		return nil, newConfigError("invalid agent URL", err)
	}
	return &httpTransport{
		client:      &http.Client{Timeout: timeout},
		agentURL:    strings.TrimRight(agentURL, "/"),
		lang:        ext.Lang,
		langVersion: "go1.22",
		tracerVer:   "1.0.0",
		containerID: container.ReadID(),
	}, nil
}

// agentResponse is the subset of the collector's JSON response body this
// uploader consumes: a service+env keyed sample-rate table.
type agentResponse struct {
	RateByService map[string]float64 `json:"rate_by_service"`
}

// sendTraces PUTs an encoded batch of traces to the agent and returns the
// parsed rate table from a successful response.
func (t *httpTransport) sendTraces(traces [][]spanData) (map[string]float64, error) {
	var buf bytes.Buffer
	if err := encodePayload(&buf, traces); err != nil {
		return nil, newIOError("failed to encode trace payload", err)
	}

	req, err := http.NewRequest(http.MethodPut, t.agentURL+tracesEndpoint, &buf)
	if err != nil {
		return nil, newIOError("failed to build agent request", err)
	}
	req.Header.Set("Content-Type", "application/msgpack")
	req.Header.Set("Datadog-Meta-Lang", t.lang)
	req.Header.Set("Datadog-Meta-Lang-Version", t.langVersion)
	req.Header.Set("Datadog-Meta-Tracer-Version", t.tracerVer)
	req.Header.Set("X-Datadog-Trace-Count", strconv.Itoa(len(traces)))
	if t.containerID != "" {
		req.Header.Set("Datadog-Container-ID", t.containerID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, newIOError("agent request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newIOError(fmt.Sprintf("agent responded with status %d", resp.StatusCode), nil)
	}

	var parsed agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// An empty or non-JSON 200 body (older agents) is not an error; there
		// is simply no updated rate table to apply.
		return nil, nil
	}
	return parsed.RateByService, nil
}
