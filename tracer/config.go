package tracer

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dd-trace-core/tracer/internal/globalconfig"
	"github.com/dd-trace-core/tracer/internal/log"
)

const defaultMaxPropagatedTagsLen = 512

// config accumulates StartOptions before finalization. Environment
// variables always win over whatever is set here.
type config struct {
	serviceName string
	env         string
	version     string
	globalTags  map[string]string

	agentURL string
	host     string
	port     string

	traceEnabled *bool
	startupLogs  *bool

	sampleRate *float64
	rateLimit  *float64
	traceRules []Rule
	spanRules  []Rule

	injectStyles []PropagationStyle
	extractStyles []PropagationStyle

	hostnameEnabled bool
	statsdAddr      string

	clock Clock
	idGen IDGenerator
}

// StartOption configures a Tracer at construction time.
type StartOption func(*config)

func defaultConfig() *config {
	return &config{
		globalTags:    make(map[string]string),
		injectStyles:  []PropagationStyle{StyleDatadog},
		extractStyles: []PropagationStyle{StyleDatadog},
		clock:         realClock{},
		idGen:         newRandIDGenerator(),
	}
}

// WithService sets the default service name for spans started by this
// tracer.
func WithService(name string) StartOption { return func(c *config) { c.serviceName = name } }

// WithEnv sets the default "env" tag.
func WithEnv(env string) StartOption { return func(c *config) { c.env = env } }

// WithVersion sets the default "version" tag.
func WithVersion(v string) StartOption { return func(c *config) { c.version = v } }

// WithGlobalTag adds a tag applied to every span started by this tracer.
func WithGlobalTag(key, value string) StartOption {
	return func(c *config) {
		if c.globalTags == nil {
			c.globalTags = make(map[string]string)
		}
		c.globalTags[key] = value
	}
}

// WithAgentAddr sets the collector's host:port; equivalent to setting
// DD_AGENT_HOST and DD_TRACE_AGENT_PORT, and overridden by either.
func WithAgentAddr(addr string) StartOption {
	return func(c *config) {
		host, port, err := splitHostPort(addr)
		if err == nil {
			c.host, c.port = host, port
		}
	}
}

// WithAgentURL sets the full collector URL directly; overridden by
// DD_TRACE_AGENT_URL.
func WithAgentURL(rawURL string) StartOption { return func(c *config) { c.agentURL = rawURL } }

// WithSamplingRules sets the programmatic trace-sampling rule list;
// overridden entirely by DD_TRACE_SAMPLING_RULES when set.
func WithSamplingRules(rules []Rule) StartOption {
	return func(c *config) { c.traceRules = withKind(rules, RuleKindTrace) }
}

// WithSpanSamplingRules sets the programmatic span-sampling rule list;
// overridden entirely by DD_SPAN_SAMPLING_RULES when set.
func WithSpanSamplingRules(rules []Rule) StartOption {
	return func(c *config) { c.spanRules = withKind(rules, RuleKindSpan) }
}

// WithRateLimit sets the trace sampler's token-bucket capacity (traces
// per second); overridden by DD_TRACE_RATE_LIMIT.
func WithRateLimit(limit float64) StartOption { return func(c *config) { c.rateLimit = &limit } }

// WithPropagationStyles sets both injection and extraction styles;
// overridden independently by DD_PROPAGATION_STYLE_INJECT/EXTRACT.
func WithPropagationStyles(styles []PropagationStyle) StartOption {
	return func(c *config) {
		c.injectStyles = styles
		c.extractStyles = styles
	}
}

// WithHostname enables attaching "_dd.hostname" to the local root of
// every trace.
func WithHostname(enabled bool) StartOption { return func(c *config) { c.hostnameEnabled = enabled } }

// WithStatsdAddr points internal health metrics at a dogstatsd listener;
// empty (the default) disables them.
func WithStatsdAddr(addr string) StartOption { return func(c *config) { c.statsdAddr = addr } }

// WithTraceEnabled sets the programmatic default for whether spans are
// submitted at all; overridden by DD_TRACE_ENABLED when set.
func WithTraceEnabled(enabled bool) StartOption {
	return func(c *config) { c.traceEnabled = &enabled }
}

// WithStartupLogs sets the programmatic default for the startup banner
// (emission itself is out of scope here; this only feeds the provenance
// map); overridden by DD_TRACE_STARTUP_LOGS when set.
func WithStartupLogs(enabled bool) StartOption {
	return func(c *config) { c.startupLogs = &enabled }
}

func withKind(rules []Rule, kind RuleKind) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Kind = kind
		out[i] = r
	}
	return out
}

func splitHostPort(addr string) (host, port string, err error) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}

// finalizedConfig is the immutable result of merging a config with
// environment overrides. It holds every shared collaborator a trace
// segment needs.
type finalizedConfig struct {
	ServiceName string
	Env         string
	Version     string
	GlobalTags  map[string]string

	Enabled bool

	Hostname        string
	HostnameEnabled bool

	Sampler     *traceSampler
	SpanSampler *spanSampler
	Collector   collector

	InjectStyles          []PropagationStyle
	ExtractStyles         []PropagationStyle
	MaxPropagatedTagsLen  int

	IDGenerator IDGenerator
	Clock       Clock

	TraceID128BitEnabled bool
	TelemetryEnabled     bool
	StartupLogsEnabled   bool

	// Provenance records, for a subset of effective values, whether they
	// came from an environment variable, a programmatic StartOption, or a
	// built-in default. Banner emission itself is out of scope for this
	// module, but a caller-supplied logger can render one from this map.
	Provenance envSource

	uploader *uploader
	metrics  *healthMetrics
}

// envSource records where each effective value came from, for the startup
// banner; banner emission itself is out of scope, but the provenance map
// is still produced so a caller-supplied logger can render one.
type envSource map[string]string

const (
	sourceEnv     = "env"
	sourceOption  = "option"
	sourceDefault = "default"
)

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no":
		return false
	default:
		return true
	}
}

func envFloat(key string) (float64, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, newConfigError("invalid "+key, err)
	}
	return f, true, nil
}

func parseDDTags(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if tok == "" {
			continue
		}
		idx := strings.IndexByte(tok, ':')
		if idx < 0 {
			return nil, newParsingError(fmt.Sprintf("DD_TAGS entry %q missing ':'", tok), nil)
		}
		out[tok[:idx]] = tok[idx+1:]
	}
	return out, nil
}

func parseRulesJSON(s string, kind RuleKind) ([]Rule, error) {
	var raw []ruleJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, newParsingError("invalid sampling rules JSON", err)
	}
	rules := make([]Rule, 0, len(raw))
	for _, rj := range raw {
		rules = append(rules, ruleFromJSON(rj, kind))
	}
	return rules, nil
}

func parsePropagationStyleList(s string) ([]PropagationStyle, error) {
	if strings.TrimSpace(s) == "" {
		return nil, newConfigError("empty propagation style list", nil)
	}
	tokens := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(tokens) == 0 {
		return nil, newConfigError("empty propagation style list", nil)
	}
	out := make([]PropagationStyle, 0, len(tokens))
	for _, tok := range tokens {
		style, ok := parsePropagationStyle(tok)
		if !ok {
			return nil, newConfigError("unknown propagation style: "+tok, nil)
		}
		out = append(out, style)
	}
	return out, nil
}

func validateAgentURL(raw string) error {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return newConfigError("agent URL missing scheme separator: "+raw, nil)
	}
	scheme, rest := raw[:idx], raw[idx+3:]
	switch scheme {
	case "http", "https":
		return nil
	case "unix", "http+unix", "https+unix":
		if !strings.HasPrefix(rest, "/") {
			return newConfigError("unix socket agent URL must use an absolute path: "+raw, nil)
		}
		return nil
	default:
		return newConfigError("unknown agent URL scheme: "+scheme, nil)
	}
}

func resolveAgentURL(c *config) (string, error) {
	explicit := c.agentURL
	if v := os.Getenv("DD_TRACE_AGENT_URL"); v != "" {
		explicit = v
	}
	if explicit != "" {
		if err := validateAgentURL(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	host := c.host
	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		host = v
	}
	if host == "" {
		host = "localhost"
	}
	port := c.port
	if v := os.Getenv("DD_TRACE_AGENT_PORT"); v != "" {
		port = v
	}
	if port == "" {
		port = "8126"
	}
	return fmt.Sprintf("http://%s:%s", host, port), nil
}

// finalize merges c with environment overrides, validates, compiles rules,
// and produces an immutable finalizedConfig plus its collaborators.
// Environment always wins over a programmatic value on conflict.
func finalize(c *config) (*finalizedConfig, error) {
	prov := envSource{}
	fc := &finalizedConfig{
		ServiceName:          c.serviceName,
		Env:                  c.env,
		Version:              c.version,
		GlobalTags:           map[string]string{},
		HostnameEnabled:      c.hostnameEnabled,
		InjectStyles:         c.injectStyles,
		ExtractStyles:        c.extractStyles,
		MaxPropagatedTagsLen: defaultMaxPropagatedTagsLen,
		IDGenerator:          c.idGen,
		Clock:                c.clock,
		TraceID128BitEnabled: envBool("DD_TRACE_128_BIT_TRACEID_GENERATION_ENABLED", false),
		TelemetryEnabled:     envBool("DD_INSTRUMENTATION_TELEMETRY_ENABLED", true),
		Provenance:           prov,
	}
	for k, v := range c.globalTags {
		fc.GlobalTags[k] = v
	}

	fc.Enabled = true
	prov["trace_enabled"] = sourceDefault
	if c.traceEnabled != nil {
		fc.Enabled = *c.traceEnabled
		prov["trace_enabled"] = sourceOption
	}
	if _, ok := os.LookupEnv("DD_TRACE_ENABLED"); ok {
		fc.Enabled = envBool("DD_TRACE_ENABLED", true)
		prov["trace_enabled"] = sourceEnv
	}

	fc.StartupLogsEnabled = true
	prov["startup_logs"] = sourceDefault
	if c.startupLogs != nil {
		fc.StartupLogsEnabled = *c.startupLogs
		prov["startup_logs"] = sourceOption
	}
	if _, ok := os.LookupEnv("DD_TRACE_STARTUP_LOGS"); ok {
		fc.StartupLogsEnabled = envBool("DD_TRACE_STARTUP_LOGS", true)
		prov["startup_logs"] = sourceEnv
	}

	prov["service"] = sourceOption
	if v := os.Getenv("DD_SERVICE"); v != "" {
		fc.ServiceName = v
		prov["service"] = sourceEnv
	}
	if fc.ServiceName == "" {
		return nil, newConfigError("service name is required", nil)
	}
	prov["env"] = sourceOption
	if v := os.Getenv("DD_ENV"); v != "" {
		fc.Env = v
		prov["env"] = sourceEnv
	}
	prov["version"] = sourceOption
	if v := os.Getenv("DD_VERSION"); v != "" {
		fc.Version = v
		prov["version"] = sourceEnv
	}
	if v := os.Getenv("DD_TAGS"); v != "" {
		tags, err := parseDDTags(v)
		if err != nil {
			return nil, err
		}
		for k, val := range tags {
			fc.GlobalTags[k] = val
		}
	}

	globalconfig.SetServiceName(fc.ServiceName)

	traceRules := c.traceRules
	prov["sampling_rules"] = sourceOption
	if v := os.Getenv("DD_TRACE_SAMPLING_RULES"); v != "" {
		rules, err := parseRulesJSON(v, RuleKindTrace)
		if err != nil {
			return nil, err
		}
		traceRules = rules
		prov["sampling_rules"] = sourceEnv
	}
	if rate, ok, err := envFloat("DD_TRACE_SAMPLE_RATE"); err != nil {
		return nil, err
	} else if ok {
		if rate < 0 || rate > 1 {
			return nil, newConfigError("DD_TRACE_SAMPLE_RATE must be in [0,1]", nil)
		}
		traceRules = append(traceRules, Rule{SampleRate: rate, Kind: RuleKindTrace})
		prov["sample_rate"] = sourceEnv
	}

	rateLimit := defaultRateLimit
	prov["rate_limit"] = sourceDefault
	if c.rateLimit != nil {
		rateLimit = *c.rateLimit
		prov["rate_limit"] = sourceOption
	}
	if v, ok, err := envFloat("DD_TRACE_RATE_LIMIT"); err != nil {
		return nil, err
	} else if ok {
		if v <= 0 {
			return nil, newConfigError("DD_TRACE_RATE_LIMIT must be > 0", nil)
		}
		rateLimit = v
		prov["rate_limit"] = sourceEnv
	}

	spanRules := c.spanRules
	spanRulesEnv := os.Getenv("DD_SPAN_SAMPLING_RULES")
	spanRulesFile := os.Getenv("DD_SPAN_SAMPLING_RULES_FILE")
	switch {
	case spanRulesEnv != "":
		if spanRulesFile != "" {
			log.Error("DD_SPAN_SAMPLING_RULES_FILE is ignored because DD_SPAN_SAMPLING_RULES is set")
		}
		rules, err := parseRulesJSON(spanRulesEnv, RuleKindSpan)
		if err != nil {
			return nil, err
		}
		spanRules = rules
	case spanRulesFile != "":
		data, err := os.ReadFile(spanRulesFile)
		if err != nil {
			return nil, newIOError("failed to read DD_SPAN_SAMPLING_RULES_FILE", err)
		}
		rules, err := parseRulesJSON(string(data), RuleKindSpan)
		if err != nil {
			return nil, err
		}
		spanRules = rules
	}

	prov["inject_styles"] = sourceOption
	if v := os.Getenv("DD_PROPAGATION_STYLE_INJECT"); v != "" {
		styles, err := parsePropagationStyleList(v)
		if err != nil {
			return nil, err
		}
		fc.InjectStyles = styles
		prov["inject_styles"] = sourceEnv
	}
	prov["extract_styles"] = sourceOption
	if v := os.Getenv("DD_PROPAGATION_STYLE_EXTRACT"); v != "" {
		styles, err := parsePropagationStyleList(v)
		if err != nil {
			return nil, err
		}
		fc.ExtractStyles = styles
		prov["extract_styles"] = sourceEnv
	}
	if len(fc.InjectStyles) == 0 {
		fc.InjectStyles = []PropagationStyle{StyleDatadog}
	}
	if len(fc.ExtractStyles) == 0 {
		fc.ExtractStyles = []PropagationStyle{StyleDatadog}
	}

	prov["agent_url"] = sourceDefault
	if c.agentURL != "" || c.host != "" || c.port != "" {
		prov["agent_url"] = sourceOption
	}
	if _, ok := os.LookupEnv("DD_TRACE_AGENT_URL"); ok {
		prov["agent_url"] = sourceEnv
	} else if _, ok := os.LookupEnv("DD_AGENT_HOST"); ok {
		prov["agent_url"] = sourceEnv
	} else if _, ok := os.LookupEnv("DD_TRACE_AGENT_PORT"); ok {
		prov["agent_url"] = sourceEnv
	}
	agentURL, err := resolveAgentURL(c)
	if err != nil {
		return nil, err
	}

	fc.Hostname, _ = os.Hostname()

	fc.Sampler = newTraceSampler(traceRules, rateLimit, fc.Clock)
	fc.SpanSampler = newSpanSampler(spanRules, fc.Clock)

	transport, err := newHTTPTransport(agentURL, defaultFlushInterval)
	if err != nil {
		return nil, err
	}
	fc.metrics = newHealthMetrics(c.statsdAddr)
	fc.uploader = newUploader(transport, fc.Sampler, defaultFlushInterval, defaultMaxQueueSize, fc.metrics)
	fc.Collector = fc.uploader

	return fc, nil
}
