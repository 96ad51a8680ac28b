package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDDTagsLastWriteWins(t *testing.T) {
	tags, err := parseDDTags("team:checkout,region:us team:payments")
	require.NoError(t, err)
	assert.Equal(t, "payments", tags["team"])
	assert.Equal(t, "us", tags["region"])
}

func TestParseDDTagsMissingColonErrors(t *testing.T) {
	_, err := parseDDTags("no-colon-here")
	assert.Error(t, err)
}

func TestEnvBoolRecognizesFalsyForms(t *testing.T) {
	t.Setenv("DD_TEST_FLAG", "0")
	assert.False(t, envBool("DD_TEST_FLAG", true))
	t.Setenv("DD_TEST_FLAG", "false")
	assert.False(t, envBool("DD_TEST_FLAG", true))
	t.Setenv("DD_TEST_FLAG", "yes")
	assert.True(t, envBool("DD_TEST_FLAG", false))
}

func TestValidateAgentURLSchemes(t *testing.T) {
	assert.NoError(t, validateAgentURL("http://localhost:8126"))
	assert.NoError(t, validateAgentURL("https://agent.internal:443"))
	assert.NoError(t, validateAgentURL("unix:///var/run/datadog/apm.socket"))
	assert.NoError(t, validateAgentURL("http+unix:///var/run/datadog/apm.socket"))

	assert.Error(t, validateAgentURL("localhost:8126"), "missing scheme separator")
	assert.Error(t, validateAgentURL("unix://relative/path"), "unix socket path must be absolute")
	assert.Error(t, validateAgentURL("ftp://agent.internal"), "unsupported scheme")
}

func TestFinalizeRequiresServiceName(t *testing.T) {
	c := defaultConfig()
	_, err := finalize(c)
	assert.Error(t, err)
}

func TestFinalizeServiceNameEnvOverridesOption(t *testing.T) {
	t.Setenv("DD_SERVICE", "from-env")
	c := defaultConfig()
	c.serviceName = "from-option"
	fc, err := finalize(c)
	require.NoError(t, err)
	assert.Equal(t, "from-env", fc.ServiceName)
}

func TestFinalizeSampleRateMustBeInUnitRange(t *testing.T) {
	t.Setenv("DD_TRACE_SAMPLE_RATE", "1.5")
	c := defaultConfig()
	c.serviceName = "svc"
	_, err := finalize(c)
	assert.Error(t, err)
}

func TestFinalizeScenario6UnknownInjectStyleFails(t *testing.T) {
	// DD_PROPAGATION_STYLE_INJECT="b3,datadog,w3c" names an unsupported
	// style; finalize must fail and no tracer gets constructed.
	t.Setenv("DD_PROPAGATION_STYLE_INJECT", "b3,datadog,w3c")
	c := defaultConfig()
	c.serviceName = "svc"
	_, err := finalize(c)
	assert.Error(t, err)
}

func TestFinalizeAgentURLDefaultsToLocalhost(t *testing.T) {
	c := defaultConfig()
	c.serviceName = "svc"
	fc, err := finalize(c)
	require.NoError(t, err)
	require.NotNil(t, fc.uploader)
	assert.Equal(t, "http://localhost:8126", fc.uploader.transport.agentURL)
}

func TestFinalizeDDTagsMergeIntoGlobalTags(t *testing.T) {
	t.Setenv("DD_TAGS", "team:checkout,tier:1")
	c := defaultConfig()
	c.serviceName = "svc"
	fc, err := finalize(c)
	require.NoError(t, err)
	assert.Equal(t, "checkout", fc.GlobalTags["team"])
	assert.Equal(t, "1", fc.GlobalTags["tier"])
}

func TestFinalizeProvenanceTracksEnvOverride(t *testing.T) {
	t.Setenv("DD_SERVICE", "from-env")
	c := defaultConfig()
	c.serviceName = "from-option"
	fc, err := finalize(c)
	require.NoError(t, err)
	assert.Equal(t, sourceEnv, fc.Provenance["service"])
}

func TestFinalizeProvenanceDefaultsWhenUnset(t *testing.T) {
	c := defaultConfig()
	c.serviceName = "svc"
	fc, err := finalize(c)
	require.NoError(t, err)
	assert.Equal(t, sourceDefault, fc.Provenance["rate_limit"])
	assert.Equal(t, sourceDefault, fc.Provenance["trace_enabled"])
}

func TestWithTraceEnabledOverriddenByEnv(t *testing.T) {
	t.Setenv("DD_TRACE_ENABLED", "false")
	c := defaultConfig()
	c.serviceName = "svc"
	WithTraceEnabled(true)(c)
	fc, err := finalize(c)
	require.NoError(t, err)
	assert.False(t, fc.Enabled, "env var must win over the programmatic option")
	assert.Equal(t, sourceEnv, fc.Provenance["trace_enabled"])
}

func TestWithStartupLogsOption(t *testing.T) {
	c := defaultConfig()
	c.serviceName = "svc"
	WithStartupLogs(false)(c)
	fc, err := finalize(c)
	require.NoError(t, err)
	assert.False(t, fc.StartupLogsEnabled)
	assert.Equal(t, sourceOption, fc.Provenance["startup_logs"])
}
