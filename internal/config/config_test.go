package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaultsToStandardAddr(t *testing.T) {
	t.Setenv("EXECFLOW_HTTP_ADDR", "")
	require.Equal(t, ServerConfig{Addr: ":8080"}, LoadServerConfigFromEnv())
}

func TestLoadServerConfigHonorsOverride(t *testing.T) {
	t.Setenv("EXECFLOW_HTTP_ADDR", ":9090")
	require.Equal(t, ServerConfig{Addr: ":9090"}, LoadServerConfigFromEnv())
}

func TestLoadPipelineConfigRejectsUnparseableDuration(t *testing.T) {
	t.Setenv("EXECFLOW_ORPHAN_SCAN_INTERVAL", "not-a-duration")
	_, err := LoadPipelineConfigFromEnv()
	require.Error(t, err)
}

func TestLoadPipelineConfigRejectsNonPositiveThreshold(t *testing.T) {
	t.Setenv("EXECFLOW_ORPHAN_SCAN_INTERVAL", "")
	t.Setenv("EXECFLOW_ORPHAN_THRESHOLD", "0s")
	_, err := LoadPipelineConfigFromEnv()
	require.Error(t, err)
}

func TestLoadPipelineConfigUsesDefaults(t *testing.T) {
	t.Setenv("EXECFLOW_ORPHAN_SCAN_INTERVAL", "")
	t.Setenv("EXECFLOW_ORPHAN_THRESHOLD", "")
	cfg, err := LoadPipelineConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, DefaultPipelineConfig(), cfg)
}

func TestLoadApprovalConfigHonorsOverride(t *testing.T) {
	t.Setenv("EXECFLOW_APPROVAL_DEFAULT_TIMEOUT", "1h")
	cfg, err := LoadApprovalConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.DefaultTimeout)
}
