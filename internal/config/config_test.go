package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
flow:
  window: 30s
pipeline:
  max_queue_size: 5000
classifier:
  name: default
  classify: true
  name_abnormal_as_botnet: true
sinks:
  clickhouse:
    enabled: true
    host: clickhouse
alerter:
  enabled: true
  check_interval: 10s
  rules:
    - name: botnet surge
      metric: abnormal_flows
      operator: ">="
      threshold: 100
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.FlowWindow())
	assert.Equal(t, 5000, cfg.Pipeline.MaxQueueSize)
	assert.True(t, cfg.Classifier.NameAbnormalAsBotnet)
	assert.Equal(t, "clickhouse", cfg.Sinks.ClickHouse.Host)
	// Unset values keep their defaults.
	assert.Equal(t, 9000, cfg.Sinks.ClickHouse.Port)
	assert.Equal(t, 64*time.Millisecond, cfg.IdleDelay())
	assert.Equal(t, time.Second, cfg.StatusInterval())
	require.Len(t, cfg.Alerter.Rules, 1)
	assert.Equal(t, 100.0, cfg.Alerter.Rules[0].Threshold)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("flow:\n  window: soon\n"), 0644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "flow.window")

	mode := filepath.Join(dir, "mode.yaml")
	require.NoError(t, os.WriteFile(mode, []byte("capture:\n  error_mode: ignore\n"), 0644))
	_, err = LoadConfig(mode)
	assert.ErrorContains(t, err, "error_mode")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.FlowWindow())
	assert.Equal(t, 1000000, cfg.Pipeline.MaxQueueSize)
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeout())
}

func TestLoadConfig_Example(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "eth0", cfg.Capture.Device)
	assert.True(t, cfg.Classifier.Classify)
	assert.Len(t, cfg.Alerter.Rules, 2)
	assert.Equal(t, 5, cfg.Alerter.TopSources)
	assert.Equal(t, uint32(2), cfg.Alerter.TopSourceMinFlows)
}
