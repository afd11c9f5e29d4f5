package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"BotnetSpectra/internal/testutil"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (*options, error) {
	t.Helper()
	opts := &options{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	return opts, cmd.Execute()
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flow:\n  window: 30s\nclassifier:\n  classify: true\nlog:\n  level: error\n"), 0644))

	opts, err := execute(t, "classifiers", "--config", path, "--window", "10s", "-v")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, opts.cfg.FlowWindow())
	assert.True(t, opts.cfg.Classifier.Classify)
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	opts, err = execute(t, "classifiers", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.cfg.FlowWindow())
	assert.Equal(t, log.ErrorLevel, log.GetLevel())
}

func TestInvalidFlags(t *testing.T) {
	_, err := execute(t, "classifiers", "--window", "soon")
	assert.Error(t, err)

	_, err = execute(t, "classifiers", "-v", "-q")
	assert.Error(t, err)

	_, err = execute(t, "pcap", "--error-mode", "ignore", "x.pcap")
	assert.Error(t, err)
}

func TestPcapCommand(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "capture.pcap")
	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	testutil.WritePcap(t, capture, []testutil.Frame{
		{Timestamp: t0, Data: testutil.TCP4(t, "10.0.0.1", 1234, "10.0.0.2", 80, 60)},
		{Timestamp: t0.Add(time.Second), Data: testutil.TCP4(t, "10.0.0.2", 80, "10.0.0.1", 1234, 60)},
	})
	output := filepath.Join(dir, "out.txt")
	summary := filepath.Join(dir, "summary.json")

	_, err := execute(t, "pcap", capture, "-q", "--classify", "--printFlows", "--printClasses",
		"-o", output, "--summary", summary)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t,
		"01.06.2024 08:00:00.000000, 01.06.2024 08:00:01.000000, 10.0.0.1, 1234, 10.0.0.2, 80, 6, 2, 1, 200, 120, normal\n",
		string(data))

	data, err = os.ReadFile(summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"command": "pcap"`)
	assert.Contains(t, string(data), `"frames": 2`)
}

func TestTableAndPerformanceCommands(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "flows.csv")
	require.NoError(t, os.WriteFile(table, []byte(strings.Join([]string{
		"header",
		"01.06.2024 08:00:00.000000, 01.06.2024 08:00:01.000000, 10.0.0.1, 1234, 10.0.0.2, 80, 6, 2, 1, 200, 120, normal",
		"01.06.2024 08:00:00.000000, 01.06.2024 08:10:00.000000, 10.0.0.1, 1235, 10.0.0.9, 6667, 6, 20, 20, 800, 0, botnet",
	}, "\n")+"\n"), 0644))

	output := filepath.Join(dir, "classes.txt")
	_, err := execute(t, "table", table, "-q", "--skipFirstLine", "--classify", "--printClasses", "-o", output)
	require.NoError(t, err)
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "normal\nbotnet\n", string(data))

	output = filepath.Join(dir, "report.txt")
	_, err = execute(t, "performance", table, "-q", "--skipFirstLine", "-o", output)
	require.NoError(t, err)
	data, err = os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Processed 2 flows.")
	assert.Contains(t, string(data), "1 (50.000%) TP")
	assert.Contains(t, string(data), "By class comparison:")
}
