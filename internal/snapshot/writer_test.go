package snapshot

import (
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"BotnetSpectra/internal/classify"
	"BotnetSpectra/internal/engine/pipeline"
	"BotnetSpectra/internal/model"
	"BotnetSpectra/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Write(t *testing.T) {
	w := worker.New(classify.NewDefault(), worker.Options{Classify: true}, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Process(&model.Flow{
		Start:           start,
		End:             start.Add(5 * time.Second),
		Source:          netip.MustParseAddr("10.0.0.1"),
		Destination:     netip.MustParseAddr("10.0.0.2"),
		Protocol:        17,
		Packets:         1,
		OutgoingPackets: 1,
		Octets:          1500,
		PayloadOctets:   1400,
	}))

	summary := NewSummary("pcap", "capture.pcap", "default")
	summary.Collect(w)
	summary.Pipeline = &pipeline.Stats{Total: 10, MaxQueueSize: 100, Errors: 1}
	summary.File = &worker.FileStats{Frames: 10, Skipped: 1}

	path := filepath.Join(t.TempDir(), "runs", "summary.json")
	require.NoError(t, NewWriter().Write(summary, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got SummaryData
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "pcap", got.Command)
	assert.Equal(t, "capture.pcap", got.Input)
	assert.EqualValues(t, 1, got.Flows)
	assert.Equal(t, []worker.ClassCount{{Name: "normal", Count: 1}, {Name: "botnet", Count: 0}}, got.Classes)
	assert.Equal(t, summary.Pipeline, got.Pipeline)
	assert.Equal(t, 1, got.File.Skipped)
	assert.Nil(t, got.Performance)
	assert.False(t, got.Finished.Before(got.Started))
}

func TestWriter_WithoutClassification(t *testing.T) {
	w := worker.New(classify.NewDefault(), worker.Options{}, nil)
	summary := NewSummary("table", "flows.csv", "")
	summary.Collect(w)

	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, NewWriter().Write(summary, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "classes")
	assert.NotContains(t, string(data), "classifier")
}
