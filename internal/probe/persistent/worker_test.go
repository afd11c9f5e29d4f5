package persistent

import (
	"os"
	"strings"
	"testing"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/testutil"
	"BotnetSpectra/pkg/pcap"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestWorker_Pcap(t *testing.T) {
	w, err := NewWorker(config.PersistenceConfig{Path: t.TempDir(), Encoding: "pcap"}, layers.LinkTypeEthernet)
	require.NoError(t, err)

	frames := [][]byte{
		testutil.TCP4(t, "10.0.0.1", 1234, "10.0.0.2", 80, 10),
		testutil.UDP4(t, "10.0.0.2", 53, "10.0.0.1", 5353, 30),
	}
	for i, data := range frames {
		w.Enqueue(capture.Frame{Timestamp: ts.Add(time.Duration(i) * time.Second), Data: data})
	}
	w.Stop()
	written, dropped := w.Counts()
	assert.EqualValues(t, 2, written)
	assert.Zero(t, dropped)

	r, err := pcap.NewReader(w.Path())
	require.NoError(t, err)
	defer r.Close()
	var got [][]byte
	n, err := r.ReadFrames(func(_ int, f capture.Frame) error {
		got = append(got, f.Data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, frames, got)
}

func TestWorker_Text(t *testing.T) {
	w, err := NewWorker(config.PersistenceConfig{Path: t.TempDir(), Encoding: "text"}, layers.LinkTypeEthernet)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(w.Path(), ".log"))

	w.Enqueue(capture.Frame{Timestamp: ts, Data: testutil.TCP4(t, "10.0.0.1", 1234, "10.0.0.2", 80, 10)})
	w.Enqueue(capture.Frame{Timestamp: ts, Data: testutil.NonIP(t)})
	w.Stop()
	w.Stop()

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t,
		"2024-05-01 09:30:00.000 - 10.0.0.1:1234 -> 10.0.0.2:80, Proto: 6, Len: 50\n"+
			"2024-05-01 09:30:00.000 - unparsable, Len: 78\n",
		string(data))
}

func TestWorker_Overflow(t *testing.T) {
	w, err := NewWorker(config.PersistenceConfig{Path: t.TempDir(), ChannelBufferSize: 1}, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		w.Enqueue(capture.Frame{Timestamp: ts, Data: testutil.NonIP(t)})
	}
	w.Stop()
	written, dropped := w.Counts()
	assert.EqualValues(t, 1000, written+dropped)
}

func TestNewWorker_UnknownEncoding(t *testing.T) {
	_, err := NewWorker(config.PersistenceConfig{Path: t.TempDir(), Encoding: "gob"}, layers.LinkTypeEthernet)
	assert.Error(t, err)
}
