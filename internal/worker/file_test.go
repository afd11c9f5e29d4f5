package worker

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"BotnetSpectra/internal/classify"
	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"
	"BotnetSpectra/internal/testutil"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func captureFile(t *testing.T, frames ...testutil.Frame) string {
	path := filepath.Join(t.TempDir(), "capture.pcap")
	testutil.WritePcap(t, path, frames)
	return path
}

func TestRunFile_Conversation(t *testing.T) {
	path := captureFile(t,
		testutil.Frame{Timestamp: t0, Data: testutil.TCP4(t, "10.0.0.1", 1234, "10.0.0.2", 80, 60)},
		testutil.Frame{Timestamp: t0.Add(time.Second), Data: testutil.TCP4(t, "10.0.0.2", 80, "10.0.0.1", 1234, 60)},
		testutil.Frame{Timestamp: t0.Add(2 * time.Second), Data: testutil.ARP(t, "10.0.0.1", "10.0.0.254")},
	)

	mem := &memWriter{}
	w := New(classify.NewDefault(), Options{Classify: true}, nil)
	w.AddWriter(mem)

	stats, err := RunFile(path, ErrorStrict, time.Minute, w)
	require.NoError(t, err)
	assert.Equal(t, FileStats{Frames: 3}, stats)

	require.Len(t, mem.recs, 1)
	f := mem.recs[0].Flow
	assert.EqualValues(t, 2, f.Packets)
	assert.EqualValues(t, 1, f.OutgoingPackets)
	assert.EqualValues(t, 2*(20+20+60), f.Octets)
	assert.EqualValues(t, 120, f.PayloadOctets)
	assert.True(t, f.Start.Equal(t0))
	assert.True(t, f.End.Equal(t0.Add(time.Second)))
}

func TestRunFile_ErrorModes(t *testing.T) {
	broken := testutil.IPv4Raw(t, "10.0.0.1", "10.0.0.2", layers.IPProtocolTCP, make([]byte, 4))
	path := captureFile(t,
		testutil.Frame{Timestamp: t0, Data: testutil.UDP4(t, "10.0.0.1", 53, "10.0.0.2", 53, 40)},
		testutil.Frame{Timestamp: t0.Add(time.Millisecond), Data: broken},
		testutil.Frame{Timestamp: t0.Add(2 * time.Millisecond), Data: testutil.NonIP(t)},
	)

	var out bytes.Buffer
	w := New(classify.NewDefault(), Options{PrintFlows: true}, &out)
	stats, err := RunFile(path, ErrorSkip, time.Minute, w)
	require.NoError(t, err)
	assert.Equal(t, FileStats{Frames: 3, Skipped: 1}, stats)
	assert.Equal(t, 2, strings.Count(out.String(), "\n"), "UDP flow and the leniently parsed TCP flow")

	w = New(classify.NewDefault(), Options{}, nil)
	_, err = RunFile(path, ErrorLenient, time.Minute, w)
	require.Error(t, err)
	assert.Equal(t, fault.KindParse, fault.GetKind(err))
	assert.Contains(t, err.Error(), "packet 3")

	w = New(classify.NewDefault(), Options{}, nil)
	_, err = RunFile(path, ErrorStrict, time.Minute, w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "packet 2")
}

func TestRunFile_ClassificationFaultAborts(t *testing.T) {
	path := captureFile(t,
		testutil.Frame{Timestamp: t0, Data: testutil.UDP4(t, "10.0.0.1", 53, "10.0.0.2", 53, 40)},
		testutil.Frame{Timestamp: t0.Add(2 * time.Minute), Data: testutil.UDP4(t, "10.0.0.1", 53, "10.0.0.2", 53, 40)},
	)
	g := classify.NewGroup("normal")
	w := New(classify.NewFunc(g, func(*model.Flow) classify.FlowClass { return classify.FlowClass{} }), Options{Classify: true}, nil)

	_, err := RunFile(path, ErrorSkip, time.Minute, w)
	require.Error(t, err)
	assert.Equal(t, fault.KindClassification, fault.GetKind(err))
	assert.Contains(t, err.Error(), "packet 2")
}

func TestRunFile_MissingFile(t *testing.T) {
	w := New(classify.NewDefault(), Options{}, nil)
	_, err := RunFile(filepath.Join(t.TempDir(), "nope.pcap"), ErrorSkip, time.Minute, w)
	assert.Equal(t, fault.KindInput, fault.GetKind(err))
}

func TestParseErrorMode(t *testing.T) {
	for s, want := range map[string]ErrorMode{"": ErrorSkip, "skip": ErrorSkip, "Lenient": ErrorLenient, "strict": ErrorStrict} {
		got, err := ParseErrorMode(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseErrorMode("ignore")
	assert.Error(t, err)
}
