package worker

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"
	"time"

	"BotnetSpectra/internal/classify"
	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// portClassifier names flows after their destination port.
func portClassifier() classify.Classifier {
	g := classify.NewGroup("normal", "spam", "scan")
	return classify.NewFunc(g, func(f *model.Flow) classify.FlowClass {
		switch f.DstPort {
		case 25:
			return g.Class(1)
		case 0:
			return g.Class(2)
		}
		return g.Class(0)
	})
}

func testFlow(dstPort uint16) *model.Flow {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.Flow{
		Start:           start,
		End:             start.Add(time.Second),
		Source:          netip.MustParseAddr("10.0.0.1"),
		SrcPort:         40000,
		Destination:     netip.MustParseAddr("10.0.0.2"),
		DstPort:         dstPort,
		Protocol:        6,
		Packets:         2,
		OutgoingPackets: 1,
		Octets:          160,
		PayloadOctets:   120,
	}
}

type memWriter struct {
	recs   []model.ClassifiedFlow
	closed bool
}

func (m *memWriter) Write(rec model.ClassifiedFlow) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memWriter) Close() error {
	m.closed = true
	return nil
}

func TestWorker_PrintFlowsAndClasses(t *testing.T) {
	var out bytes.Buffer
	w := New(portClassifier(), Options{Classify: true, PrintFlows: true, PrintClasses: true}, &out)

	require.NoError(t, w.Process(testFlow(80)))
	require.NoError(t, w.Process(testFlow(25)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, testFlow(80).String()+", normal", lines[0])
	assert.Equal(t, testFlow(25).String()+", spam", lines[1])
	assert.Equal(t, []ClassCount{{"normal", 1}, {"spam", 1}, {"scan", 0}}, w.ClassCounts())
	assert.EqualValues(t, 2, w.Flows())
	assert.Equal(t, "Flows statistics:\n1\tnormal\n1\tspam\n0\tscan", w.ClassStatistics())
}

func TestWorker_PrintOptions(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want []string
	}{
		{"abnormal only", Options{Classify: true, PrintFlows: true, PrintClasses: true, PrintAbnormalOnly: true},
			[]string{testFlow(25).String() + ", spam", testFlow(0).String() + ", scan"}},
		{"classes only", Options{Classify: true, PrintClasses: true}, []string{"normal", "spam", "scan"}},
		{"flows only", Options{Classify: true, PrintFlows: true, PrintAbnormalOnly: true},
			[]string{testFlow(25).String(), testFlow(0).String()}},
		{"no classification", Options{PrintFlows: true, PrintClasses: true},
			[]string{testFlow(80).String(), testFlow(25).String(), testFlow(0).String()}},
		{"silent", Options{Classify: true}, nil},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		w := New(portClassifier(), tc.opts, &out)
		for _, port := range []uint16{80, 25, 0} {
			require.NoError(t, w.Process(testFlow(port)), tc.name)
		}
		var got []string
		if s := strings.TrimSpace(out.String()); s != "" {
			got = strings.Split(s, "\n")
		}
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestWorker_Events(t *testing.T) {
	w := New(portClassifier(), Options{Classify: true}, nil)
	var classified, abnormal []string
	w.OnFlowClassified(func(f *model.Flow, c classify.FlowClass) { classified = append(classified, c.Name()) })
	w.OnFlowClassifiedAsAbnormal(func(f *model.Flow, c classify.FlowClass) { abnormal = append(abnormal, c.Name()) })

	for _, port := range []uint16{80, 25, 0, 443} {
		require.NoError(t, w.Process(testFlow(port)))
	}
	assert.Equal(t, []string{"normal", "spam", "scan", "normal"}, classified)
	assert.Equal(t, []string{"spam", "scan"}, abnormal)
}

func TestWorker_NameAbnormalAsBotnet(t *testing.T) {
	var out bytes.Buffer
	mem := &memWriter{}
	w := New(portClassifier(), Options{Classify: true, PrintClasses: true, NameAbnormalAsBotnet: true}, &out)
	w.AddWriter(mem)

	for _, port := range []uint16{80, 25, 0} {
		require.NoError(t, w.Process(testFlow(port)))
	}
	assert.Equal(t, "normal\nbotnet\nbotnet\n", out.String())
	assert.Equal(t, 0, w.NormalClassID())
	assert.Equal(t, []ClassCount{{"normal", 1}, {"botnet", 2}}, w.ClassCounts())

	require.Len(t, mem.recs, 3)
	assert.False(t, mem.recs[0].Abnormal)
	assert.True(t, mem.recs[1].Abnormal)
	assert.Equal(t, "botnet", mem.recs[2].Class)

	require.NoError(t, w.Close())
	assert.True(t, mem.closed)
}

func TestWorker_NoNormalClass(t *testing.T) {
	g := classify.NewGroup("spam", "scan")
	w := New(classify.NewFunc(g, func(*model.Flow) classify.FlowClass { return g.Class(0) }), Options{Classify: true}, nil)
	var abnormal int
	w.OnFlowClassifiedAsAbnormal(func(*model.Flow, classify.FlowClass) { abnormal++ })

	require.NoError(t, w.Process(testFlow(80)))
	assert.Equal(t, -1, w.NormalClassID())
	assert.Equal(t, 1, abnormal)
}

func TestWorker_ClassificationFault(t *testing.T) {
	g := classify.NewGroup("normal")
	foreign := classify.NewGroup("normal")
	w := New(classify.NewFunc(g, func(*model.Flow) classify.FlowClass { return foreign.Class(0) }), Options{Classify: true}, nil)

	err := w.Process(testFlow(80))
	require.Error(t, err)
	assert.Equal(t, fault.KindClassification, fault.GetKind(err))
	assert.Equal(t, []ClassCount{{"normal", 0}}, w.ClassCounts())
}
