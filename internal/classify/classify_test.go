package classify

import (
	"net/netip"
	"testing"
	"time"

	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flow(packets, outgoing, octets, payload int64, d time.Duration) *model.Flow {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.Flow{
		Start:           start,
		End:             start.Add(d),
		Source:          netip.MustParseAddr("10.0.0.1"),
		SrcPort:         4000,
		Destination:     netip.MustParseAddr("10.0.0.2"),
		DstPort:         80,
		Protocol:        6,
		Packets:         packets,
		OutgoingPackets: outgoing,
		Octets:          octets,
		PayloadOctets:   payload,
	}
}

func TestGroupIdentity(t *testing.T) {
	a := NewGroup("normal", "botnet")
	b := NewGroup("normal", "botnet")
	c := NewGroup("botnet", "normal")

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Greater(t, b.ID(), a.ID())
	assert.True(t, a.Class(0).Equal(a.Class(0)))
	assert.False(t, a.Class(0).Equal(a.Class(1)))
	assert.False(t, a.Class(0).Equal(b.Class(0)), "classes of distinct groups differ")
	assert.False(t, FlowClass{}.Equal(FlowClass{}))

	assert.True(t, a.Equivalent(b))
	assert.False(t, a.Equivalent(c))

	assert.False(t, a.Reduce(c))
	assert.NotEqual(t, a.ID(), c.ID())

	require.True(t, a.Reduce(b))
	assert.Equal(t, a.ID(), b.ID())
	assert.True(t, a.Class(1).Equal(b.Class(1)))

	assert.Equal(t, 1, c.Index("normal"))
	assert.Equal(t, -1, c.Index("scan"))
	assert.Equal(t, []string{"botnet", "normal"}, c.Names())
	assert.Len(t, c.Classes(), 2)
}

func TestValidateClassify(t *testing.T) {
	g := NewGroup("normal", "", "botnet")
	foreign := NewGroup("normal")
	f := flow(1, 1, 60, 20, 0)

	class, err := ValidateClassify(NewFunc(g, func(*model.Flow) FlowClass { return g.Class(2) }), f)
	require.NoError(t, err)
	assert.Equal(t, "botnet", class.Name())

	cases := map[string]Classifier{
		"foreign class": NewFunc(g, func(*model.Flow) FlowClass { return foreign.Class(0) }),
		"zero class":    NewFunc(g, func(*model.Flow) FlowClass { return FlowClass{} }),
		"unnamed class": NewFunc(g, func(*model.Flow) FlowClass { return g.Class(1) }),
		"panic":         NewFunc(g, func(*model.Flow) FlowClass { panic("model not loaded") }),
	}
	for name, c := range cases {
		_, err := ValidateClassify(c, f)
		require.Error(t, err, name)
		assert.Equal(t, fault.KindClassification, fault.GetKind(err), name)
		assert.True(t, fault.IsFatal(err), name)
	}
}

func TestBinaryOverlay(t *testing.T) {
	inner := NewGroup("scan", "normal", "spam", "normal")
	pick := 0
	c := NewBinary(NewFunc(inner, func(*model.Flow) FlowClass { return inner.Class(pick) }))
	f := flow(1, 1, 60, 20, 0)

	assert.Equal(t, []string{"normal", "botnet"}, c.Classes().Names())
	assert.NotEqual(t, inner.ID(), c.Classes().ID())

	want := []string{"botnet", "normal", "botnet", "botnet"}
	for i, name := range want {
		pick = i
		class, err := ValidateClassify(c, f)
		require.NoError(t, err)
		assert.Equal(t, name, class.Name(), "inner class %d", i)
	}

	noNormal := NewGroup("scan", "spam")
	all := NewBinary(NewFunc(noNormal, func(*model.Flow) FlowClass {
		t.Fatal("inner classifier must not be consulted")
		return FlowClass{}
	}))
	assert.Equal(t, "botnet", all.Classify(f).Name())
}

func TestBinaryOverlay_Nested(t *testing.T) {
	inner := NewGroup("scan", "normal", "spam")
	pick := 0
	classifier := NewFunc(inner, func(*model.Flow) FlowClass { return inner.Class(pick) })
	once := NewBinary(classifier)
	twice := NewBinary(NewBinary(classifier))
	f := flow(1, 1, 60, 20, 0)

	assert.Equal(t, once.Classes().Names(), twice.Classes().Names())

	for i := 0; i < inner.Len(); i++ {
		pick = i
		want := once.Classify(f)
		got, err := ValidateClassify(twice, f)
		require.NoError(t, err)
		assert.Equal(t, want.Name(), got.Name(), "inner class %d", i)
		assert.Equal(t, want.ID(), got.ID(), "inner class %d", i)
	}
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, Names(), DefaultName)

	c, err := New(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, []string{"normal", "botnet"}, c.Classes().Names())

	_, err = New("does-not-exist")
	assert.Error(t, err)

	assert.Panics(t, func() {
		Register(DefaultName, func() (Classifier, error) { return NewDefault(), nil })
	})
}

func TestDefaultClassifier(t *testing.T) {
	d := NewDefault()

	cases := []struct {
		name string
		flow *model.Flow
		want string
	}{
		{"bulk transfer", flow(100, 40, 150000, 140000, 3*time.Second), "normal"},
		{"short answered exchange", flow(6, 3, 900, 400, 200*time.Millisecond), "normal"},
		{"unanswered burst", flow(20, 20, 1200, 0, 500*time.Millisecond), "botnet"},
		{"slow beacon", flow(30, 29, 2400, 600, 10*time.Minute), "botnet"},
		{"slow balanced chat", flow(30, 15, 2400, 600, 10*time.Minute), "normal"},
		{"busy interactive session", flow(1000, 500, 200000, 150000, 30*time.Second), "normal"},
	}
	for _, tc := range cases {
		class, err := ValidateClassify(d, tc.flow)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, class.Name(), tc.name)
	}
}

func TestExtractFeatures(t *testing.T) {
	feat := ExtractFeatures(flow(4, 3, 400, 200, 0))
	assert.Equal(t, unknownDuration, feat.Duration)
	assert.InDelta(t, 40000, feat.BytesPerSecond, 1e-6)
	assert.InDelta(t, 50, feat.AveragePayload, 1e-9)
	assert.InDelta(t, 0.75, feat.OutgoingRatio, 1e-9)
}
