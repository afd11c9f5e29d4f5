package worker

import (
	"strings"
	"testing"

	"BotnetSpectra/internal/classify"
	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTable(t *testing.T) {
	table := "start, end, src, sport, dst, dport, proto, packets, outgoing, octets, payload\n" +
		testFlow(80).String() + "\n" +
		testFlow(25).String() + ", spam\n"

	mem := &memWriter{}
	w := New(portClassifier(), Options{Classify: true}, nil)
	w.AddWriter(mem)

	n, err := RunTable(strings.NewReader(table), true, w)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.Len(t, mem.recs, 2)
	assert.Equal(t, testFlow(25).String(), mem.recs[1].Flow.String())
	assert.Equal(t, "spam", mem.recs[1].Class)
}

func TestRunTable_BadRecord(t *testing.T) {
	table := testFlow(80).String() + "\n" +
		"01.01.2024 00:00:00.000000, 01.01.2024 00:00:01.000000, not-an-ip, 1, 10.0.0.2, 2, 6, 1, 1, 60, 0\n"

	w := New(portClassifier(), Options{Classify: true}, nil)
	n, err := RunTable(strings.NewReader(table), false, w)
	require.Error(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, fault.KindInput, fault.GetKind(err))
	assert.Contains(t, err.Error(), "error processing flow 1")
	assert.Contains(t, err.Error(), "source address")
}

func TestRunTable_HeaderHandling(t *testing.T) {
	w := New(portClassifier(), Options{Classify: true}, nil)
	_, err := RunTable(strings.NewReader("header, only\n"), false, w)
	assert.Error(t, err, "header is parsed as a flow unless skipped")

	n, err := RunTable(strings.NewReader(""), true, w)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunTable_ClassificationFault(t *testing.T) {
	g := classify.NewGroup("normal")
	w := New(classify.NewFunc(g, func(*model.Flow) classify.FlowClass { return classify.FlowClass{} }), Options{Classify: true}, nil)

	n, err := RunTable(strings.NewReader(testFlow(80).String()+"\n"), false, w)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, fault.KindClassification, fault.GetKind(err))
}
