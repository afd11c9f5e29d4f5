// Package flowtable reconstructs bidirectional flows from packet records.
package flowtable

import (
	"time"

	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"
)

// DefaultWindow is the default lifetime of a flow epoch.
const DefaultWindow = 60 * time.Second

// SpawnedListener is notified when a flow is created.
type SpawnedListener func(flow *model.Flow)

// PacketListener is notified after a packet has been accounted to a flow.
type PacketListener func(flow *model.Flow, rec *model.RawPacketRecord)

// DeadListener is notified when a flow is evicted. An error aborts the
// flush that evicted it.
type DeadListener func(flow *model.Flow) error

// Table holds the active flows of the current epoch. An epoch starts with
// its first packet and ends with the first packet that arrives more than
// the window after that start, or before it. Every flow dies at the end of
// its epoch.
//
// A Table is not safe for concurrent use.
type Table struct {
	window     time.Duration
	epochStart time.Time
	started    bool

	flows []*model.Flow
	index map[model.FlowKey]*model.Flow

	onSpawned []SpawnedListener
	onPacket  []PacketListener
	onDead    []DeadListener
}

// New creates an empty table. A non-positive window selects DefaultWindow.
func New(window time.Duration) *Table {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Table{
		window: window,
		index:  make(map[model.FlowKey]*model.Flow),
	}
}

// Window returns the epoch length.
func (t *Table) Window() time.Duration {
	return t.window
}

// OnFlowSpawned registers a listener for new flows.
func (t *Table) OnFlowSpawned(l SpawnedListener) {
	t.onSpawned = append(t.onSpawned, l)
}

// OnPacketAppended registers a listener for accounted packets.
func (t *Table) OnPacketAppended(l PacketListener) {
	t.onPacket = append(t.onPacket, l)
}

// OnFlowDead registers a listener for evicted flows.
func (t *Table) OnFlowDead(l DeadListener) {
	t.onDead = append(t.onDead, l)
}

// Len returns the number of active flows.
func (t *Table) Len() int {
	return len(t.flows)
}

// Flows returns the active flows in creation order.
func (t *Table) Flows() []*model.Flow {
	return append([]*model.Flow(nil), t.flows...)
}

// Process accounts one packet record. ARP records take part in epoch
// bookkeeping but never in flows.
func (t *Table) Process(rec *model.RawPacketRecord) error {
	if !t.started || rec.Timestamp.Sub(t.epochStart) > t.window || rec.Timestamp.Before(t.epochStart) {
		err := t.Flush()
		t.epochStart = rec.Timestamp
		t.started = true
		if err != nil {
			return err
		}
	}

	if rec.IsARP() {
		return nil
	}

	key := rec.Key()
	flow, ok := t.index[key]
	if !ok {
		flow = model.NewFlow(rec)
		if err := t.insert(key, flow); err != nil {
			return err
		}
		for _, l := range t.onSpawned {
			l(flow)
		}
	} else {
		if !flow.Matches(rec) || flow.Key() != key {
			return fault.Errorf(fault.KindConsistency,
				"flow %s indexed under key of packet %s:%d -> %s:%d",
				flow, rec.Source, rec.SrcPort, rec.Destination, rec.DstPort)
		}
		flow.Append(rec)
	}

	for _, l := range t.onPacket {
		l(flow, rec)
	}
	return nil
}

func (t *Table) insert(key model.FlowKey, flow *model.Flow) error {
	if _, exists := t.index[key]; exists {
		return fault.Errorf(fault.KindConsistency, "flow table already holds a flow for %s", flow)
	}
	t.index[key] = flow
	t.flows = append(t.flows, flow)
	return nil
}

// Flush evicts every flow in creation order, notifying the dead listeners.
// The first listener error stops the notifications and is returned; the
// table is empty afterwards either way.
func (t *Table) Flush() error {
	flows := t.flows
	t.flows = nil
	t.index = make(map[model.FlowKey]*model.Flow)

	for _, flow := range flows {
		for _, l := range t.onDead {
			if err := l(flow); err != nil {
				return err
			}
		}
	}
	return nil
}
