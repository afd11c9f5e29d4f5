package model

import (
	"net/netip"
	"time"
)

// ProtocolARP is the protocol id given to ARP records. It lies outside the
// IP protocol number space so it can never collide with a real transport.
const ProtocolARP = 470

// RawPacketRecord holds the fields extracted from a single captured frame.
// It is immutable once produced.
type RawPacketRecord struct {
	Timestamp     time.Time
	Source        netip.Addr
	SrcPort       uint16
	Destination   netip.Addr
	DstPort       uint16
	Protocol      int
	Octets        int
	HasPayload    bool
	PayloadLength int
}

// IsARP reports whether the record describes an ARP frame.
func (r *RawPacketRecord) IsARP() bool {
	return r.Protocol == ProtocolARP
}

// Key returns the direction-agnostic key of the flow this record belongs to.
func (r *RawPacketRecord) Key() FlowKey {
	return NewFlowKey(Endpoint{r.Source, r.SrcPort}, Endpoint{r.Destination, r.DstPort}, r.Protocol)
}

// Endpoint is one side of a conversation.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) compare(o Endpoint) int {
	if c := e.Addr.Compare(o.Addr); c != 0 {
		return c
	}
	switch {
	case e.Port < o.Port:
		return -1
	case e.Port > o.Port:
		return 1
	}
	return 0
}

// FlowKey identifies a flow regardless of packet direction. The endpoints are
// stored in canonical order, so swapping source and destination yields an
// equal key and the key can be used directly as a map key.
type FlowKey struct {
	Low      Endpoint
	High     Endpoint
	Protocol int
}

// NewFlowKey builds the canonical key for the two endpoints.
func NewFlowKey(a, b Endpoint, protocol int) FlowKey {
	if a.compare(b) > 0 {
		a, b = b, a
	}
	return FlowKey{Low: a, High: b, Protocol: protocol}
}

// Flow is a bidirectional conversation reconstructed from packets. Source
// and destination are fixed by the first packet.
type Flow struct {
	Start           time.Time
	End             time.Time
	Source          netip.Addr
	SrcPort         uint16
	Destination     netip.Addr
	DstPort         uint16
	Protocol        int
	Packets         int64
	OutgoingPackets int64
	Octets          int64
	PayloadOctets   int64
}

// NewFlow creates a flow from its first packet.
func NewFlow(r *RawPacketRecord) *Flow {
	return &Flow{
		Start:           r.Timestamp,
		End:             r.Timestamp,
		Source:          r.Source,
		SrcPort:         r.SrcPort,
		Destination:     r.Destination,
		DstPort:         r.DstPort,
		Protocol:        r.Protocol,
		Packets:         1,
		OutgoingPackets: 1,
		Octets:          int64(r.Octets),
		PayloadOctets:   int64(r.PayloadLength),
	}
}

// Key returns the direction-agnostic key of the flow.
func (f *Flow) Key() FlowKey {
	return NewFlowKey(Endpoint{f.Source, f.SrcPort}, Endpoint{f.Destination, f.DstPort}, f.Protocol)
}

// Matches reports whether r belongs to the flow in either direction.
func (f *Flow) Matches(r *RawPacketRecord) bool {
	if f.Protocol != r.Protocol {
		return false
	}
	return f.isOutgoing(r) ||
		(f.Source == r.Destination && f.SrcPort == r.DstPort &&
			f.Destination == r.Source && f.DstPort == r.SrcPort)
}

func (f *Flow) isOutgoing(r *RawPacketRecord) bool {
	return f.Source == r.Source && f.SrcPort == r.SrcPort &&
		f.Destination == r.Destination && f.DstPort == r.DstPort
}

// Append accounts a matched packet to the flow.
func (f *Flow) Append(r *RawPacketRecord) {
	f.End = r.Timestamp
	f.Packets++
	if f.isOutgoing(r) {
		f.OutgoingPackets++
	}
	f.Octets += int64(r.Octets)
	f.PayloadOctets += int64(r.PayloadLength)
}

// Duration returns End - Start.
func (f *Flow) Duration() time.Duration {
	return f.End.Sub(f.Start)
}

// ClassifiedFlow is a dead flow together with the class it was given.
type ClassifiedFlow struct {
	Flow     *Flow
	Class    string
	Abnormal bool
}
