package protocol

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Mode selects how the normalizer reacts to fields it cannot read.
type Mode int

const (
	// Strict rejects any frame with an unreadable field.
	Strict Mode = iota
	// Lenient substitutes defaults for an unreadable protocol or payload and
	// only rejects frames whose addresses cannot be read.
	Lenient
)

// unmeasuredPayloadLength is recorded in lenient mode when the payload
// length cannot be measured.
const unmeasuredPayloadLength = 16

func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// ParseMode parses "strict" or "lenient".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	}
	return Strict, fmt.Errorf("unknown parse mode '%s'", s)
}

// Normalizer turns captured frames of one link type into RawPacketRecords.
type Normalizer struct {
	mode    Mode
	decoder gopacket.Decoder
}

// NewNormalizer creates a normalizer for frames captured with linkType.
func NewNormalizer(mode Mode, linkType layers.LinkType) *Normalizer {
	return &Normalizer{mode: mode, decoder: linkType}
}

// Mode returns the mode the normalizer was created with.
func (n *Normalizer) Mode() Mode {
	return n.mode
}

// ParsePacket decodes an Ethernet frame with a fresh normalizer.
func ParsePacket(data []byte, ts time.Time, mode Mode) (*model.RawPacketRecord, error) {
	return NewNormalizer(mode, layers.LinkTypeEthernet).ParsePacket(data, ts)
}

// TryParsePacket is ParsePacket reporting failure as false.
func TryParsePacket(data []byte, ts time.Time, mode Mode) (*model.RawPacketRecord, bool) {
	return NewNormalizer(mode, layers.LinkTypeEthernet).TryParsePacket(data, ts)
}

// TryParsePacket is ParsePacket reporting failure as false.
func (n *Normalizer) TryParsePacket(data []byte, ts time.Time) (*model.RawPacketRecord, bool) {
	rec, err := n.ParsePacket(data, ts)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// ParsePacket uses gopacket to decode a raw frame and extract the fields a
// flow is built from. Every failure is a parse fault.
func (n *Normalizer) ParsePacket(data []byte, ts time.Time) (*model.RawPacketRecord, error) {
	packet := gopacket.NewPacket(data, n.decoder, gopacket.DecodeOptions{NoCopy: true})

	rec := &model.RawPacketRecord{
		Timestamp: ts,
		Octets:    len(data),
	}
	if link := packet.LinkLayer(); link != nil {
		rec.Octets = len(link.LayerPayload())
	}

	if l := packet.Layer(layers.LayerTypeARP); l != nil {
		return n.parseARP(rec, l.(*layers.ARP))
	}

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		return n.parseIPv4(rec, ip)
	case *layers.IPv6:
		return n.parseIPv6(rec, ip, packet.Layers())
	case nil:
		return nil, fault.New(fault.KindParse, "frame has no network layer")
	default:
		return nil, fault.Errorf(fault.KindParse, "unsupported network layer %s", ip.LayerType())
	}
}

func (n *Normalizer) parseARP(rec *model.RawPacketRecord, arp *layers.ARP) (*model.RawPacketRecord, error) {
	if err := setAddresses(rec, arp.SourceProtAddress, arp.DstProtAddress); err != nil {
		return nil, err
	}
	rec.Protocol = model.ProtocolARP
	return rec, nil
}

func (n *Normalizer) parseIPv4(rec *model.RawPacketRecord, ip *layers.IPv4) (*model.RawPacketRecord, error) {
	if err := setAddresses(rec, ip.SrcIP, ip.DstIP); err != nil {
		return nil, err
	}
	if len(ip.Contents) < 20 || len(ip.Contents) != int(ip.IHL)*4 {
		return n.unreadableProtocol(rec, layers.IPProtocolIPv4, "IPv4 header is malformed")
	}
	rec.Protocol = int(ip.Protocol)
	return n.parseTransport(rec, ip.Protocol, ip.Payload, ip.FragOffset != 0)
}

func (n *Normalizer) parseIPv6(rec *model.RawPacketRecord, ip *layers.IPv6, decoded []gopacket.Layer) (*model.RawPacketRecord, error) {
	if err := setAddresses(rec, ip.SrcIP, ip.DstIP); err != nil {
		return nil, err
	}
	if len(ip.Contents) != 40 {
		return n.unreadableProtocol(rec, layers.IPProtocolIPv6, "IPv6 header is malformed")
	}

	next, rest := ip.NextHeader, ip.Payload
	if ip.HopByHop != nil {
		next = ip.HopByHop.NextHeader
	}
	fragment := false

	// Follow the extension headers decoded after the fixed header.
	seen := false
chain:
	for _, l := range decoded {
		if !seen {
			seen = l == gopacket.Layer(ip)
			continue
		}
		switch ext := l.(type) {
		case *layers.IPv6HopByHop:
		case *layers.IPv6Routing:
			next, rest = ext.NextHeader, ext.LayerPayload()
		case *layers.IPv6Destination:
			next, rest = ext.NextHeader, ext.LayerPayload()
		case *layers.IPv6Fragment:
			next, rest = ext.NextHeader, ext.LayerPayload()
			fragment = ext.FragmentOffset != 0
		default:
			break chain
		}
	}

	if isExtensionHeader(next) {
		return n.unreadableProtocol(rec, layers.IPProtocolIPv6, "IPv6 extension header chain is broken")
	}
	rec.Protocol = int(next)
	return n.parseTransport(rec, next, rest, fragment)
}

// parseTransport reads ports and payload from the bytes following the
// network header. Only the first fragment of a datagram carries a
// transport header.
func (n *Normalizer) parseTransport(rec *model.RawPacketRecord, proto layers.IPProtocol, rest []byte, fragment bool) (*model.RawPacketRecord, error) {
	if fragment {
		return withPayload(rec, len(rest)), nil
	}

	switch proto {
	case layers.IPProtocolTCP:
		var tcp layers.TCP
		if err := tcp.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
			return n.unmeasurable(rec, fmt.Errorf("TCP header: %w", err))
		}
		rec.SrcPort, rec.DstPort = uint16(tcp.SrcPort), uint16(tcp.DstPort)
		return withPayload(rec, len(tcp.Payload)), nil
	case layers.IPProtocolUDP:
		var udp layers.UDP
		if err := udp.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
			return n.unmeasurable(rec, fmt.Errorf("UDP header: %w", err))
		}
		rec.SrcPort, rec.DstPort = uint16(udp.SrcPort), uint16(udp.DstPort)
		return withPayload(rec, len(udp.Payload)), nil
	}
	return withPayload(rec, len(rest)), nil
}

// unreadableProtocol infers the protocol from the address family in
// lenient mode.
func (n *Normalizer) unreadableProtocol(rec *model.RawPacketRecord, family layers.IPProtocol, reason string) (*model.RawPacketRecord, error) {
	if n.mode == Strict {
		return nil, fault.New(fault.KindParse, reason)
	}
	rec.Protocol = int(family)
	rec.PayloadLength = unmeasuredPayloadLength
	return rec, nil
}

func (n *Normalizer) unmeasurable(rec *model.RawPacketRecord, err error) (*model.RawPacketRecord, error) {
	if n.mode == Strict {
		return nil, fault.Wrap(err, fault.KindParse, "payload cannot be measured")
	}
	rec.SrcPort, rec.DstPort = 0, 0
	rec.PayloadLength = unmeasuredPayloadLength
	return rec, nil
}

func withPayload(rec *model.RawPacketRecord, length int) *model.RawPacketRecord {
	rec.HasPayload = length > 0
	rec.PayloadLength = length
	return rec
}

func setAddresses(rec *model.RawPacketRecord, src, dst []byte) error {
	s, ok := netip.AddrFromSlice(src)
	if !ok {
		return fault.Errorf(fault.KindParse, "unreadable source address %x", src)
	}
	d, ok := netip.AddrFromSlice(dst)
	if !ok {
		return fault.Errorf(fault.KindParse, "unreadable destination address %x", dst)
	}
	rec.Source, rec.Destination = s.Unmap(), d.Unmap()
	return nil
}

func isExtensionHeader(p layers.IPProtocol) bool {
	switch p {
	case layers.IPProtocolIPv6HopByHop, layers.IPProtocolIPv6Routing,
		layers.IPProtocolIPv6Fragment, layers.IPProtocolIPv6Destination:
		return true
	}
	return false
}
