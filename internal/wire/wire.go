// Package wire encodes frames and classified flows as protobuf messages for
// transport over NATS.
//
//	message Frame {
//	  google.protobuf.Timestamp timestamp = 1;
//	  bytes data = 2;
//	  uint32 link_type = 3;
//	}
//
//	message ClassifiedFlow {
//	  google.protobuf.Timestamp start = 1;
//	  google.protobuf.Timestamp end = 2;
//	  bytes source = 3;
//	  uint32 src_port = 4;
//	  bytes destination = 5;
//	  uint32 dst_port = 6;
//	  uint32 protocol = 7;
//	  int64 packets = 8;
//	  int64 outgoing_packets = 9;
//	  int64 octets = 10;
//	  int64 payload_octets = 11;
//	  string class = 12;
//	  bool abnormal = 13;
//	}
package wire

import (
	"fmt"
	"net/netip"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/model"

	"github.com/google/gopacket/layers"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Frame field numbers.
const (
	frameTimestamp protowire.Number = 1
	frameData      protowire.Number = 2
	frameLinkType  protowire.Number = 3
)

// ClassifiedFlow field numbers.
const (
	flowStart protowire.Number = iota + 1
	flowEnd
	flowSource
	flowSrcPort
	flowDestination
	flowDstPort
	flowProtocol
	flowPackets
	flowOutgoing
	flowOctets
	flowPayload
	flowClass
	flowAbnormal
)

// MarshalFrame encodes a captured frame.
func MarshalFrame(f capture.Frame, linkType layers.LinkType) ([]byte, error) {
	b := make([]byte, 0, len(f.Data)+32)
	b, err := appendTimestamp(b, frameTimestamp, f.Timestamp)
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, frameData, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Data)
	b = appendVarint(b, frameLinkType, uint64(linkType))
	return b, nil
}

// UnmarshalFrame decodes a frame and the link type it was captured on.
// The frame data aliases b.
func UnmarshalFrame(b []byte) (capture.Frame, layers.LinkType, error) {
	var (
		f        capture.Frame
		linkType = layers.LinkTypeEthernet
	)
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == frameTimestamp && typ == protowire.BytesType:
			return consumeTimestamp(v, &f.Timestamp)
		case num == frameData && typ == protowire.BytesType:
			data, n := protowire.ConsumeBytes(v)
			f.Data = data
			return n, nil
		case num == frameLinkType && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			linkType = layers.LinkType(x)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	if err != nil {
		return capture.Frame{}, 0, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, linkType, nil
}

// MarshalClassifiedFlow encodes a classified flow.
func MarshalClassifiedFlow(rec model.ClassifiedFlow) ([]byte, error) {
	f := rec.Flow
	if f == nil {
		return nil, fmt.Errorf("classified flow without flow")
	}
	b := make([]byte, 0, 128)
	b, err := appendTimestamp(b, flowStart, f.Start)
	if err != nil {
		return nil, err
	}
	if b, err = appendTimestamp(b, flowEnd, f.End); err != nil {
		return nil, err
	}
	b = appendAddr(b, flowSource, f.Source)
	b = appendVarint(b, flowSrcPort, uint64(f.SrcPort))
	b = appendAddr(b, flowDestination, f.Destination)
	b = appendVarint(b, flowDstPort, uint64(f.DstPort))
	b = appendVarint(b, flowProtocol, uint64(f.Protocol))
	b = appendVarint(b, flowPackets, uint64(f.Packets))
	b = appendVarint(b, flowOutgoing, uint64(f.OutgoingPackets))
	b = appendVarint(b, flowOctets, uint64(f.Octets))
	b = appendVarint(b, flowPayload, uint64(f.PayloadOctets))
	if rec.Class != "" {
		b = protowire.AppendTag(b, flowClass, protowire.BytesType)
		b = protowire.AppendString(b, rec.Class)
	}
	if rec.Abnormal {
		b = appendVarint(b, flowAbnormal, protowire.EncodeBool(true))
	}
	return b, nil
}

// UnmarshalClassifiedFlow decodes a classified flow.
func UnmarshalClassifiedFlow(b []byte) (model.ClassifiedFlow, error) {
	f := &model.Flow{}
	rec := model.ClassifiedFlow{Flow: f}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if typ == protowire.BytesType {
			switch num {
			case flowStart:
				return consumeTimestamp(v, &f.Start)
			case flowEnd:
				return consumeTimestamp(v, &f.End)
			case flowSource:
				return consumeAddr(v, &f.Source)
			case flowDestination:
				return consumeAddr(v, &f.Destination)
			case flowClass:
				s, n := protowire.ConsumeString(v)
				rec.Class = s
				return n, nil
			}
		}
		if typ == protowire.VarintType {
			x, n := protowire.ConsumeVarint(v)
			switch num {
			case flowSrcPort:
				f.SrcPort = uint16(x)
			case flowDstPort:
				f.DstPort = uint16(x)
			case flowProtocol:
				f.Protocol = int(x)
			case flowPackets:
				f.Packets = int64(x)
			case flowOutgoing:
				f.OutgoingPackets = int64(x)
			case flowOctets:
				f.Octets = int64(x)
			case flowPayload:
				f.PayloadOctets = int64(x)
			case flowAbnormal:
				rec.Abnormal = protowire.DecodeBool(x)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	if err != nil {
		return model.ClassifiedFlow{}, fmt.Errorf("failed to decode classified flow: %w", err)
	}
	return rec, nil
}

// consumeFields walks the fields of a message. fn consumes the value of one
// field and returns its length, or a negative protowire error code.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendAddr(b []byte, num protowire.Number, addr netip.Addr) []byte {
	if !addr.IsValid() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, addr.AsSlice())
}

func consumeAddr(b []byte, addr *netip.Addr) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	a, ok := netip.AddrFromSlice(v)
	if !ok {
		return 0, fmt.Errorf("invalid address of %d bytes", len(v))
	}
	*addr = a
	return n, nil
}

func appendTimestamp(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	ts, err := proto.Marshal(timestamppb.New(t))
	if err != nil {
		return nil, fmt.Errorf("failed to encode timestamp: %w", err)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, ts), nil
}

func consumeTimestamp(b []byte, t *time.Time) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(v, &ts); err != nil {
		return 0, err
	}
	if err := ts.CheckValid(); err != nil {
		return 0, err
	}
	*t = ts.AsTime()
	return n, nil
}
