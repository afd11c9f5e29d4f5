package model

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

const (
	// FlowTimeLayout is the timestamp layout of the textual flow format.
	FlowTimeLayout = "02.01.2006 15:04:05.000000"
	// flowTimeParseLayout accepts any number of fractional digits.
	flowTimeParseLayout = "02.01.2006 15:04:05"

	// FlowFieldCount is the number of fields of a serialized flow.
	FlowFieldCount = 11
)

// String serializes the flow as its 11 comma separated fields.
func (f *Flow) String() string {
	return strings.Join(f.Fields(), ", ")
}

// Fields returns the serialized fields of the flow in their canonical order.
func (f *Flow) Fields() []string {
	return []string{
		f.Start.UTC().Format(FlowTimeLayout),
		f.End.UTC().Format(FlowTimeLayout),
		f.Source.String(),
		strconv.Itoa(int(f.SrcPort)),
		f.Destination.String(),
		strconv.Itoa(int(f.DstPort)),
		strconv.Itoa(f.Protocol),
		strconv.FormatInt(f.Packets, 10),
		strconv.FormatInt(f.OutgoingPackets, 10),
		strconv.FormatInt(f.Octets, 10),
		strconv.FormatInt(f.PayloadOctets, 10),
	}
}

// ParseFlow parses the output of Flow.String.
func ParseFlow(s string) (*Flow, error) {
	return ParseFlowFields(strings.Split(s, ","))
}

// ParseFlowFields parses the first 11 fields of a flow record. Extra fields
// are ignored; surrounding whitespace is trimmed.
func ParseFlowFields(fields []string) (*Flow, error) {
	if len(fields) < FlowFieldCount {
		return nil, fmt.Errorf("flow record has %d fields, want at least %d", len(fields), FlowFieldCount)
	}
	p := fieldParser{fields: fields}

	f := &Flow{
		Start:           p.timestamp(0, "start"),
		End:             p.timestamp(1, "end"),
		Source:          p.address(2, "source address"),
		SrcPort:         uint16(p.integer(3, "source port", 16)),
		Destination:     p.address(4, "destination address"),
		DstPort:         uint16(p.integer(5, "destination port", 16)),
		Protocol:        int(p.integer(6, "protocol", 32)),
		Packets:         p.integer(7, "packets", 64),
		OutgoingPackets: p.integer(8, "outgoing packets", 64),
		Octets:          p.integer(9, "octets", 64),
		PayloadOctets:   p.integer(10, "payload octets", 64),
	}
	if p.err != nil {
		return nil, p.err
	}
	return f, nil
}

// ParseLabeledFlow parses a flow record followed by a label in the 12th field.
func ParseLabeledFlow(fields []string) (*Flow, string, error) {
	if len(fields) < FlowFieldCount+1 {
		return nil, "", fmt.Errorf("labeled flow record has %d fields, want %d", len(fields), FlowFieldCount+1)
	}
	f, err := ParseFlowFields(fields)
	if err != nil {
		return nil, "", err
	}
	return f, strings.TrimSpace(fields[FlowFieldCount]), nil
}

// fieldParser keeps the first error so a record is parsed in one expression.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) field(i int) string {
	return strings.TrimSpace(p.fields[i])
}

func (p *fieldParser) fail(name string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", name, err)
	}
}

func (p *fieldParser) timestamp(i int, name string) time.Time {
	t, err := time.ParseInLocation(flowTimeParseLayout, p.field(i), time.UTC)
	if err != nil {
		p.fail(name, err)
	}
	return t
}

func (p *fieldParser) address(i int, name string) netip.Addr {
	a, err := netip.ParseAddr(p.field(i))
	if err != nil {
		p.fail(name, err)
		return netip.Addr{}
	}
	return a.Unmap()
}

func (p *fieldParser) integer(i int, name string, bits int) int64 {
	if bits == 16 {
		v, err := strconv.ParseUint(p.field(i), 10, 16)
		if err != nil {
			p.fail(name, err)
		}
		return int64(v)
	}
	v, err := strconv.ParseInt(p.field(i), 10, bits)
	if err != nil {
		p.fail(name, err)
	}
	return v
}
