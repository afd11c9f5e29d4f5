// Package testutil builds captured frames and capture files for tests.
package testutil

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Frame is a serialized frame and the time it was captured.
type Frame struct {
	Timestamp time.Time
	Data      []byte
}

// Serialize serializes the layers with lengths and checksums fixed.
func Serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet(ethType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: ethType}
}

func ip4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func ip6(src, dst string, next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: next,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
}

// TCP4 builds an Ethernet/IPv4/TCP frame carrying payloadLen bytes.
func TCP4(t testing.TB, src string, srcPort uint16, dst string, dstPort uint16, payloadLen int) []byte {
	ip := ip4(src, dst, layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), ACK: true, Window: 14600}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return Serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(make([]byte, payloadLen)))
}

// UDP4 builds an Ethernet/IPv4/UDP frame carrying payloadLen bytes.
func UDP4(t testing.TB, src string, srcPort uint16, dst string, dstPort uint16, payloadLen int) []byte {
	ip := ip4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return Serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(make([]byte, payloadLen)))
}

// UDP6 builds an Ethernet/IPv6/UDP frame carrying payloadLen bytes.
func UDP6(t testing.TB, src string, srcPort uint16, dst string, dstPort uint16, payloadLen int) []byte {
	ip := ip6(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return Serialize(t, ethernet(layers.EthernetTypeIPv6), ip, udp, gopacket.Payload(make([]byte, payloadLen)))
}

// IPv4Raw builds an Ethernet/IPv4 frame whose payload is body, verbatim.
func IPv4Raw(t testing.TB, src, dst string, proto layers.IPProtocol, body []byte) []byte {
	return Serialize(t, ethernet(layers.EthernetTypeIPv4), ip4(src, dst, proto), gopacket.Payload(body))
}

// IPv6Raw builds an Ethernet/IPv6 frame whose payload is body, verbatim.
func IPv6Raw(t testing.TB, src, dst string, next layers.IPProtocol, body []byte) []byte {
	return Serialize(t, ethernet(layers.EthernetTypeIPv6), ip6(src, dst, next), gopacket.Payload(body))
}

// ARP builds an Ethernet/ARP request.
func ARP(t testing.TB, sender, target string) []byte {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: net.ParseIP(sender).To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    net.ParseIP(target).To4(),
	}
	return Serialize(t, ethernet(layers.EthernetTypeARP), arp)
}

// NonIP builds an Ethernet frame of an unknown EtherType.
func NonIP(t testing.TB) []byte {
	return Serialize(t, ethernet(layers.EthernetType(0x88B5)), gopacket.Payload(make([]byte, 64)))
}

// WritePcap writes frames to a new Ethernet capture file at path.
func WritePcap(t testing.TB, path string, frames []Frame) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, fr := range frames {
		ci := gopacket.CaptureInfo{Timestamp: fr.Timestamp, CaptureLength: len(fr.Data), Length: len(fr.Data)}
		require.NoError(t, w.WritePacket(ci, fr.Data))
	}
}
