package main

import (
	"flag"
	"math/rand"
	"net"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

type packet struct {
	ts   time.Time
	data []byte
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	conversations := flag.Int("c", 100, "Number of conversations to generate")
	botnetShare := flag.Float64("b", 0.2, "Share of conversations that beacon like a bot")
	span := flag.Duration("span", 5*time.Minute, "Time span the conversations start in")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	base := time.Now().UTC().Truncate(time.Second)

	log.Printf("Generating %d conversations into %s...", *conversations, *outputFile)

	var packets []packet
	bots := 0
	for i := 0; i < *conversations; i++ {
		start := base.Add(time.Duration(rng.Int63n(int64(*span) + 1)))
		client := randomIP(rng)
		server := randomIP(rng)
		clientPort := uint16(rng.Intn(65535-1024) + 1024)
		if rng.Float64() < *botnetShare {
			packets = append(packets, beacon(rng, start, client, clientPort, server)...)
			bots++
		} else {
			packets = append(packets, download(rng, start, client, clientPort, server)...)
		}
	}

	// Capture files are in time order.
	sort.SliceStable(packets, func(i, j int) bool { return packets[i].ts.Before(packets[j].ts) })

	for i, p := range packets {
		if (i+1)%100000 == 0 {
			log.Printf("Written %d packets...", i+1)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     p.ts,
			CaptureLength: len(p.data),
			Length:        len(p.data),
		}
		if err := pcapWriter.WritePacket(ci, p.data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets of %d conversations (%d beaconing) into %s.",
		len(packets), *conversations, bots, *outputFile)
}

func randomIP(rng *rand.Rand) net.IP {
	return net.IP{byte(rng.Intn(223) + 1), byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254) + 1)}
}

// download is a short HTTP exchange: a request followed by bulk responses.
func download(rng *rand.Rand, start time.Time, client net.IP, clientPort uint16, server net.IP) []packet {
	ts := start
	out := []packet{{ts, tcpFrame(client, clientPort, server, 80, 300+rng.Intn(200))}}
	for n := rng.Intn(20) + 5; n > 0; n-- {
		ts = ts.Add(time.Duration(rng.Intn(20)+1) * time.Millisecond)
		out = append(out, packet{ts, tcpFrame(server, 80, client, clientPort, 1000+rng.Intn(400))})
		if n%4 == 0 {
			out = append(out, packet{ts.Add(time.Millisecond), tcpFrame(client, clientPort, server, 80, 0)})
		}
	}
	return out
}

// beacon is command and control chatter: small, regular, unanswered UDP
// messages.
func beacon(rng *rand.Rand, start time.Time, client net.IP, clientPort uint16, server net.IP) []packet {
	interval := time.Duration(rng.Intn(10)+5) * time.Second
	var out []packet
	ts := start
	for n := rng.Intn(6) + 4; n > 0; n-- {
		out = append(out, packet{ts, udpFrame(client, clientPort, server, 6667, rng.Intn(16)+4)})
		ts = ts.Add(interval)
	}
	return out
}

func tcpFrame(src net.IP, srcPort uint16, dst net.IP, dstPort uint16, payloadSize int) []byte {
	ipLayer := ipv4(src, dst, layers.IPProtocolTCP)
	tcpLayer := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		ACK:     true,
		PSH:     payloadSize > 0,
		Window:  14600,
	}
	tcpLayer.SetNetworkLayerForChecksum(ipLayer)
	return serialize(ipLayer, tcpLayer, payloadSize)
}

func udpFrame(src net.IP, srcPort uint16, dst net.IP, dstPort uint16, payloadSize int) []byte {
	ipLayer := ipv4(src, dst, layers.IPProtocolUDP)
	udpLayer := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	udpLayer.SetNetworkLayerForChecksum(ipLayer)
	return serialize(ipLayer, udpLayer, payloadSize)
}

func ipv4(src, dst net.IP, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{SrcIP: src, DstIP: dst, Version: 4, TTL: 64, Protocol: proto}
}

func serialize(ip *layers.IPv4, transport gopacket.SerializableLayer, payloadSize int) []byte {
	ethLayer := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	payload := make([]byte, payloadSize)
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ip, transport, gopacket.Payload(payload)); err != nil {
		log.Fatalf("Failed to serialize layers: %v", err)
	}
	return buf.Bytes()
}
