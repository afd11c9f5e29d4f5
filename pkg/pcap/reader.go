package pcap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"BotnetSpectra/internal/capture"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic starts every pcapng file (section header block type).
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type packetDataSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader reads frames from a pcap or pcapng file.
type Reader struct {
	file     *os.File
	source   packetDataSource
	linkType layers.LinkType
}

// NewReader creates a new reader for the given file path. The format is
// detected from the file header.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(file)
	magic, err := br.Peek(4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read capture file header: %w", err)
	}

	r := &Reader{file: file}
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to open pcapng file: %w", err)
		}
		r.source, r.linkType = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to open pcap file: %w", err)
		}
		r.source, r.linkType = pr, pr.LinkType()
	}
	return r, nil
}

// LinkType returns the link layer of the frames in the file.
func (r *Reader) LinkType() layers.LinkType {
	return r.linkType
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadFrames reads all frames in file order and passes each to fn with its
// 1-based sequence number. It stops at the first error fn returns, and
// returns the number of frames read.
func (r *Reader) ReadFrames(fn func(seq int, f capture.Frame) error) (int, error) {
	seq := 0
	for {
		data, ci, err := r.source.ReadPacketData()
		if err == io.EOF {
			return seq, nil
		}
		if err != nil {
			return seq, fmt.Errorf("error reading packet %d: %w", seq+1, err)
		}
		seq++
		if err := fn(seq, capture.Frame{Timestamp: ci.Timestamp, Data: data}); err != nil {
			return seq, err
		}
	}
}
