// Package capture delivers captured frames to the ingestion pipeline.
package capture

import (
	"time"

	"github.com/google/gopacket/layers"
)

// Frame is one captured frame, starting at the link layer.
type Frame struct {
	Timestamp time.Time
	Data      []byte
}

// FrameHandler receives frames from a Source. It may be called from any
// goroutine and must not block.
type FrameHandler func(Frame)

// Source is a capture device the pipeline can be started on.
type Source interface {
	// Start begins delivering frames to handler.
	Start(handler FrameHandler) error
	// Stop stops delivery. No frame is delivered after Stop returns.
	Stop() error
	// LinkType is the link layer of the delivered frames.
	LinkType() layers.LinkType
}
