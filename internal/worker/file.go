package worker

import (
	"fmt"
	"strings"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/engine/flowtable"
	"BotnetSpectra/internal/engine/protocol"
	"BotnetSpectra/internal/fault"
	"BotnetSpectra/pkg/pcap"

	log "github.com/sirupsen/logrus"
)

// ErrorMode selects how a capture file replay treats unparsable frames.
type ErrorMode int

const (
	// ErrorSkip parses leniently and skips frames that still fail.
	ErrorSkip ErrorMode = iota
	// ErrorLenient parses leniently and aborts on frames that still fail.
	ErrorLenient
	// ErrorStrict aborts on any unreadable field.
	ErrorStrict
)

// ParseErrorMode parses "skip", "lenient" or "strict". Empty means skip.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch strings.ToLower(s) {
	case "", "skip":
		return ErrorSkip, nil
	case "lenient":
		return ErrorLenient, nil
	case "strict":
		return ErrorStrict, nil
	}
	return ErrorSkip, fmt.Errorf("unknown error mode '%s'", s)
}

func (m ErrorMode) String() string {
	switch m {
	case ErrorLenient:
		return "lenient"
	case ErrorStrict:
		return "strict"
	default:
		return "skip"
	}
}

// FileStats summarizes a capture file replay.
type FileStats struct {
	Frames  int `json:"frames"`
	Skipped int `json:"skipped"`
}

// RunFile replays a capture file through a fresh flow table into w and
// flushes the remaining flows at the end of the file.
func RunFile(path string, mode ErrorMode, window time.Duration, w *Worker) (FileStats, error) {
	var stats FileStats

	reader, err := pcap.NewReader(path)
	if err != nil {
		return stats, fault.Wrapf(err, fault.KindInput, "cannot open capture file %s", path)
	}
	defer reader.Close()

	parseMode := protocol.Lenient
	if mode == ErrorStrict {
		parseMode = protocol.Strict
	}
	normalizer := protocol.NewNormalizer(parseMode, reader.LinkType())
	table := flowtable.New(window)
	table.OnFlowDead(w.Process)

	log.Printf("Reading packets from '%s' (error mode %s)...", path, mode)
	stats.Frames, err = reader.ReadFrames(func(seq int, f capture.Frame) error {
		rec, err := normalizer.ParsePacket(f.Data, f.Timestamp)
		if err != nil {
			if mode == ErrorSkip {
				stats.Skipped++
				log.WithError(err).Debugf("Skipping packet %d", seq)
				return nil
			}
			return fmt.Errorf("error processing packet %d: %w", seq, err)
		}
		if err := table.Process(rec); err != nil {
			return fmt.Errorf("error processing packet %d: %w", seq, err)
		}
		return nil
	})
	if err != nil {
		if fault.GetKind(err) == fault.KindUnknown {
			err = fault.Wrap(err, fault.KindInput, path)
		}
		return stats, err
	}

	if err := table.Flush(); err != nil {
		return stats, err
	}
	log.Printf("Finished reading %d packets from '%s', %d skipped.", stats.Frames, path, stats.Skipped)
	return stats, nil
}
