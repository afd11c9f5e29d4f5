package classify

import (
	"time"

	"BotnetSpectra/internal/model"
)

// DefaultName is the name the inbuilt decision tree is registered under.
const DefaultName = "default"

func init() {
	Register(DefaultName, func() (Classifier, error) {
		return NewDefault(), nil
	})
}

// unknownDuration stands in for the duration of single-instant flows.
const unknownDuration = 10 * time.Millisecond

// Features are the flow statistics the inbuilt tree decides on.
type Features struct {
	// AveragePayload is the payload octets per packet.
	AveragePayload float64
	// BytesPerSecond is the octet rate over the flow duration.
	BytesPerSecond float64
	// OutgoingRatio is the share of packets sent by the flow source.
	OutgoingRatio float64
	Duration      time.Duration
}

// ExtractFeatures computes the features of a flow.
func ExtractFeatures(f *model.Flow) Features {
	d := f.Duration()
	if d <= 0 {
		d = unknownDuration
	}
	var feat Features
	feat.Duration = d
	feat.BytesPerSecond = float64(f.Octets) / d.Seconds()
	if f.Packets > 0 {
		feat.AveragePayload = float64(f.PayloadOctets) / float64(f.Packets)
		feat.OutgoingRatio = float64(f.OutgoingPackets) / float64(f.Packets)
	}
	return feat
}

// Default is a small fixed decision tree telling command and control
// chatter from ordinary traffic. Bots tend to hold long, nearly one-way
// conversations of small, regular messages at a low rate.
type Default struct {
	group  *Group
	normal FlowClass
	botnet FlowClass
}

// NewDefault creates the inbuilt classifier.
func NewDefault() *Default {
	g := NewGroup(NormalClassName, BinaryBotnet)
	return &Default{group: g, normal: g.Class(0), botnet: g.Class(1)}
}

// Classes implements Classifier.
func (d *Default) Classes() *Group {
	return d.group
}

// Classify implements Classifier.
func (d *Default) Classify(f *model.Flow) FlowClass {
	feat := ExtractFeatures(f)

	if feat.AveragePayload > 300 {
		// Bulk transfers.
		return d.normal
	}
	if feat.Duration < 2*time.Second {
		if feat.OutgoingRatio > 0.9 && f.Packets >= 8 && feat.AveragePayload < 64 {
			// Short bursts nobody answers: scanning or flooding.
			return d.botnet
		}
		return d.normal
	}
	if feat.BytesPerSecond < 512 {
		if feat.OutgoingRatio >= 0.6 || feat.OutgoingRatio <= 0.1 {
			// Slow, one-sided beaconing.
			return d.botnet
		}
		return d.normal
	}
	if feat.AveragePayload < 20 && feat.OutgoingRatio > 0.8 {
		return d.botnet
	}
	return d.normal
}
