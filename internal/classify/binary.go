package classify

import "BotnetSpectra/internal/model"

// Names of the two classes of a Binary classifier.
const (
	BinaryNormal = "normal"
	BinaryBotnet = "botnet"
)

// Binary collapses the classes of another classifier into normal and
// botnet. Everything the inner classifier does not call normal is botnet.
type Binary struct {
	inner       Classifier
	normalIndex int
	group       *Group
	normal      FlowClass
	botnet      FlowClass
}

// NewBinary wraps inner. Its normal class is the first inner class named
// "normal"; without one every flow is botnet.
func NewBinary(inner Classifier) *Binary {
	g := NewGroup(BinaryNormal, BinaryBotnet)
	return &Binary{
		inner:       inner,
		normalIndex: inner.Classes().Index(NormalClassName),
		group:       g,
		normal:      g.Class(0),
		botnet:      g.Class(1),
	}
}

// Classes implements Classifier.
func (b *Binary) Classes() *Group {
	return b.group
}

// Inner returns the wrapped classifier.
func (b *Binary) Inner() Classifier {
	return b.inner
}

// Classify implements Classifier.
func (b *Binary) Classify(flow *model.Flow) FlowClass {
	if b.normalIndex < 0 {
		return b.botnet
	}
	if b.inner.Classify(flow).ID() == b.normalIndex {
		return b.normal
	}
	return b.botnet
}
