// Package classify defines the contract between the flow engine and the
// classifiers that label dead flows.
package classify

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/atomic"
)

// groupIDs mints process-wide unique group ids.
var groupIDs atomic.Int64

// NormalClassName names the class that marks benign traffic.
const NormalClassName = "normal"

// Group is a complete, immutable set of classes. Classes of different
// groups never compare equal unless one group was reduced onto the other.
type Group struct {
	id      atomic.Int64
	classes []FlowClass
}

// NewGroup mints a group holding one class per name, in order.
func NewGroup(names ...string) *Group {
	g := &Group{}
	g.id.Store(groupIDs.Inc())
	g.classes = make([]FlowClass, len(names))
	for i, name := range names {
		g.classes[i] = FlowClass{id: i, name: name, group: g}
	}
	return g
}

// ID returns the group id.
func (g *Group) ID() int64 {
	return g.id.Load()
}

// Len returns the number of classes.
func (g *Group) Len() int {
	return len(g.classes)
}

// Class returns the class with local id i.
func (g *Group) Class(i int) FlowClass {
	return g.classes[i]
}

// Classes returns the classes in id order.
func (g *Group) Classes() []FlowClass {
	return slices.Clone(g.classes)
}

// Names returns the class names in id order.
func (g *Group) Names() []string {
	names := make([]string, len(g.classes))
	for i, c := range g.classes {
		names[i] = c.name
	}
	return names
}

// Index returns the id of the first class called name, or -1.
func (g *Group) Index(name string) int {
	for i, c := range g.classes {
		if c.name == name {
			return i
		}
	}
	return -1
}

// Equivalent reports whether both groups hold the same names in the same
// order.
func (g *Group) Equivalent(other *Group) bool {
	return slices.Equal(g.Names(), other.Names())
}

// Reduce aliases other onto g when both are equivalent, so that their
// classes compare equal from now on. It reports whether it did so.
func (g *Group) Reduce(other *Group) bool {
	if g == other {
		return true
	}
	if !g.Equivalent(other) {
		return false
	}
	other.id.Store(g.ID())
	return true
}

func (g *Group) String() string {
	return fmt.Sprintf("group %d [%s]", g.ID(), strings.Join(g.Names(), ", "))
}

// FlowClass is one class of a Group. The zero value belongs to no group.
type FlowClass struct {
	id    int
	name  string
	group *Group
}

// ID returns the local id within the group.
func (c FlowClass) ID() int {
	return c.id
}

// Name returns the class name.
func (c FlowClass) Name() string {
	return c.name
}

// GroupID returns the id of the owning group, or 0 for the zero value.
func (c FlowClass) GroupID() int64 {
	if c.group == nil {
		return 0
	}
	return c.group.ID()
}

// Equal reports whether both classes have the same local and group id.
func (c FlowClass) Equal(o FlowClass) bool {
	return c.group != nil && o.group != nil && c.id == o.id && c.GroupID() == o.GroupID()
}

func (c FlowClass) String() string {
	return c.name
}
