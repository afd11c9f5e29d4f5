package classify

import (
	"fmt"

	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"
)

// Classifier labels flows with classes of its own group.
type Classifier interface {
	// Classes returns the group every result of Classify belongs to.
	Classes() *Group
	// Classify labels a flow.
	Classify(flow *model.Flow) FlowClass
}

// ValidateClassify runs c on flow and checks that the result belongs to c's
// group and is named. A panicking classifier, a foreign class or an empty
// name is a classification fault.
func ValidateClassify(c Classifier, flow *model.Flow) (class FlowClass, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.Errorf(fault.KindClassification, "classifier panicked on flow %s: %v", flow, r)
		}
	}()

	class = c.Classify(flow)
	if class.GroupID() != c.Classes().ID() {
		return FlowClass{}, fault.Errorf(fault.KindClassification,
			"classifier returned class '%s' of group %d, want group %d", class.Name(), class.GroupID(), c.Classes().ID())
	}
	if class.Name() == "" {
		return FlowClass{}, fault.Errorf(fault.KindClassification, "classifier returned unnamed class %d", class.ID())
	}
	return class, nil
}

// Func adapts a function to the Classifier interface.
type Func struct {
	group *Group
	fn    func(*model.Flow) FlowClass
}

// NewFunc creates a classifier whose results come from fn.
func NewFunc(group *Group, fn func(*model.Flow) FlowClass) *Func {
	return &Func{group: group, fn: fn}
}

// Classes implements Classifier.
func (f *Func) Classes() *Group {
	return f.group
}

// Classify implements Classifier.
func (f *Func) Classify(flow *model.Flow) FlowClass {
	return f.fn(flow)
}

func (f *Func) String() string {
	return fmt.Sprintf("func classifier over %s", f.group)
}
