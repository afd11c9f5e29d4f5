// Package fault classifies the errors raised while turning packets into
// classified flows.
package fault

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind defines the category of a fault.
type Kind int

const (
	KindUnknown Kind = iota
	// KindParse marks a frame that could not be normalized.
	KindParse
	// KindConsistency marks a corrupted flow table.
	KindConsistency
	// KindClassification marks a classifier that broke its contract.
	KindClassification
	// KindCapture marks a capture source that could not be started or read.
	KindCapture
	// KindInput marks unreadable input files and records.
	KindInput
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindConsistency:
		return "consistency"
	case KindClassification:
		return "classification"
	case KindCapture:
		return "capture"
	case KindInput:
		return "input"
	default:
		return "unknown"
	}
}

// Error is a fault of a given kind. Underlying carries the stack recorded
// when the fault was raised.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s fault: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s fault: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Format prints the stack of the underlying error for %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s fault: %s", e.Kind, e.Message)
			if e.Underlying != nil {
				fmt.Fprintf(s, "\n%+v", e.Underlying)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// New creates a fault of the specified kind with a stack trace attached.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg, Underlying: errors.New(msg)}
}

// Errorf creates a fault of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap wraps err into a fault of the specified kind. Nil stays nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: errors.WithStack(err)}
}

// Wrapf wraps err with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	return Wrap(err, kind, fmt.Sprintf(format, args...))
}

// GetKind returns the kind of the outermost fault in err's chain.
func GetKind(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries a fault of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && GetKind(err) == kind
}

// IsFatal reports whether err must terminate a run. Parse faults are
// recoverable in lenient ingestion, everything else is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch GetKind(err) {
	case KindParse:
		return false
	default:
		return true
	}
}
