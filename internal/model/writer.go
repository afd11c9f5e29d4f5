package model

// Writer defines a generic interface for persisting classified flows.
type Writer interface {
	// Write takes one classified flow and persists it.
	Write(rec ClassifiedFlow) error

	// Close flushes anything buffered and releases the underlying store.
	Close() error
}
