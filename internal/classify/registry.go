package classify

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a classifier instance.
type Factory func() (Classifier, error)

var (
	registryMu sync.RWMutex
	// registry holds the mapping of classifier names to their factories.
	registry = make(map[string]Factory)
)

// Register makes a classifier available under name. Registering a name
// twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("classifier '%s' already registered", name))
	}
	registry[name] = factory
}

// New creates the classifier registered under name.
func New(name string) (Classifier, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown classifier: '%s'", name)
	}

	c, err := factory()
	if err != nil {
		return nil, fmt.Errorf("error creating classifier '%s': %w", name, err)
	}
	return c, nil
}

// Names lists the registered classifiers in alphabetical order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
