package observability

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Factory builds the observer of one hub. logger is the hub's configured
// logger and may be nil.
type Factory func(logger *slog.Logger) Observer

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{
		"noop": func(*slog.Logger) Observer { return NoOpObserver{} },
		"slog": func(logger *slog.Logger) Observer { return NewSlogObserver(logger) },
	}
)

// GetObserver builds the observer a hub configuration names. "slog" logs
// through logger and "noop" discards every event.
func GetObserver(name string, logger *slog.Logger) (Observer, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown observer %q (registered: %s)", name, strings.Join(Observers(), ", "))
	}
	return factory(logger), nil
}

// RegisterFactory makes name available to hub configuration, replacing any
// earlier registration.
func RegisterFactory(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// RegisterObserver shares one observer between every hub that names it, such
// as a Recorder collecting events from several hubs.
func RegisterObserver(name string, observer Observer) {
	RegisterFactory(name, func(*slog.Logger) Observer { return observer })
}

// Observers lists the registered names in sorted order.
func Observers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}
