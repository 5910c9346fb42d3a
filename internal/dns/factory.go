package dns

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
)

// Factory is a constructor function that providers register to create themselves.
// name is the configured instance name, settings the provider-specific options.
type Factory func(log logr.Logger, name string, settings map[string]string) (Provider, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by provider packages in their init() to self-register.
func Register(providerType string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[providerType]; exists {
		panic(fmt.Sprintf("dns: provider %q already registered", providerType))
	}
	factories[providerType] = f
}

// RegisteredTypes returns the sorted names of all registered provider types.
func RegisteredTypes() []string {
	mu.Lock()
	defer mu.Unlock()
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewProvider looks up the provider type in the registry and creates an
// instance called name.
func NewProvider(providerType, name string, log logr.Logger, settings map[string]string) (Provider, error) {
	mu.Lock()
	f, ok := factories[providerType]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported DNS provider: %q (registered: %v)", providerType, RegisteredTypes())
	}
	return f(log, name, settings)
}
