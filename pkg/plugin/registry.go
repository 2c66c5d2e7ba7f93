package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/wsinspect/internal/core"
)

// InjectorFactory creates a fresh, uninitialized injector.
type InjectorFactory func() Injector

var (
	mu        sync.RWMutex
	injectors = make(map[string]InjectorFactory)
)

// RegisterInjector makes an injector available by name. It fails on duplicates.
func RegisterInjector(name string, factory InjectorFactory) error {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := injectors[name]; exists {
		return fmt.Errorf("injector '%s' already registered", name)
	}
	injectors[name] = factory
	return nil
}

// NewInjector creates and initializes the injector registered under name.
func NewInjector(name string, cfg map[string]any) (Injector, error) {
	mu.RLock()
	factory, exists := injectors[name]
	mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrInjectorNotFound, name)
	}

	inj := factory()
	if err := inj.Init(cfg); err != nil {
		return nil, fmt.Errorf("init injector %s: %w", name, err)
	}
	return inj, nil
}

// InjectorNames lists registered injector names in sorted order.
func InjectorNames() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(injectors))
	for name := range injectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
