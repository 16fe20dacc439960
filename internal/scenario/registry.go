package scenario

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Constructor builds a fresh Scenario.
type Constructor func() *Scenario

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{}
)

// Register registers a named scenario constructor. Name is lower-cased
// internally. Registering the same name again overwrites the previous
// constructor.
func Register(name string, ctor Constructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// Lookup builds the named scenario. It returns an error if the name has not
// been registered.
func Lookup(name string) (*Scenario, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	mu.RLock()
	ctor, ok := registry[key]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scenario %q not registered: available scenarios=%v", key, Names())
	}
	sc := ctor()
	if sc == nil {
		return nil, fmt.Errorf("scenario %q constructor returned nil", key)
	}
	return sc, nil
}

// Names returns the registered scenario names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
