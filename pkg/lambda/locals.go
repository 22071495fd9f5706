package lambda

import (
	"fmt"
	"sync"
)

// Locals is a key/value bag middleware uses to pass values down the chain
type Locals struct {
	mu     sync.RWMutex
	values map[string]any
}

// Set stores value under key
func (l *Locals) Set(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.values == nil {
		l.values = make(map[string]any)
	}
	l.values[key] = value
}

// Get returns the value stored under key
func (l *Locals) Get(key string) (value any, exists bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	value, exists = l.values[key]
	return
}

// MustGet returns the value stored under key and panics if there is none
func (l *Locals) MustGet(key string) any {
	if value, exists := l.Get(key); exists {
		return value
	}
	panic(fmt.Sprintf("key %q does not exist", key))
}

// GetString returns the value stored under key if it is a string
func (l *Locals) GetString(key string) (s string) {
	if value, ok := l.Get(key); ok && value != nil {
		s, _ = value.(string)
	}
	return
}

// GetStringSlice returns the value stored under key if it is a []string
func (l *Locals) GetStringSlice(key string) (ss []string) {
	if value, ok := l.Get(key); ok && value != nil {
		ss, _ = value.([]string)
	}
	return
}

// Delete removes key
func (l *Locals) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.values, key)
}
