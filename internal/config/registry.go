package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pronunciapa/pronunciapa/pkg/plugin"
)

// ErrPluginNotRegistered is returned by Create* methods when no factory has
// been registered under the requested plugin name.
var ErrPluginNotRegistered = errors.New("config: plugin not registered")

// Registry maps plugin names to their constructor functions for each
// capability category. It is safe for concurrent use. Registration normally
// happens once at process start; the RWMutex keeps later reads uncontended.
type Registry struct {
	mu           sync.RWMutex
	asr          map[string]func(BackendEntry) (plugin.ASR, error)
	textref      map[string]func(Entry) (plugin.TextRef, error)
	comparator   map[string]func(ComparatorEntry) (plugin.Comparator, error)
	preprocessor map[string]func(Entry) (plugin.Preprocessor, error)
	llm          map[string]func(Entry) (plugin.LLM, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:          make(map[string]func(BackendEntry) (plugin.ASR, error)),
		textref:      make(map[string]func(Entry) (plugin.TextRef, error)),
		comparator:   make(map[string]func(ComparatorEntry) (plugin.Comparator, error)),
		preprocessor: make(map[string]func(Entry) (plugin.Preprocessor, error)),
		llm:          make(map[string]func(Entry) (plugin.LLM, error)),
	}
}

// RegisterASR registers an ASR backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory func(BackendEntry) (plugin.ASR, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterTextRef registers a TextRef provider factory under name.
func (r *Registry) RegisterTextRef(name string, factory func(Entry) (plugin.TextRef, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textref[name] = factory
}

// RegisterComparator registers a comparator factory under name.
func (r *Registry) RegisterComparator(name string, factory func(ComparatorEntry) (plugin.Comparator, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comparator[name] = factory
}

// RegisterPreprocessor registers a preprocessor factory under name.
func (r *Registry) RegisterPreprocessor(name string, factory func(Entry) (plugin.Preprocessor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preprocessor[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(Entry) (plugin.LLM, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateASR instantiates an ASR backend using the factory registered under
// entry.Name. Returns [ErrPluginNotRegistered] if none exists.
func (r *Registry) CreateASR(entry BackendEntry) (plugin.ASR, error) {
	r.mu.RLock()
	factory, ok := r.asr[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrPluginNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTextRef instantiates a TextRef provider using the factory registered
// under entry.Name.
func (r *Registry) CreateTextRef(entry Entry) (plugin.TextRef, error) {
	r.mu.RLock()
	factory, ok := r.textref[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: textref/%q", ErrPluginNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateComparator instantiates a comparator using the factory registered
// under entry.Name.
func (r *Registry) CreateComparator(entry ComparatorEntry) (plugin.Comparator, error) {
	r.mu.RLock()
	factory, ok := r.comparator[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: comparator/%q", ErrPluginNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePreprocessor instantiates a preprocessor using the factory
// registered under entry.Name.
func (r *Registry) CreatePreprocessor(entry Entry) (plugin.Preprocessor, error) {
	r.mu.RLock()
	factory, ok := r.preprocessor[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: preprocessor/%q", ErrPluginNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name.
func (r *Registry) CreateLLM(entry Entry) (plugin.LLM, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrPluginNotRegistered, entry.Name)
	}
	return factory(entry)
}
