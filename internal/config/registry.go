package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voicebridge-ai/voicebridge/pkg/asr"
	"github.com/voicebridge-ai/voicebridge/pkg/translate"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	asr       map[string]func(ASRConfig) (asr.Engine, error)
	translate map[string]func(ProviderEntry) (translate.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:       make(map[string]func(ASRConfig) (asr.Engine, error)),
		translate: make(map[string]func(ProviderEntry) (translate.Provider, error)),
	}
}

// RegisterASR registers an ASR engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory func(ASRConfig) (asr.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterTranslate registers a translation provider factory under name.
func (r *Registry) RegisterTranslate(name string, factory func(ProviderEntry) (translate.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translate[name] = factory
}

// CreateASR instantiates an ASR engine using the factory registered under
// cfg.Backend. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateASR(cfg ASRConfig) (asr.Engine, error) {
	r.mu.RLock()
	factory, ok := r.asr[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreateTranslate instantiates a translation provider using the factory
// registered under entry.Name.
func (r *Registry) CreateTranslate(entry ProviderEntry) (translate.Provider, error) {
	r.mu.RLock()
	factory, ok := r.translate[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translate/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
