package voice

import (
	"sort"
	"sync"
)

// Registry tracks the known voices and the active one. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	voices  map[string]*Voice
	current *Voice
}

// NewRegistry returns a registry holding the built-in voice as current.
func NewRegistry() *Registry {
	def := Default()
	return &Registry{
		voices:  map[string]*Voice{def.Name: def},
		current: def,
	}
}

// Register adds or replaces a voice. Replacing the active voice keeps it
// active under its new definition.
func (r *Registry) Register(v *Voice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voices[v.Name] = v
	if r.current != nil && r.current.Name == v.Name {
		r.current = v
	}
}

// Current returns the active voice.
func (r *Registry) Current() *Voice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SetCurrent activates name and reports whether it was known. Unknown names
// leave the active voice untouched.
func (r *Registry) SetCurrent(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.voices[name]
	if !ok {
		return false
	}
	r.current = v
	return true
}

// Get looks a voice up by name.
func (r *Registry) Get(name string) (*Voice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.voices[name]
	return v, ok
}

// Names lists registered voices alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.voices))
	for name := range r.voices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
