package matcher

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spigell/profile-matcher/internal/profile"
)

// ErrUnknownProfile means a match set refers to a profile the registry does not hold.
var ErrUnknownProfile = errors.New("unknown profile")

// Registry holds profiles by id. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*profile.Profile
}

func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*profile.Profile)}
}

// Add stores the profile, replacing any profile with the same id.
func (r *Registry) Add(p *profile.Profile) {
	if p == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
}

func (r *Registry) Resolve(id string) (*profile.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, id)
	}
	return p, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// IDs returns the registered ids in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	return ids
}

// each calls fn for every profile while holding the read lock.
func (r *Registry) each(fn func(p *profile.Profile)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.profiles {
		fn(p)
	}
}
