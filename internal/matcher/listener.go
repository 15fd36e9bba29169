package matcher

import (
	"sync"

	"github.com/spigell/profile-matcher/internal/profile"
)

// Listener is notified once per positive match.
// FoundMatch may be called from several workers at the same time.
type Listener interface {
	FoundMatch(p *profile.Profile, set *profile.MatchSet)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(p *profile.Profile, set *profile.MatchSet)

func (f ListenerFunc) FoundMatch(p *profile.Profile, set *profile.MatchSet) {
	f(p, set)
}

// Match is a recorded listener notification.
type Match struct {
	Profile *profile.Profile
	Set     *profile.MatchSet
}

// Recorder is a Listener that keeps every match in arrival order.
type Recorder struct {
	mu      sync.Mutex
	matches []Match
}

func (r *Recorder) FoundMatch(p *profile.Profile, set *profile.MatchSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, Match{Profile: p, Set: set})
}

func (r *Recorder) Matches() []Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Match(nil), r.matches...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}
