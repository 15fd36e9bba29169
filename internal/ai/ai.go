package ai

import (
	"context"

	"github.com/spigell/profile-matcher/internal/profile"
)

// Assessment is the verdict of a reviewer on a single match set.
type Assessment struct {
	Fit    bool
	Score  float64
	Reason string
	Raw    string
}

// Reviewer gives a second opinion on a profile that already satisfies the criteria.
type Reviewer interface {
	Review(ctx context.Context, p *profile.Profile, set *profile.MatchSet) (*Assessment, error)
}

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, p *profile.Profile, set *profile.MatchSet) (*Assessment, error)

func (f ReviewerFunc) Review(ctx context.Context, p *profile.Profile, set *profile.MatchSet) (*Assessment, error) {
	return f(ctx, p, set)
}
