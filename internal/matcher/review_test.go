package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/profile-matcher/internal/ai"
	"github.com/spigell/profile-matcher/internal/profile"
)

func TestReviewedProcess(t *testing.T) {
	tests := []struct {
		name        string
		assessment  *ai.Assessment
		reviewErr   error
		wantMatches int
		wantErr     bool
	}{
		{name: "fit", assessment: &ai.Assessment{Fit: true, Score: 8}, wantMatches: 1},
		{name: "rejected", assessment: &ai.Assessment{Fit: false, Score: 2, Reason: "no"}, wantMatches: 0},
		{name: "reviewer error", reviewErr: errors.New("quota"), wantErr: true},
		{name: "empty assessment", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.matcher.Add(f.matching)

			calls := 0
			reviewer := ai.ReviewerFunc(func(_ context.Context, p *profile.Profile, set *profile.MatchSet) (*ai.Assessment, error) {
				calls++
				assert.Same(t, f.matching, p)
				assert.Equal(t, p.ID, set.ProfileID())
				return tt.assessment, tt.reviewErr
			})

			recorder := &Recorder{}
			err := f.matcher.ReviewedProcess(reviewer)(context.Background(), recorder, f.matching.MatchSet(f.criteria))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, 1, calls)
			assert.Equal(t, tt.wantMatches, recorder.Len())
		})
	}
}

func TestReviewedProcessSkipsNonMatches(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.nonMatching)

	reviewer := ai.ReviewerFunc(func(context.Context, *profile.Profile, *profile.MatchSet) (*ai.Assessment, error) {
		t.Fatalf("reviewer must not be called for a non-matching set")
		return nil, nil
	})

	recorder := &Recorder{}
	require.NoError(t, f.matcher.ReviewedProcess(reviewer)(context.Background(), recorder, f.nonMatching.MatchSet(f.criteria)))
	assert.Zero(t, recorder.Len())
}

func TestReviewedProcessInPass(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.matching)
	f.matcher.Add(f.profile("another", profile.True))
	f.matcher.Add(f.nonMatching)

	reviewer := ai.ReviewerFunc(func(_ context.Context, p *profile.Profile, _ *profile.MatchSet) (*ai.Assessment, error) {
		return &ai.Assessment{Fit: p.ID == "another"}, nil
	})

	recorder := &Recorder{}
	sets := f.matcher.CollectMatchSets(f.criteria)
	require.NoError(t, f.matcher.FindMatchesWith(context.Background(), f.criteria, recorder, sets, f.matcher.ReviewedProcess(reviewer)))
	waitForPool(t, f.matcher)

	matches := recorder.Matches()
	require.Len(t, matches, 1)
	assert.Equal(t, "another", matches[0].Profile.ID)
}
