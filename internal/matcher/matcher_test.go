package matcher

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spigell/profile-matcher/internal/pool"
	"github.com/spigell/profile-matcher/internal/profile"
)

type mockListener struct {
	mock.Mock
}

func (l *mockListener) FoundMatch(p *profile.Profile, set *profile.MatchSet) {
	l.Called(p, set)
}

type fixture struct {
	question    *profile.BooleanQuestion
	criteria    *profile.Criteria
	matching    *profile.Profile
	nonMatching *profile.Profile
	matcher     *Matcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	q := profile.NewBooleanQuestion(1, "Relocation package?")
	f := &fixture{
		question: q,
		criteria: profile.NewCriteria(profile.NewCriterion(profile.NewAnswer(q, profile.True), profile.MustMatch)),
		matcher:  New(Options{}),
	}
	f.matching = f.profile("matching", profile.True)
	f.nonMatching = f.profile("nonMatching", profile.False)
	return f
}

func (f *fixture) profile(id string, value int) *profile.Profile {
	p := profile.New(id)
	p.Add(profile.NewAnswer(f.question, value))
	return p
}

func waitForPool(t *testing.T, m *Matcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Pool().Wait(ctx))
}

func createMatchSets(count int) []*profile.MatchSet {
	sets := make([]*profile.MatchSet, 0, count)
	for i := 0; i < count; i++ {
		sets = append(sets, profile.NewMatchSet(strconv.Itoa(i), nil, nil))
	}
	return sets
}

func TestCollectMatchSets(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.matching)
	f.matcher.Add(f.nonMatching)

	sets := f.matcher.CollectMatchSets(f.criteria)

	ids := make([]string, 0, len(sets))
	for _, set := range sets {
		ids = append(ids, set.ProfileID())
	}
	assert.ElementsMatch(t, []string{"matching", "nonMatching"}, ids)
}

func TestCollectMatchSetsEmptyRegistry(t *testing.T) {
	f := newFixture(t)

	sets := f.matcher.CollectMatchSets(f.criteria)
	require.NotNil(t, sets)
	assert.Empty(t, sets)
}

func TestProcessNotifiesListenerOnMatch(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.matching)
	set := f.matching.MatchSet(f.criteria)

	listener := &mockListener{}
	listener.On("FoundMatch", f.matching, set).Once()

	require.NoError(t, f.matcher.Process(context.Background(), listener, set))

	listener.AssertExpectations(t)
}

func TestProcessDoesNotNotifyListenerWhenNoMatch(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.nonMatching)
	set := f.nonMatching.MatchSet(f.criteria)

	listener := &mockListener{}

	require.NoError(t, f.matcher.Process(context.Background(), listener, set))

	listener.AssertNotCalled(t, "FoundMatch", mock.Anything, mock.Anything)
}

func TestProcessFailsForUnknownProfile(t *testing.T) {
	f := newFixture(t)
	set := f.matching.MatchSet(f.criteria)

	err := f.matcher.Process(context.Background(), &Recorder{}, set)
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestGathersMatchingProfiles(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	processed := map[string]int{}
	process := func(_ context.Context, _ Listener, set *profile.MatchSet) error {
		mu.Lock()
		defer mu.Unlock()
		processed[set.ProfileID()]++
		return nil
	}

	sets := createMatchSets(100)
	require.NoError(t, f.matcher.FindMatchesWith(context.Background(), f.criteria, &Recorder{}, sets, process))

	for !f.matcher.Pool().IsTerminated() {
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, processed, 100)
	for _, set := range sets {
		assert.Equalf(t, 1, processed[set.ProfileID()], "set %s", set.ProfileID())
	}
}

func TestFindMatchesDoesNotWait(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})

	process := func(context.Context, Listener, *profile.MatchSet) error {
		<-release
		return nil
	}

	require.NoError(t, f.matcher.FindMatchesWith(context.Background(), f.criteria, &Recorder{}, createMatchSets(1000), process))
	assert.False(t, f.matcher.Pool().IsTerminated(), "dispatch must return before the sets are processed")

	close(release)
	waitForPool(t, f.matcher)
}

func TestFindMatchesReportsOnlyMatches(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.matching)
	f.matcher.Add(f.nonMatching)

	recorder := &Recorder{}
	require.NoError(t, f.matcher.FindMatches(context.Background(), f.criteria, recorder))
	waitForPool(t, f.matcher)

	matches := recorder.Matches()
	require.Len(t, matches, 1)
	assert.Same(t, f.matching, matches[0].Profile)
	assert.Equal(t, "matching", matches[0].Set.ProfileID())
	assert.NoError(t, f.matcher.Pool().Err())
}

func TestSecondPassIsRejected(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.matching)

	require.NoError(t, f.matcher.FindMatches(context.Background(), f.criteria, &Recorder{}))
	waitForPool(t, f.matcher)

	err := f.matcher.FindMatches(context.Background(), f.criteria, &Recorder{})
	require.ErrorIs(t, err, ErrPassStarted)
}

func TestFindMatchesRecordsFaults(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.matching)

	// the second set refers to a profile that was never registered
	sets := []*profile.MatchSet{
		f.matching.MatchSet(f.criteria),
		f.profile("ghost", profile.True).MatchSet(f.criteria),
	}

	recorder := &Recorder{}
	require.NoError(t, f.matcher.FindMatchesWith(context.Background(), f.criteria, recorder, sets, f.matcher.Process))
	waitForPool(t, f.matcher)

	assert.Equal(t, 1, recorder.Len())
	faults := f.matcher.Pool().Faults()
	require.Len(t, faults, 1)
	assert.Equal(t, "ghost", faults[0].TaskID)
	assert.ErrorIs(t, faults[0], ErrUnknownProfile)
}

func TestListenerPanicDoesNotAbortPass(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.matcher.Add(f.profile("p"+strconv.Itoa(i), profile.True))
	}

	var mu sync.Mutex
	calls := 0
	listener := ListenerFunc(func(p *profile.Profile, _ *profile.MatchSet) {
		mu.Lock()
		calls++
		mu.Unlock()
		if p.ID == "p3" {
			panic("listener exploded")
		}
	})

	require.NoError(t, f.matcher.FindMatches(context.Background(), f.criteria, listener))
	waitForPool(t, f.matcher)

	assert.Equal(t, 10, calls)
	require.Len(t, f.matcher.Pool().Faults(), 1)
	assert.Equal(t, "p3", f.matcher.Pool().Faults()[0].TaskID)
}

func TestFindMatchesValidatesArguments(t *testing.T) {
	f := newFixture(t)

	assert.Error(t, f.matcher.FindMatchesWith(context.Background(), f.criteria, nil, nil, f.matcher.Process))
	assert.Error(t, f.matcher.FindMatchesWith(context.Background(), f.criteria, &Recorder{}, nil, nil))

	// invalid calls do not consume the single pass
	require.NoError(t, f.matcher.FindMatches(context.Background(), f.criteria, &Recorder{}))
	waitForPool(t, f.matcher)
}

func TestRejectedPassLeavesNoWorkers(t *testing.T) {
	before := runtime.NumGoroutine()

	for i := 0; i < 50; i++ {
		m := New(Options{})
		require.Error(t, m.FindMatchesWith(context.Background(), profile.NewCriteria(), nil, nil, m.Process))
	}

	assert.LessOrEqual(t, runtime.NumGoroutine(), before+2)
}

func TestFindMatchesOnClosedPool(t *testing.T) {
	f := newFixture(t)
	f.matcher.Add(f.matching)
	require.NoError(t, f.matcher.Pool().CloseSubmissions())

	err := f.matcher.FindMatches(context.Background(), f.criteria, &Recorder{})
	require.ErrorIs(t, err, pool.ErrClosed)

	waitForPool(t, f.matcher)
	assert.True(t, f.matcher.Pool().IsTerminated())
}
