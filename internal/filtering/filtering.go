// Package filtering narrows the profile list before a matching pass.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/profile-matcher/internal/logger"
	"github.com/spigell/profile-matcher/internal/profile"
)

// Filter represents a single filtering step applied to profiles.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, profiles []*profile.Profile) ([]*profile.Profile, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

type Filtering struct {
	steps  []Filter
	logger *zap.Logger
}

func New(steps []Filter, log *zap.Logger) *Filtering {
	return &Filtering{steps: steps, logger: logger.WithFields(log)}
}

// RunFilters executes the filters sequentially and returns the profiles left.
func (f *Filtering) RunFilters(ctx context.Context, profiles []*profile.Profile) ([]*profile.Profile, error) {
	for _, step := range f.steps {
		if !step.IsEnabled() {
			f.logger.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, profiles)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		f.logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		profiles = next
	}

	return profiles, nil
}

// Describe returns status entries for the configured filters.
func (f *Filtering) Describe() []Status {
	statuses := make([]Status, 0, len(f.steps))
	for _, step := range f.steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// exclude keeps profiles for which drop returns false and reports the dropped ids.
func exclude(profiles []*profile.Profile, drop func(p *profile.Profile) bool) ([]*profile.Profile, []string) {
	left := make([]*profile.Profile, 0, len(profiles))
	var dropped []string
	for _, p := range profiles {
		if drop(p) {
			dropped = append(dropped, p.ID)
			continue
		}
		left = append(left, p)
	}
	return left, dropped
}
