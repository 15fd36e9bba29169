package filtering

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/profile-matcher/internal/logger"
	"github.com/spigell/profile-matcher/internal/profile"
)

type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

type excludeIDsFilter struct {
	toggle
	ids    []string
	logger *zap.Logger
}

// NewExcludeIDs creates a filter that removes profiles with the given ids.
func NewExcludeIDs(ids []string, log *zap.Logger) Filter {
	return &excludeIDsFilter{ids: ids, logger: logger.WithFields(log)}
}

func (f *excludeIDsFilter) Name() string { return "exclude_ids" }

func (f *excludeIDsFilter) Apply(_ context.Context, profiles []*profile.Profile) ([]*profile.Profile, Step, error) {
	initial := len(profiles)
	if len(f.ids) == 0 {
		return profiles, Step{Initial: initial, Left: initial}, nil
	}

	set := toSet(f.ids)
	left, dropped := exclude(profiles, func(p *profile.Profile) bool {
		_, ok := set[p.ID]
		return ok
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding profiles by id",
			zap.Strings("excluded_profiles", dropped),
			zap.Int("profiles_left", len(left)),
		)
	}

	return left, Step{Initial: initial, Dropped: len(dropped), Left: len(left)}, nil
}

func (f *excludeIDsFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"ids": strings.Join(f.ids, ",")},
	}
}

type excludeFileFilter struct {
	toggle
	path   string
	logger *zap.Logger
}

// NewExcludeFile creates a filter that removes profiles listed in a YAML file
// holding a sequence of profile ids.
func NewExcludeFile(path string, log *zap.Logger) Filter {
	return &excludeFileFilter{path: strings.TrimSpace(path), logger: logger.WithFields(log)}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Apply(_ context.Context, profiles []*profile.Profile) ([]*profile.Profile, Step, error) {
	initial := len(profiles)
	if f.path == "" {
		return profiles, Step{Initial: initial, Left: initial}, nil
	}

	ids, err := readExcludeFile(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("getting excluded profiles from file: %w", err)
	}

	set := toSet(ids)
	left, dropped := exclude(profiles, func(p *profile.Profile) bool {
		_, ok := set[p.ID]
		return ok
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding profiles based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_profiles", dropped),
			zap.Int("profiles_left", len(left)),
		)
	}

	return left, Step{Initial: initial, Dropped: len(dropped), Left: len(left)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

// readExcludeFile returns the ids stored in path. A missing file means nothing is excluded.
func readExcludeFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	if err := yaml.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return ids, nil
}

type unansweredFilter struct {
	toggle
	criteria *profile.Criteria
	logger   *zap.Logger
}

// NewUnanswered creates a filter that removes profiles answering none of the
// criteria questions, unless their match set still matches (dont-care criteria).
func NewUnanswered(criteria *profile.Criteria, log *zap.Logger) Filter {
	return &unansweredFilter{criteria: criteria, logger: logger.WithFields(log)}
}

func (f *unansweredFilter) Name() string { return "unanswered" }

func (f *unansweredFilter) Apply(_ context.Context, profiles []*profile.Profile) ([]*profile.Profile, Step, error) {
	initial := len(profiles)

	questions := make(map[string]struct{}, f.criteria.Len())
	for _, c := range f.criteria.Items() {
		if c.Answer != nil {
			questions[c.Answer.QuestionText()] = struct{}{}
		}
	}

	left, dropped := exclude(profiles, func(p *profile.Profile) bool {
		for text := range p.Answers() {
			if _, ok := questions[text]; ok {
				return false
			}
		}
		return !p.MatchSet(f.criteria).Matches()
	})
	if len(dropped) > 0 {
		f.logger.Debug("excluding profiles without relevant answers",
			zap.Strings("excluded_profiles", dropped),
			zap.Int("profiles_left", len(left)),
		)
	}

	return left, Step{Initial: initial, Dropped: len(dropped), Left: len(left)}, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
