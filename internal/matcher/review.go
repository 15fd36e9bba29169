package matcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/profile-matcher/internal/ai"
	"github.com/spigell/profile-matcher/internal/logger"
	"github.com/spigell/profile-matcher/internal/profile"
)

// ReviewedProcess returns a ProcessFunc that asks reviewer about every matching set
// and notifies the listener only about the ones the reviewer considers a fit.
// A reviewer error fails the task.
func (m *Matcher) ReviewedProcess(reviewer ai.Reviewer) ProcessFunc {
	return func(ctx context.Context, listener Listener, set *profile.MatchSet) error {
		if !set.Matches() {
			return nil
		}

		p, err := m.registry.Resolve(set.ProfileID())
		if err != nil {
			return fmt.Errorf("reviewing match: %w", err)
		}

		assessment, err := reviewer.Review(ctx, p, set)
		if err != nil {
			return fmt.Errorf("reviewing profile %s: %w", p.ID, err)
		}
		if assessment == nil {
			return fmt.Errorf("reviewing profile %s: empty assessment", p.ID)
		}

		if !assessment.Fit {
			m.logger.Info("match rejected by reviewer",
				logger.ProfileField(p.ID),
				zap.Float64("review_score", assessment.Score),
				zap.String("reason", assessment.Reason),
			)
			return nil
		}

		m.logger.Debug("match approved by reviewer",
			logger.ProfileField(p.ID),
			zap.Float64("review_score", assessment.Score),
		)
		listener.FoundMatch(p, set)
		m.metrics.MatchesFound.Inc()
		return nil
	}
}
