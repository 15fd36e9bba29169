package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/profile-matcher/internal/ai"
	"github.com/spigell/profile-matcher/internal/logger"
	"github.com/spigell/profile-matcher/internal/profile"
	"github.com/spigell/profile-matcher/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

// Reviewer asks Gemini whether a matching profile is a real fit.
type Reviewer struct {
	generator contentGenerator
	minScore  float64
	logger    *zap.Logger
	maxLogLen int
}

func NewReviewer(generator contentGenerator, minScore float64, maxLogLength int, log *zap.Logger) *Reviewer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Reviewer{
		generator: generator,
		minScore:  minScore,
		logger:    logger.WithFields(log),
		maxLogLen: maxLogLength,
	}
}

type answerPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type criterionPayload struct {
	Question string `json:"question"`
	Expected string `json:"expected"`
	Weight   string `json:"weight"`
}

func (r *Reviewer) Review(ctx context.Context, p *profile.Profile, set *profile.MatchSet) (*ai.Assessment, error) {
	if p == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if set == nil {
		return nil, fmt.Errorf("match set is required")
	}

	prompt, err := buildPrompt(p, set)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini generate content request",
		logger.ProfileField(p.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini generate content response",
		logger.ProfileField(p.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	assessment, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	if r.minScore > 0 && assessment.Score < r.minScore {
		r.logger.Debug("set fit to false by score threshold",
			logger.ProfileField(p.ID),
			zap.Float64("score", assessment.Score),
			zap.Float64("threshold", r.minScore),
		)
		assessment.Fit = false
	}

	assessment.Raw = raw
	return assessment, nil
}

func buildPrompt(p *profile.Profile, set *profile.MatchSet) (string, error) {
	answers := make([]answerPayload, 0)
	for _, a := range p.Answers() {
		answers = append(answers, answerPayload{Question: a.QuestionText(), Answer: choiceName(a)})
	}
	// map iteration order is random, keep the prompt stable
	sort.Slice(answers, func(i, j int) bool { return answers[i].Question < answers[j].Question })

	criteria := make([]criterionPayload, 0, set.Criteria().Len())
	for _, c := range set.Criteria().Items() {
		criteria = append(criteria, criterionPayload{
			Question: c.Answer.QuestionText(),
			Expected: choiceName(c.Answer),
			Weight:   c.Weight.String(),
		})
	}

	profileJSON, err := json.MarshalIndent(answers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal profile payload: %w", err)
	}
	criteriaJSON, err := json.MarshalIndent(criteria, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal criteria payload: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Criteria:\n{{CRITERIA_JSON}}\n\nProfile:\n{{PROFILE_JSON}}\n\nScore: {{SCORE}}\n\nJSON Response:"
	}

	prompt := strings.ReplaceAll(template, "{{CRITERIA_JSON}}", string(criteriaJSON))
	prompt = strings.ReplaceAll(prompt, "{{PROFILE_JSON}}", string(profileJSON))
	prompt = strings.ReplaceAll(prompt, "{{SCORE}}", strconv.FormatInt(set.Score(), 10))
	return prompt, nil
}

func choiceName(a *profile.Answer) string {
	if a == nil || a.Question == nil {
		return ""
	}
	choices := a.Question.Choices()
	if a.Value >= 0 && a.Value < len(choices) {
		return choices[a.Value]
	}
	return strconv.Itoa(a.Value)
}

func parseResponse(raw string) (*ai.Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		score = 0
	}

	return &ai.Assessment{
		Fit:    coerceBool(data["fit"]),
		Score:  score,
		Reason: coerceString(data["reason"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
