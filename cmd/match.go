package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/profile-matcher/internal/ai/gemini"
	"github.com/spigell/profile-matcher/internal/filtering"
	"github.com/spigell/profile-matcher/internal/logger"
	"github.com/spigell/profile-matcher/internal/matcher"
	"github.com/spigell/profile-matcher/internal/metrics"
	"github.com/spigell/profile-matcher/internal/profile"
	"github.com/spigell/profile-matcher/internal/secrets"
	"github.com/spigell/profile-matcher/internal/tracing"
	"github.com/spigell/profile-matcher/internal/utils"
)

const (
	PromptReport        = "Report matches"
	PromptMatchesToFile = "Dump matches to file"
	PromptExit          = "Exit"

	metricsNamespace = "profile_matcher"
	geminiKeyEnv     = "GEMINI_API_KEY"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptReport, PromptMatchesToFile, PromptExit},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match the profiles from the profiles file against the configured criteria",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("profiles", "p", "", "profiles document (overrides profiles-file)")
	matchCmd.Flags().BoolP("auto-approve", "y", false, "do not ask what to do with the found matches, just report them")
	matchCmd.Flags().StringP("exclude-file", "e", "", "file with profile ids to exclude. Default is unset.")
	matchCmd.Flags().Bool("keep-unanswered", false, "do not drop profiles answering none of the criteria questions")

	viper.BindPFlag("profiles-file", matchCmd.Flags().Lookup("profiles"))
	viper.BindPFlag("exclude.file", matchCmd.Flags().Lookup("exclude-file"))
}

// matchReport is a found match prepared for output.
type matchReport struct {
	ProfileID string   `json:"profile_id"`
	Score     int64    `json:"score"`
	Answers   []string `json:"answers"`
}

// match is the main command for the cli.
func match(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the profile-matcher", zap.String("version", resolveVersion()))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config.Tracing {
		shutdown, err := tracing.Init(app, os.Stderr)
		if err != nil {
			logger.Fatal("initializing tracing", zap.Error(err))
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				logger.Warn("flushing traces", zap.Error(err))
			}
		}()
	}

	doc, err := profile.LoadDocument(config.ProfilesFile)
	if err != nil {
		logger.Fatal("loading profiles", zap.Error(err), zap.String("file", config.ProfilesFile))
	}

	profiles, err := doc.BuildProfiles()
	if err != nil {
		logger.Fatal("building profiles", zap.Error(err))
	}

	criteria, err := doc.Criteria(config.Criteria)
	if err != nil {
		logger.Fatal("building criteria", zap.Error(err))
	}

	filters := prepareFilters(cmd, config, criteria, logger)
	for _, status := range filters.Describe() {
		logger.Debug("filter status",
			zap.String("name", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
			zap.Any("details", status.Details),
		)
	}

	profiles, err = filters.RunFilters(ctx, profiles)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	if len(profiles) == 0 {
		logger.Info("exiting", zap.String("reason", "no profiles left after filters"))
		return
	}

	m := metrics.New(metricsNamespace)
	pm := matcher.New(matcher.Options{
		PoolSize: config.PoolSize,
		Logger:   logger,
		Metrics:  m,
	})
	for _, p := range profiles {
		pm.Add(p)
	}

	logger.Info("profiles registered",
		zap.Int("count", pm.Registry().Len()),
		zap.Int("criteria", criteria.Len()),
	)
	logger.Debug("registered profile ids", zap.Strings("ids", pm.Registry().IDs()))

	process, err := prepareProcess(ctx, pm, config.AI, logger)
	if err != nil {
		logger.Fatal("preparing ai review", zap.Error(err))
	}

	recorder := &matcher.Recorder{}
	sets := pm.CollectMatchSets(criteria)
	if err := pm.FindMatchesWith(ctx, criteria, recorder, sets, process); err != nil {
		logger.Fatal("starting the matching pass", zap.Error(err))
	}

	if err := waitForPass(ctx, pm, config.Wait); err != nil {
		logger.Fatal("waiting for the matching pass",
			zap.Error(err),
			zap.Int("pending", pm.Pool().Pending()),
			zap.String("hint", "increase wait.timeout"),
		)
	}

	if err := pm.Pool().Err(); err != nil {
		logger.Warn("some profiles failed", zap.Int("count", len(pm.Pool().Faults())), zap.Error(err))
	}

	if config.MetricsFile != "" {
		if err := m.WriteToFile(config.MetricsFile); err != nil {
			logger.Warn("writing metrics", zap.Error(err), zap.String("file", config.MetricsFile))
		}
	}

	reports := buildReports(recorder.Matches())
	if len(reports) == 0 {
		logger.Info("exiting", zap.String("reason", "no matches found"))
		return
	}

	if cmd.Flag("auto-approve").Value.String() == "true" {
		reportMatches(logger, reports)
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		logger.Info("current list of matches", zap.Int("count", len(reports)))

		if err := handleAction(action, logger, reports); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(action string, logger *zap.Logger, reports []matchReport) error {
	switch action {
	case PromptReport:
		reportMatches(logger, reports)
		return nil
	case PromptMatchesToFile:
		p := promptui.Prompt{Label: "File"}
		file, err := p.Run()
		if err != nil {
			return err
		}
		if err := dumpMatches(file, reports); err != nil {
			return err
		}
		logger.Info("matches dumped", zap.String("file", file), zap.Int("count", len(reports)))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func prepareFilters(cmd *cobra.Command, config *Config, criteria *profile.Criteria, logger *zap.Logger) *filtering.Filtering {
	exclude := config.Exclude
	if exclude == nil {
		exclude = &ExcludeConfig{}
	}

	unanswered := filtering.NewUnanswered(criteria, logger)
	if cmd != nil {
		if flag := cmd.Flag("keep-unanswered"); flag != nil && flag.Value.String() == "true" {
			unanswered.Disable("keep-unanswered flag is set")
		}
	}

	steps := []filtering.Filter{
		filtering.NewExcludeIDs(exclude.Profiles, logger),
		filtering.NewExcludeFile(exclude.File, logger),
		unanswered,
	}

	return filtering.New(steps, logger)
}

func prepareProcess(ctx context.Context, pm *matcher.Matcher, cfg *AIConfig, logger *zap.Logger) (matcher.ProcessFunc, error) {
	if cfg == nil || !cfg.Enabled {
		return pm.Process, nil
	}

	if cfg.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when ai review is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   geminiKeyEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or %s)", err, geminiKeyEnv)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}

	reviewLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", generator.Model()),
		zap.Float64("minimum_fit_score", cfg.MinimumFitScore),
	)

	reviewer := gemini.NewReviewer(generator, cfg.MinimumFitScore, cfg.Gemini.MaxLogLength, reviewLogger)
	return pm.ReviewedProcess(reviewer), nil
}

// waitForPass blocks until the pool terminates or the configured timeout expires.
func waitForPass(ctx context.Context, pm *matcher.Matcher, cfg *WaitConfig) error {
	if cfg == nil {
		cfg = &WaitConfig{Mode: WaitModeBlock}
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	switch cfg.Mode {
	case WaitModePoll:
		return utils.Poll(ctx, cfg.PollInterval, pm.Pool().IsTerminated)
	case WaitModeBlock, "":
		return pm.Pool().Wait(ctx)
	default:
		return fmt.Errorf("unknown wait mode %q", cfg.Mode)
	}
}

// buildReports orders matches by score, highest first.
func buildReports(matches []matcher.Match) []matchReport {
	reports := make([]matchReport, 0, len(matches))
	for _, found := range matches {
		answers := make([]string, 0)
		for _, answer := range found.Profile.Answers() {
			answers = append(answers, answer.String())
		}
		sort.Strings(answers)

		reports = append(reports, matchReport{
			ProfileID: found.Profile.ID,
			Score:     found.Set.Score(),
			Answers:   answers,
		})
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].Score != reports[j].Score {
			return reports[i].Score > reports[j].Score
		}
		return reports[i].ProfileID < reports[j].ProfileID
	})
	return reports
}

func reportMatches(log *zap.Logger, reports []matchReport) {
	for _, r := range reports {
		log.Info("match",
			logger.ProfileField(r.ProfileID),
			zap.Int64("score", r.Score),
			zap.String("answers", strings.Join(r.Answers, "; ")),
		)
	}
}

func dumpMatches(file string, reports []matchReport) error {
	file = strings.TrimSpace(file)
	if file == "" {
		return fmt.Errorf("file name is required")
	}

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(file, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing matches: %w", err)
	}
	return nil
}
