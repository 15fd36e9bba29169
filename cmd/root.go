package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/profile-matcher/internal/profile"
)

const (
	app = "profile-matcher"

	WaitModePoll  = "poll"
	WaitModeBlock = "block"
)

type Config struct {
	ProfilesFile string                  `mapstructure:"profiles-file" validate:"required"`
	PoolSize     int                     `mapstructure:"pool-size" validate:"gte=0,lte=256"`
	Criteria     []profile.CriterionSpec `mapstructure:"criteria" validate:"required,min=1"`
	Wait         *WaitConfig             `mapstructure:"wait"`
	Exclude      *ExcludeConfig          `mapstructure:"exclude"`
	MetricsFile  string                  `mapstructure:"metrics-file"`
	Tracing      bool                    `mapstructure:"tracing"`
	AI           *AIConfig               `mapstructure:"ai"`
}

type WaitConfig struct {
	Mode         string        `mapstructure:"mode" validate:"omitempty,oneof=poll block"`
	PollInterval time.Duration `mapstructure:"poll-interval" validate:"gte=0"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type ExcludeConfig struct {
	Profiles []string `mapstructure:"profiles"`
	File     string   `mapstructure:"file"`
}

type AIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MinimumFitScore float64       `mapstructure:"minimum-fit-score" validate:"gte=0,lte=10"`
	Gemini          *GeminiConfig `mapstructure:"gemini" validate:"required_if=Enabled true"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length" validate:"gte=0"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "profile-matcher scores a set of profiles against weighted criteria and reports the matches",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is profile-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	viper.SetDefault("wait.mode", WaitModeBlock)
	viper.SetDefault("wait.poll-interval", 50*time.Millisecond)
	viper.SetDefault("wait.timeout", time.Minute)
}

func initConfig() {
	// Config needed only for match command now. If there is no config, we can skip initialization
	if matchCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if config == nil {
		return nil, fmt.Errorf("config is empty")
	}

	if config.Wait == nil {
		config.Wait = &WaitConfig{}
	}
	if config.Wait.Mode == "" {
		config.Wait.Mode = WaitModeBlock
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return config, nil
}
