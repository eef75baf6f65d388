package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/go-go-golems/jarvis/cmd/jarvis/cmds"
	"github.com/go-go-golems/jarvis/pkg/doc"
	"github.com/go-go-golems/jarvis/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:     "jarvis",
	Short:   "jarvis is a multimodal assistant that orchestrates Gemini capabilities",
	Version: version.Get().Short(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		return initLogger()
	},
	SilenceUsage: true,
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() error {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}
	return InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	var logWriter io.Writer
	if config.LogFormat == "json" {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}
	log.Logger = log.Output(logWriter)

	if config.Level == "" {
		config.Level = "info"
	}
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", config.Level)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func initConfig(configPath string) error {
	viper.SetEnvPrefix("jarvis")
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.jarvis")
		viper.AddConfigPath("/etc/jarvis")
		if xdgConfigPath, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(xdgConfigPath + "/jarvis")
		}
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return errors.Wrap(err, "read config")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// the usual variable of the Gemini tooling is honoured as well
	if err := viper.BindEnv("gemini-api-key", "JARVIS_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return err
	}
	if err := viper.BindEnv("openai-api-key", "JARVIS_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return err
	}

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}
	if err := initLogger(); err != nil {
		return err
	}
	log.Debug().Str("config", viper.ConfigFileUsed()).Msg("Loaded configuration")
	return nil
}

func main() {
	pf := rootCmd.PersistentFlags()
	pf.Bool("with-caller", false, "Log caller")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Also write logs to this file, rotated")
	pf.Bool("verbose", false, "Verbose output")
	pf.String("config", "", "Path to config file (default ./config.yaml or ~/.jarvis/config.yaml)")

	pf.String("gemini-api-key", "", "Gemini API key")
	pf.String("gemini-base-url", "", "Gemini API base URL")
	pf.String("openai-api-key", "", "OpenAI API key, for the openai orchestrator")
	pf.String("openai-base-url", "", "OpenAI compatible API base URL")
	pf.String("ai-api-type", "", "Orchestrator provider (gemini, openai)")
	pf.String("ai-engine", "", "Orchestrator model")
	pf.String("db", "", "SQLite database file (default ~/.jarvis/jarvis.db)")
	pf.StringSlice("capabilities", nil, "Glob patterns of the capabilities offered to the model (default all)")
	pf.Bool("rules", true, "Answer from learned rules before running the model")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" && len(os.Args) > idx+1 {
			configFile = os.Args[idx+1]
		} else if v, ok := strings.CutPrefix(arg, "--config="); ok {
			configFile = v
		}
	}
	cobra.CheckErr(initConfig(configFile))

	helpSystem := help.NewHelpSystem()
	cobra.CheckErr(doc.AddDocToHelpSystem(helpSystem))
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	rootCmd.AddCommand(
		cmds.NewServeCommand(),
		cmds.NewChatCommand(),
		cmds.NewLiveCommand(),
		cmds.NewCatalogCobraCommand(),
		cmds.NewConversationsCommand(),
		cmds.NewTeachCommand(),
		cmds.NewVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
