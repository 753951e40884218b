package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pocketllm/internal/config"
)

// cliOptions collects flags shared by every subcommand.
type cliOptions struct {
	configPath string
	addr       string
	modelsDir  string
	dataDir    string
	logLevel   string
}

func buildRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "pocketllm",
		Short:         "Local LLM model downloads and chat over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("POCKETLLM_CONFIG"), "Path to a yaml/json/toml config file")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "HTTP listen address, e.g. :8080")
	root.PersistentFlags().StringVar(&opts.modelsDir, "models-dir", "", "Directory holding downloaded *.gguf artifacts")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Directory for the manifest/session database")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("POCKETLLM_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")

	root.AddCommand(buildServeCmd(opts))
	root.AddCommand(buildModelsCmd(opts))
	root.AddCommand(buildPullCmd(opts))

	root.RunE = func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("pocketllm requires a subcommand: serve|models|pull")
	}
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadConfig merges file config, environment, and flags; flags win.
func loadConfig(opts *cliOptions) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", opts.configPath, err)
		}
		cfg = loaded
	}
	if v := os.Getenv("POCKETLLM_ADDR"); v != "" && cfg.Addr == "" {
		cfg.Addr = v
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.modelsDir != "" {
		cfg.ModelsDir = opts.modelsDir
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	config.ApplyDefaults(&cfg)
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
