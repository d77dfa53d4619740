package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/backupsync/internal/config"
	"github.com/openmined/backupsync/internal/utils"
	"github.com/openmined/backupsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "BACKUPSYNC"

// keys that may come from the environment as BACKUPSYNC_<KEY>
var configKeys = []string{
	"directories_paths",
	"backup_directory_path",
	"interval_in_seconds",
	"language_path",
	"database_path",
	"log_file_path",
	"ignore_patterns",
	"watch",
	"watch_debounce_ms",
	"hash_cache_size",
	"max_concurrent_workers",
	"min_free_bytes",
	"prune_dangling_records",
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backupsync",
		Short:   "Mirror source directories into a backup directory",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			cmd.SilenceUsage = true

			closeLog, err := setupLogging(cfg.LogFilePath)
			if err != nil {
				return err
			}
			defer closeLog()

			slog.Info("backupsync", "version", version.Short(), "config", cfg.Path)
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().IntP("interval", "i", config.DefaultInterval, "Seconds between backup cycles")
	cmd.Flags().String("db", config.DefaultDatabasePath, "Metadata database file")
	cmd.Flags().String("log-file", config.DefaultLogFilePath, "Log file, appended to")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Config file (json or yaml)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	// stdout only until the config names the log file
	slog.SetDefault(slog.New(newStdoutHandler()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newStdoutHandler() slog.Handler {
	return tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
}

// setupLogging sends logs to stdout and appends them to logFile.
func setupLogging(logFile string) (func(), error) {
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is added by the log interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	prev := slog.Default()
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(newStdoutHandler(), fileHandler)))

	return func() {
		slog.SetDefault(prev)
		logInterceptor.Close()
		file.Close()
	}, nil
}

// loadConfig merges, in increasing priority, the config file, .env, the
// environment and explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	configFlag := cmd.Flag("config")
	configFile := configFlag.Value.String()
	if !configFlag.Changed {
		if env := os.Getenv(envPrefix + "_CONFIG_PATH"); env != "" {
			configFile = env
		}
	}
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", configFile, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	v.BindPFlag("interval_in_seconds", cmd.Flags().Lookup("interval"))
	v.BindPFlag("database_path", cmd.Flags().Lookup("db"))
	v.BindPFlag("log_file_path", cmd.Flags().Lookup("log-file"))

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = configFile
	return cfg, nil
}
