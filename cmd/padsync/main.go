package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/padsync/internal/config"
	"github.com/openmined/padsync/internal/server"
	"github.com/openmined/padsync/internal/utils"
	"github.com/openmined/padsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	envPrefix      = "PADSYNC"

	// raised to the configured level once the daemon has read its config
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:     "padsync",
	Short:   "PadSync daemon: live note sync between browser tabs and the filesystem",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true

		closeLog, err := setupFileLog(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		showHeader(cmd.OutOrStdout(), cfg)

		srv, err := server.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return srv.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("datadir", "d", config.DefaultDataDir, "notes data directory")
	rootCmd.Flags().String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	rootCmd.Flags().Bool("no-versioning", false, "disable periodic git snapshots")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "padsync config file")
	rootCmd.PersistentFlags().StringP("addr", "a", config.DefaultAddr, "daemon listen / connect address")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the local API")
}

func main() {
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(stdoutHandler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setupFileLog tees the default logger into the configured log file.
func setupFileLog(cfg *config.Config) (func(), error) {
	logLevel.Set(cfg.SlogLevel())

	if cfg.LogFile == "" {
		return func() {}, nil
	}

	if err := utils.EnsureParent(cfg.LogFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: logLevel,
		// the interceptor stamps its own time
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	prev := slog.Default()
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(prev.Handler(), fileHandler)))

	return func() {
		slog.SetDefault(prev)
		logInterceptor.Close()
		file.Close()
	}, nil
}

// loadConfig merges defaults, the config file, .env files, PADSYNC_* env vars and flags,
// in increasing order of precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v, config.Default())

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.AddConfigPath(filepath.Join(home, ".config", "padsync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	bindFlag(v, cmd, "data_dir", "datadir")
	bindFlag(v, cmd, "log_level", "log-level")
	bindFlag(v, cmd, "http.addr", "addr")
	bindFlag(v, cmd, "http.token", "token")
	if f := cmd.Flag("no-versioning"); f != nil && f.Changed {
		v.Set("versioning.enabled", false)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	if cfg.Path == "" {
		cfg.Path = config.DefaultConfigPath
		if f := cmd.Flag("config"); f != nil {
			cfg.Path = f.Value.String()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// only explicitly set flags override the file and env
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.Flag(flag); f != nil && f.Changed {
		v.Set(key, f.Value.String())
	}
}

func setDefaults(v *viper.Viper, def *config.Config) {
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("http.addr", def.HTTP.Addr)
	v.SetDefault("http.token", def.HTTP.Token)
	v.SetDefault("watcher.debounce", def.Watcher.Debounce)
	v.SetDefault("watcher.suppress_window", def.Watcher.SuppressWindow)
	v.SetDefault("watcher.own_write_ttl", def.Watcher.OwnWriteTTL)
	v.SetDefault("watcher.extensions", def.Watcher.Extensions)
	v.SetDefault("autosave.debounce", def.Autosave.Debounce)
	v.SetDefault("versioning.enabled", def.Versioning.Enabled)
	v.SetDefault("versioning.interval", def.Versioning.Interval)
	v.SetDefault("versioning.author_name", def.Versioning.AuthorName)
	v.SetDefault("versioning.author_email", def.Versioning.AuthorEmail)
}

// loadDotEnv reads ./.env and ~/.padsync/.env. Variables already set win.
func loadDotEnv() {
	for _, path := range []string{".env", filepath.Join(config.DefaultConfigDir, ".env")} {
		if !utils.FileExists(path) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("dotenv load", "path", path, "error", err)
		}
	}
}

func showHeader(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, cyan.Bold(true).Render(version.ShortWithApp()))
	fmt.Fprintln(w, gray.Render("notes  "+cfg.DataDir))
	fmt.Fprintln(w, gray.Render("listen "+cfg.HTTP.Addr))
	fmt.Fprintln(w)
}
