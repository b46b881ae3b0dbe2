package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TFMV/changetrack/internal/track"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	version = "0.1.0"

	// logger is built once flags and config are known.
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "changetrack",
	Short: "Poll a directory tree and report what changed",
	Long: `changetrack periodically scans a directory tree and reports which files and
directories were added, removed, changed or moved since the previous scan.

State is kept in a snapshot file so changes made while changetrack was not
running are reported on the next start.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger()
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.changetrack.yaml)")
	flags.String("state-file", track.DefaultStateFile, "Snapshot file or database")
	flags.String("state-backend", "file", "Snapshot storage (file|sqlite)")
	flags.StringSlice("exclude", nil, "Glob patterns to leave out (repeatable)")
	flags.String("format", "text", "Output format (text|json|<template>), e.g. \"{event}: {} at {time}\"")
	flags.String("exec", "", "Command to run for each change, e.g. \"echo {event} {abs}\"")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.Bool("silent", false, "Disable all output except errors")
	flags.String("log-file", "", "Write logs to a rotated file instead of stderr")

	// Bind flags to viper
	for _, name := range []string{"state-file", "state-backend", "exclude", "format", "exec", "verbose", "silent", "log-file"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".changetrack" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".changetrack")
	}

	viper.SetEnvPrefix("CHANGETRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("silent") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger() (*zap.Logger, error) {
	level := track.LogLevelInfo
	if viper.GetBool("verbose") {
		level = track.LogLevelDebug
	} else if viper.GetBool("silent") {
		level = track.LogLevelError
	}
	return track.NewLogger(level, track.LogFile{Path: viper.GetString("log-file")})
}

// resolveRoot returns the absolute directory named by args, or the working
// directory.
func resolveRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// openStore opens the configured snapshot backend. The returned close
// function is always non-nil.
func openStore() (track.Store, func() error, error) {
	path := viper.GetString("state-file")
	switch backend := viper.GetString("state-backend"); backend {
	case "", "file":
		return track.NewFileStore(path, logger), func() error { return nil }, nil
	case "sqlite":
		s, err := track.NewSQLiteStore(path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("invalid state-backend: %s", backend)
	}
}

// excludePatterns returns the configured patterns plus the state file and
// its companions when they live below root.
func excludePatterns(root string) []string {
	patterns := append([]string(nil), viper.GetStringSlice("exclude")...)

	state, err := filepath.Abs(viper.GetString("state-file"))
	if err != nil {
		return patterns
	}
	rel, err := filepath.Rel(root, state)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return patterns
	}
	// Anchored at the root; the suffix covers the temp file of an atomic save
	// and SQLite's -wal and -shm files.
	return append(patterns, "/"+glob.QuoteMeta(filepath.ToSlash(rel))+"*")
}

// newHandler builds the event handler for the format and exec settings.
func newHandler(ctx context.Context, root string, out io.Writer) track.Handler {
	if command := viper.GetString("exec"); command != "" {
		return track.ExecHandler(ctx, root, command, out, os.Stderr)
	}
	switch format := viper.GetString("format"); format {
	case "", "text":
		return &track.PrintHandler{Root: root, Out: out}
	case "json":
		return jsonHandler(root, out)
	default:
		return track.FormatHandler(root, format, out)
	}
}

// eventJSON is one line of --format=json output.
type eventJSON struct {
	Event        string `json:"event"`
	Path         string `json:"path"`
	AbsPath      string `json:"abs_path"`
	Type         string `json:"type"`
	Hash         string `json:"hash,omitempty"`
	ModTime      string `json:"mod_time,omitempty"`
	PreviousPath string `json:"previous_path,omitempty"`
}

func jsonHandler(root string, out io.Writer) track.Handler {
	enc := json.NewEncoder(out)
	return track.HandlerFromFunc(func(event track.Event, item *track.Item) {
		line := eventJSON{
			Event:        string(event),
			Path:         item.Path,
			AbsPath:      item.AbsPath(root),
			Type:         item.Type.String(),
			Hash:         item.HexHash(),
			PreviousPath: item.PreviousPath,
		}
		if !item.ModTime.IsZero() {
			line.ModTime = item.ModTime.Format(time.RFC3339Nano)
		}
		if err := enc.Encode(line); err != nil {
			logger.Warn("failed to write event", zap.Error(err))
		}
	})
}
