package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TFMV/changetrack/internal/track"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Poll a directory for changes until interrupted",
	Long: `Poll a directory for changes and report them until Ctrl+C is pressed.

The snapshot is loaded from the state file at start and written back on exit.

Examples:
  changetrack watch /path/to/watch
  changetrack watch --interval=5s --exclude=".git" --exclude="*.tmp" /path/to/watch
  changetrack watch --format="{base} was {event} at {time}" /path/to/watch
  changetrack watch --format=json --state-backend=sqlite --state-file=state.db .
  changetrack watch --exec="echo Changed: {abs}" /path/to/watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, closeStore, err := openStore()
		if err != nil {
			return err
		}

		watchConfigFile()

		cfg := track.Config{
			Root:     root,
			Interval: viper.GetDuration("interval"),
			Handler:  newHandler(ctx, root, cmd.OutOrStdout()),
			Threaded: !viper.GetBool("inline"),
			Exclude:  excludePatterns(root),
			Logger:   logger,
		}

		if !viper.GetBool("silent") {
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for changes...\n", root)
			fmt.Fprintln(cmd.ErrOrStderr(), "Press Ctrl+C to exit.")
		}

		err = track.Run(ctx, cfg, store)
		return errors.Join(err, closeStore())
	},
}

// watchConfigFile logs config file edits. A running tracker keeps the
// configuration it was started with.
func watchConfigFile() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config file changed, restart to apply",
			zap.String("file", e.Name),
			zap.String("op", e.Op.String()),
		)
	})
	viper.WatchConfig()
}

func init() {
	rootCmd.AddCommand(watchCmd)

	// Define flags for the watch command
	watchCmd.Flags().Duration("interval", time.Second, "Pause between two scans")
	watchCmd.Flags().Bool("inline", false, "Run the scan loop on the main goroutine")

	viper.BindPFlag("interval", watchCmd.Flags().Lookup("interval"))
	viper.BindPFlag("inline", watchCmd.Flags().Lookup("inline"))
}
