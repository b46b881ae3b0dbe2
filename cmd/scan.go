package cmd

import (
	"errors"
	"fmt"

	"github.com/TFMV/changetrack/internal/track"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Report changes since the last saved state once",
	Long: `Compare a directory with the saved snapshot, report the differences and
save the new snapshot. The first scan of a directory reports every entry as
added.

Examples:
  changetrack scan /path/to/dir
  changetrack scan --format=json --state-file=/tmp/dir.state /path/to/dir`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		store, closeStore, err := openStore()
		if err != nil {
			return err
		}

		cfg := track.Config{
			Root:    root,
			Handler: newHandler(cmd.Context(), root, cmd.OutOrStdout()),
			Exclude: excludePatterns(root),
			Logger:  logger,
		}
		changes, err := track.ScanOnce(cfg, store)
		err = errors.Join(err, closeStore())
		if err != nil {
			return err
		}

		if !viper.GetBool("silent") && viper.GetString("format") != "json" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d added, %d removed, %d changed, %d moved\n",
				len(changes.Added), len(changes.Removed), len(changes.Changed), len(changes.Moved))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
