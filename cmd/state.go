package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/TFMV/changetrack/internal/track"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// stateCmd groups commands that inspect the saved snapshot
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the saved snapshot",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every item of the saved snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		snap := store.Load()
		out := cmd.OutOrStdout()
		if viper.GetString("format") == "json" {
			enc := json.NewEncoder(out)
			for _, path := range snap.Paths() {
				item := snap[path]
				line := eventJSON{Path: item.Path, Type: item.Type.String(), Hash: item.HexHash()}
				if !item.ModTime.IsZero() {
					line.ModTime = item.ModTime.Format(time.RFC3339Nano)
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			return nil
		}

		for _, path := range snap.Paths() {
			item := snap[path]
			switch item.Type {
			case track.TypeFile:
				fmt.Fprintf(out, "%-4s %s %s %s\n", item.Type, item.HexHash(), item.ModTime.Format(time.RFC3339), item.Path)
			default:
				fmt.Fprintf(out, "%-4s %s\n", item.Type, item.Path)
			}
		}
		if !viper.GetBool("silent") {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d items in %s\n", len(snap), viper.GetString("state-file"))
		}
		return nil
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the saved snapshot so the next run starts cold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("state-file")
		if viper.GetString("state-backend") == "sqlite" {
			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			return errors.Join(store.Save(track.Snapshot{}), closeStore())
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear state: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateClearCmd)
}
