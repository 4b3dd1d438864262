package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Sweep the drop folder once",
	Long: `Process every eligible photo in the drop folder that is not yet in
the processed store. Photos already ingested are skipped by base filename.

Examples:
  snapframe scan                        # Sweep the configured drop folder
  snapframe scan --watch-path /mnt/card # Sweep another folder`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("watch-path", "w", "", "Drop folder to sweep")
}

func runScan(cmd *cobra.Command, args []string) error {
	viper.BindPFlag("watch.path", cmd.Flags().Lookup("watch-path"))

	logger := newLogger()

	b, err := newBooth(logger)
	if err != nil {
		return err
	}

	count, err := b.pipeline.Scan(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Scan complete. Found %d new photos.\n", count)
	return nil
}
