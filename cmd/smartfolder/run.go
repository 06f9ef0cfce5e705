package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartfolder/smartfolder/cmd/internal/daemon"
	"github.com/smartfolder/smartfolder/internal/config"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run --config <path>",
	Short: "Watch every folder from a config file",
	Long: `Load a JSON config file and watch its folders. With rootDirectories the
daemon instead scans the roots for smartfolder.md files and attaches a watcher
for each one it finds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return daemon.Run(cmd.Context(), daemon.Options{
			Config:  cfg,
			DryRun:  dryRun,
			RunOnce: runOnce,
		})
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to the JSON config file")
	_ = runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}
