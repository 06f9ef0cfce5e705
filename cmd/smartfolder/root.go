package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smartfolder/smartfolder/cmd/internal/daemon"
	"github.com/smartfolder/smartfolder/internal/config"
	"github.com/smartfolder/smartfolder/internal/discovery"
	"github.com/smartfolder/smartfolder/internal/logutil"
)

// version is stamped by the release build.
var version = "dev"

var (
	rootPrompt string
	rootModel  string
	dryRun     bool
	runOnce    bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:     "smartfolder <folder> --prompt \"...\"",
	Short:   "Watch folders and let an AI agent organize arriving files",
	Version: version,
	Long: `smartfolder watches directories and runs an AI agent on every file that
arrives. The agent can inspect, rename, move and create files inside the
watched folder, following the instructions you give per folder.

Watch a single folder inline, or run many folders from a config file with
the run subcommand.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		if rootPrompt == "" {
			return fmt.Errorf("--prompt is required when watching a folder inline")
		}
		prompt, _, err := discovery.ParsePrompt(rootPrompt)
		if err != nil {
			return fmt.Errorf("invalid prompt: %w", err)
		}

		folder, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("folder: %w", err)
		}
		if info, err := os.Stat(folder); err != nil {
			return fmt.Errorf("folder: %w", err)
		} else if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", folder)
		}

		cfg := &config.Config{
			AI:      config.AI{Model: rootModel},
			Folders: []config.Folder{{Path: folder, Prompt: prompt, DryRun: dryRun}},
		}
		fmt.Fprintf(os.Stderr, "Watching %s\n", folder)
		return daemon.Run(cmd.Context(), daemon.Options{
			Config:  cfg,
			DryRun:  dryRun,
			RunOnce: runOnce,
		})
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() { logutil.Setup(verbose) })
	rootCmd.Flags().StringVar(&rootPrompt, "prompt", "", "instructions for the watched folder")
	rootCmd.Flags().StringVar(&rootModel, "model", "", "preferred model id (e.g. openai/gpt-4o-mini)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log what would happen without touching any file")
	rootCmd.PersistentFlags().BoolVar(&runOnce, "run-once", false, "start watchers, verify they come up, then exit")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
