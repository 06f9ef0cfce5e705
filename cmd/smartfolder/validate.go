package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartfolder/smartfolder/internal/config"
)

var (
	validateConfigPath string
	validateJSON       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate --config <path>",
	Short: "Check a config file without starting anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(validateConfigPath)
		if err != nil {
			return err
		}

		if validateJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(normalizedView(cfg))
		}

		fmt.Printf("%s is valid\n", validateConfigPath)
		if cfg.RootMode() {
			fmt.Printf("  mode: discovery over %d root(s)\n", len(cfg.Roots))
		} else {
			fmt.Printf("  mode: %d configured folder(s)\n", len(cfg.Folders))
			for _, f := range cfg.Folders {
				fmt.Printf("  - %s\n", f.Path)
			}
		}
		return nil
	},
}

// normalizedView is the JSON shape printed by validate --json. It redacts the
// API key; the normalized config is for tooling, not for credential echo.
func normalizedView(cfg *config.Config) map[string]any {
	ai := map[string]any{
		"provider":     cfg.AI.Provider,
		"model":        cfg.AI.Model,
		"temperature":  cfg.AI.Temperature,
		"maxToolCalls": cfg.AI.MaxToolCalls,
		"defaultTools": cfg.AI.DefaultTools,
		"apiKeySet":    cfg.AI.APIKey != "",
	}
	out := map[string]any{"ai": ai}
	if cfg.RootMode() {
		out["rootDirectories"] = cfg.Roots
		out["discoveryIntervalMs"] = cfg.DiscoveryInterval.Milliseconds()
		return out
	}

	folders := make([]map[string]any, 0, len(cfg.Folders))
	for _, f := range cfg.Folders {
		folders = append(folders, map[string]any{
			"path":           f.Path,
			"prompt":         f.Prompt,
			"tools":          f.Tools,
			"ignore":         f.Ignore,
			"debounceMs":     f.Debounce.Milliseconds(),
			"pollIntervalMs": f.PollInterval.Milliseconds(),
			"dryRun":         f.DryRun,
		})
	}
	out["folders"] = folders
	return out
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "", "path to the JSON config file")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the normalized config as JSON")
	_ = validateCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(validateCmd)
}
