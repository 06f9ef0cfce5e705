package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartfolder/smartfolder/internal/state"
)

var (
	historyJSON  bool
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history <folder>",
	Short: "Show what the agent did in a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		store, err := state.NewStore()
		if err != nil {
			return err
		}
		recs, err := store.ReadHistory(folder, historyLimit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintf(os.Stderr, "no history for %s\n", folder)
			return nil
		}

		if historyJSON {
			enc := json.NewEncoder(os.Stdout)
			for _, rec := range recs {
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tFILE\tOUTCOME")
		for _, rec := range recs {
			outcome := "ok"
			if rec.Error != "" {
				outcome = "error: " + rec.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Timestamp.Local().Format("2006-01-02 15:04:05"), rec.File, outcome)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print records as JSON lines")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "only the most recent N records")
	rootCmd.AddCommand(historyCmd)
}
