package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/surge/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past uploads in this project",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		st := store.New(filepath.Join(cwd, ".surge"))
		flashes, err := st.Flashes()
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		if len(flashes) == 0 {
			fmt.Println("No uploads recorded yet.")
			return nil
		}

		if historyLimit > 0 && len(flashes) > historyLimit {
			flashes = flashes[len(flashes)-historyLimit:]
		}

		// Newest first.
		for i := len(flashes) - 1; i >= 0; i-- {
			r := flashes[i]
			line := fmt.Sprintf("%s  %-9s %-7s %-16s %-8s %s",
				r.Timestamp.Format("2006-01-02 15:04:05"),
				r.Status, r.Family, r.Port, r.Duration,
				strings.Join(r.Files, ", "))
			if r.Detail != "" {
				line += "  (" + r.Detail + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "show at most this many entries (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
