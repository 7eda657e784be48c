package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/surge/internal/config"
)

var configInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration surge is running with, merged from defaults,
~/.config/surge/config.json, and ./.surge/config.json. With --init, write
the current effective configuration to ./.surge/config.json so it can be
edited.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configInit {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			if err := config.Save(cfg, cwd, false); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Println("Wrote .surge/config.json")
			return nil
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "write the effective config to .surge/config.json")
	rootCmd.AddCommand(configCmd)
}
