package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/surge/internal/device"
	"github.com/buckleypaul/surge/internal/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and the device family detected on each",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.List()
		if err != nil {
			return fmt.Errorf("enumerate ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found.")
			return nil
		}

		for _, t := range ports {
			family := device.Classify(t)
			label := string(family)
			if family == device.FamilyUnknown {
				label = "-"
			}
			fmt.Printf("%-20s %-8s %s\n", t.Name, label, t.Description())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
