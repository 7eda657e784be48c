package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/surge/internal/device"
	"github.com/buckleypaul/surge/internal/flash"
)

var erasePort string

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase the entire flash of a connected board",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := pickTransport(erasePort)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		onLine := func(line string) { fmt.Println(line) }

		fmt.Printf("Erasing %s...\n", t.Name)
		switch device.Classify(t) {
		case device.FamilySTM32:
			err = flash.NewSTM32Strategy(cfg, logger).Erase(ctx, t, onLine)
		case device.FamilyESP32:
			err = flash.NewESP32Strategy(cfg, logger).Erase(ctx, t, onLine)
		default:
			return fmt.Errorf("cannot erase %s: unrecognized device family", t.Name)
		}
		if err != nil {
			return err
		}
		fmt.Println("Flash erased.")
		return nil
	},
}

func init() {
	eraseCmd.Flags().StringVarP(&erasePort, "port", "p", "", "serial port (auto-detected when exactly one board is connected)")
	rootCmd.AddCommand(eraseCmd)
}
