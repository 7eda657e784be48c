package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/surge/internal/store"
	"github.com/buckleypaul/surge/internal/transport"
)

var (
	monitorPort string
	monitorBaud int
	monitorLog  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream serial output from a connected board",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := pickTransport(monitorPort)
		if err != nil {
			return err
		}
		baud := monitorBaud
		if baud == 0 {
			baud = cfg.MonitorBaud
		}

		mon := transport.NewMonitor()
		if err := mon.Connect(t.Name, baud); err != nil {
			return fmt.Errorf("open %s: %w", t.Name, err)
		}
		defer mon.Disconnect()

		var logFile *os.File
		if monitorLog {
			logFile, err = openMonitorLog(t.Name, baud)
			if err != nil {
				return err
			}
			defer logFile.Close()
			fmt.Fprintf(os.Stderr, "Logging to %s\n", logFile.Name())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(os.Stderr, "Monitoring %s at %d baud (ctrl+c to stop)\n", t.Name, baud)
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-mon.Lines():
				if !ok {
					return nil
				}
				fmt.Println(line)
				if logFile != nil {
					fmt.Fprintln(logFile, line)
				}
			}
		}
	},
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorPort, "port", "p", "", "serial port (auto-detected when exactly one board is connected)")
	monitorCmd.Flags().IntVarP(&monitorBaud, "baud", "b", 0, "baud rate (default from config)")
	monitorCmd.Flags().BoolVar(&monitorLog, "log", false, "also write output to .surge/logs/")
	rootCmd.AddCommand(monitorCmd)
}

func openMonitorLog(port string, baud int) (*os.File, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	st := store.New(filepath.Join(cwd, ".surge"))
	dir, err := st.LogsDir()
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("monitor-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}

	st.AddSerialLog(store.SerialLog{
		Port:      port,
		BaudRate:  baud,
		Timestamp: time.Now(),
		LogFile:   name,
	})
	return f, nil
}
