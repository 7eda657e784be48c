package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buckleypaul/surge/internal/device"
	"github.com/buckleypaul/surge/internal/firmware"
	"github.com/buckleypaul/surge/internal/flash"
	"github.com/buckleypaul/surge/internal/store"
	"github.com/buckleypaul/surge/internal/transport"
	"github.com/buckleypaul/surge/internal/tui"
)

var (
	flashPort  string
	flashErase bool
	flashPlain bool
	flashChip  string
	flashBaud  int
)

var flashCmd = &cobra.Command{
	Use:   "flash [0xOFFSET:]file.bin ...",
	Short: "Upload firmware to a connected board",
	Long: `Upload one or more firmware images. Each argument is a file path,
optionally prefixed with its flash offset:

  surge flash firmware.bin
  surge flash 0x1000:bootloader.bin 0x8000:partitions.bin 0x10000:app.bin

STM32 boards take a single image; ESP32 boards accept multiple segments,
written in ascending offset order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		art := firmware.Artifact{FullErase: flashErase}
		for _, arg := range args {
			seg, err := firmware.ParseSegment(arg)
			if err != nil {
				return err
			}
			art.Segments = append(art.Segments, seg)
		}

		t, err := pickTransport(flashPort)
		if err != nil {
			return err
		}

		if flashChip != "" {
			cfg.ESPChip = flashChip
		}
		if flashBaud != 0 {
			cfg.UploadBaud = flashBaud
		}

		// A signal cancels the job cooperatively rather than killing the
		// tool mid-write.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch := flash.NewOrchestrator(cfg, logger)
		job, err := orch.Submit(ctx, t, art)
		if err != nil {
			return err
		}

		var res flash.Result
		if flashPlain {
			res = runPlain(job)
		} else {
			res, err = tui.RunFlash(job)
			if err != nil {
				return err
			}
		}

		recordFlash(job, art, res)

		switch res.Status {
		case flash.StatusSuccess:
			return nil
		case flash.StatusCancelled:
			return fmt.Errorf("upload cancelled")
		default:
			return res.Err
		}
	},
}

func init() {
	flashCmd.Flags().StringVarP(&flashPort, "port", "p", "", "serial port (auto-detected when exactly one board is connected)")
	flashCmd.Flags().BoolVar(&flashErase, "erase", false, "erase the entire flash before writing (ESP32)")
	flashCmd.Flags().BoolVar(&flashPlain, "plain", false, "line-based output instead of the interactive view")
	flashCmd.Flags().StringVar(&flashChip, "chip", "", "esptool chip type (default: auto)")
	flashCmd.Flags().IntVar(&flashBaud, "baud", 0, "upload baud rate")
	rootCmd.AddCommand(flashCmd)
}

// pickTransport resolves the target port: an explicit name must exist, and
// without one exactly one recognized board must be connected.
func pickTransport(name string) (transport.Transport, error) {
	ports, err := transport.List()
	if err != nil {
		return transport.Transport{}, fmt.Errorf("enumerate ports: %w", err)
	}

	if name != "" {
		for _, t := range ports {
			if t.Name == name {
				return t, nil
			}
		}
		return transport.Transport{}, fmt.Errorf("port %s not found", name)
	}

	var known []transport.Transport
	for _, t := range ports {
		if device.Classify(t) != device.FamilyUnknown {
			known = append(known, t)
		}
	}
	switch len(known) {
	case 0:
		return transport.Transport{}, fmt.Errorf("no recognized board connected; use --port")
	case 1:
		return known[0], nil
	default:
		return transport.Transport{}, fmt.Errorf("%d boards connected; pick one with --port", len(known))
	}
}

func runPlain(job *flash.Job) flash.Result {
	for e := range job.Events {
		if e.Message != "" {
			fmt.Printf("[%3d%%] %-11s %s\n", e.Percent, e.Phase, e.Message)
		} else {
			fmt.Printf("[%3d%%] %s\n", e.Percent, e.Phase)
		}
	}
	return <-job.Result
}

func recordFlash(job *flash.Job, art firmware.Artifact, res flash.Result) {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	files := make([]string, len(art.Segments))
	for i, seg := range art.Segments {
		files[i] = filepath.Base(seg.Path)
	}
	detail := ""
	if res.Err != nil {
		detail = res.Err.Error()
	}

	st := store.New(filepath.Join(cwd, ".surge"))
	rec := store.FlashRecord{
		Port:      job.Transport.Name,
		Family:    string(job.Family),
		Files:     files,
		Status:    res.Status.String(),
		Detail:    detail,
		Duration:  res.Duration.Round(10 * time.Millisecond).String(),
		Timestamp: time.Now(),
	}
	if err := st.AddFlash(rec); err != nil {
		logger.Warn("could not record flash history", zap.Error(err))
	}
}
