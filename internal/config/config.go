package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	DefaultUploadBaud   = 921600
	DefaultMonitorBaud  = 115200
	DefaultPhaseTimeout = 30  // seconds without tool output before a phase is a stall
	DefaultJobCeiling   = 300 // seconds of wall clock before a job is force-cancelled
)

// Config holds all surge configuration.
type Config struct {
	STM32Programmer string `json:"stm32_programmer,omitempty"` // path to STM32_Programmer_CLI
	Esptool         string `json:"esptool,omitempty"`          // path to esptool
	ESPChip         string `json:"esp_chip,omitempty"`         // esptool --chip value
	UploadBaud      int    `json:"upload_baud,omitempty"`
	MonitorBaud     int    `json:"monitor_baud,omitempty"`
	ConnectRetries  int    `json:"connect_retries,omitempty"`
	PhaseTimeoutSec int    `json:"phase_timeout_sec,omitempty"`
	JobCeilingSec   int    `json:"job_ceiling_sec,omitempty"`
	STM32Mode       string `json:"stm32_mode,omitempty"`     // HOTPLUG, UR, ...
	STM32FreqKHz    int    `json:"stm32_freq_khz,omitempty"` // SWD clock, 0 = tool default
	STM32HardReset  bool   `json:"stm32_hard_reset,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		ESPChip:         "auto",
		UploadBaud:      DefaultUploadBaud,
		MonitorBaud:     DefaultMonitorBaud,
		ConnectRetries:  1,
		PhaseTimeoutSec: DefaultPhaseTimeout,
		JobCeilingSec:   DefaultJobCeiling,
		STM32Mode:       "HOTPLUG",
	}
}

// Load reads and merges global and local configs.
// Order: defaults → global (~/.config/surge/config.json) → local (.surge/config.json).
func Load(dir string) Config {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		mergeFromFile(&cfg, filepath.Join(home, ".config", "surge", "config.json"))
	}
	if dir != "" {
		mergeFromFile(&cfg, filepath.Join(dir, ".surge", "config.json"))
	}

	return cfg
}

// Save writes the config to .surge/config.json under dir, or to the global
// config if global is true.
func Save(cfg Config, dir string, global bool) error {
	var target string
	if global {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		target = filepath.Join(home, ".config", "surge")
	} else {
		target = filepath.Join(dir, ".surge")
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(target, "config.json"), data, 0o644)
}

func mergeFromFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return
	}

	if fileCfg.STM32Programmer != "" {
		cfg.STM32Programmer = fileCfg.STM32Programmer
	}
	if fileCfg.Esptool != "" {
		cfg.Esptool = fileCfg.Esptool
	}
	if fileCfg.ESPChip != "" {
		cfg.ESPChip = fileCfg.ESPChip
	}
	if fileCfg.UploadBaud != 0 {
		cfg.UploadBaud = fileCfg.UploadBaud
	}
	if fileCfg.MonitorBaud != 0 {
		cfg.MonitorBaud = fileCfg.MonitorBaud
	}
	if fileCfg.ConnectRetries != 0 {
		cfg.ConnectRetries = fileCfg.ConnectRetries
	}
	if fileCfg.PhaseTimeoutSec != 0 {
		cfg.PhaseTimeoutSec = fileCfg.PhaseTimeoutSec
	}
	if fileCfg.JobCeilingSec != 0 {
		cfg.JobCeilingSec = fileCfg.JobCeilingSec
	}
	if fileCfg.STM32Mode != "" {
		cfg.STM32Mode = fileCfg.STM32Mode
	}
	if fileCfg.STM32FreqKHz != 0 {
		cfg.STM32FreqKHz = fileCfg.STM32FreqKHz
	}
	if fileCfg.STM32HardReset {
		cfg.STM32HardReset = true
	}
}
