package store

import "time"

// FlashRecord captures the outcome of one upload job.
type FlashRecord struct {
	Port      string    `json:"port"`
	Family    string    `json:"family"`
	Files     []string  `json:"files"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Duration  string    `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
}

// SerialLog tracks a serial monitor session that was logged to disk.
type SerialLog struct {
	Port      string    `json:"port"`
	BaudRate  int       `json:"baud_rate"`
	Timestamp time.Time `json:"timestamp"`
	LogFile   string    `json:"log_file"`
}
