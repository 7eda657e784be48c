// Package device maps serial transports to the microcontroller family
// attached to them, using the USB identifiers the port enumerator reports.
package device

import (
	"strings"

	"github.com/buckleypaul/surge/internal/transport"
)

// Family is the microcontroller platform behind a transport.
type Family string

const (
	FamilySTM32   Family = "stm32"
	FamilyESP32   Family = "esp32"
	FamilyUnknown Family = "unknown"
)

// usbSignatures maps known VID:PID pairs to a family. Supporting a new board
// is a table edit, not new logic.
var usbSignatures = []struct {
	VID    string
	PID    string
	Family Family
}{
	{"0483", "374B", FamilySTM32}, // ST-LINK/V2-1 virtual COM
	{"0483", "374E", FamilySTM32}, // ST-LINK/V3
	{"0483", "3748", FamilySTM32}, // ST-LINK/V2
	{"0483", "DF11", FamilySTM32}, // STM32 DFU bootloader
	{"0483", "5740", FamilySTM32}, // STM32 CDC virtual COM

	{"10C4", "EA60", FamilyESP32}, // Silicon Labs CP210x
	{"1A86", "7523", FamilyESP32}, // WCH CH340
	{"1A86", "55D4", FamilyESP32}, // WCH CH9102
	{"0403", "6001", FamilyESP32}, // FTDI FT232R
	{"0403", "6010", FamilyESP32}, // FTDI FT2232
	{"0403", "6014", FamilyESP32}, // FTDI FT232H
	{"303A", "1001", FamilyESP32}, // Espressif built-in USB-JTAG/serial
}

// productKeywords catch bridges reporting an unlisted PID but a telling
// product string.
var productKeywords = []struct {
	Substr string
	Family Family
}{
	{"st-link", FamilySTM32},
	{"stlink", FamilySTM32},
	{"stm32", FamilySTM32},
	{"cp210", FamilyESP32},
	{"ch340", FamilyESP32},
	{"ch9102", FamilyESP32},
	{"silicon labs", FamilyESP32},
	{"esp32", FamilyESP32},
}

// Classify derives the target family from a transport's USB identifiers.
// It is a pure lookup: unrecognized hardware yields FamilyUnknown, never an
// error, and callers must handle Unknown explicitly.
func Classify(t transport.Transport) Family {
	vid := strings.ToUpper(t.VID)
	pid := strings.ToUpper(t.PID)
	for _, sig := range usbSignatures {
		if sig.VID == vid && sig.PID == pid {
			return sig.Family
		}
	}

	product := strings.ToLower(t.Product)
	if product != "" {
		for _, kw := range productKeywords {
			if strings.Contains(product, kw.Substr) {
				return kw.Family
			}
		}
	}

	return FamilyUnknown
}
