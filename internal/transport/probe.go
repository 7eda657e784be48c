package transport

import (
	"fmt"

	"go.bug.st/serial"
)

// Probe briefly opens the named port to confirm it is still reachable.
// A transport can disappear between enumeration and use (unplug, another
// process holding the port), and open is the cheapest way to find out.
func Probe(name string) error {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	return port.Close()
}
