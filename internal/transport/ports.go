package transport

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// Transport describes one serial/USB endpoint a target device is reachable
// through. It is a snapshot: unplugging and replugging a board yields a new
// Transport with no identity shared with the old one.
type Transport struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Description returns a short human-readable label for port pickers.
func (t Transport) Description() string {
	if t.Product == "" {
		return t.Name
	}
	if t.VID != "" && t.PID != "" {
		return fmt.Sprintf("%s - %s (%s:%s)", t.Name, t.Product, t.VID, t.PID)
	}
	return fmt.Sprintf("%s - %s", t.Name, t.Product)
}

// List returns a fresh snapshot of available serial transports.
// Results are never cached; callers decide their own polling cadence.
func List() ([]Transport, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []Transport
	for _, p := range ports {
		result = append(result, Transport{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return result, nil
}
