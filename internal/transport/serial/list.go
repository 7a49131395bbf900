package serial

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial device found on the host.
type PortInfo struct {
	Name         string `json:"name" yaml:"name"`
	IsUSB        bool   `json:"is_usb" yaml:"is_usb"`
	VID          string `json:"vid,omitempty" yaml:"vid,omitempty"`
	PID          string `json:"pid,omitempty" yaml:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	Product      string `json:"product,omitempty" yaml:"product,omitempty"`
}

// List enumerates serial devices with their USB details when available.
func List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
