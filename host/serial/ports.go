package serial

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
)

// LikelyManufacturer is the USB manufacturer string of the rig's controller
const LikelyManufacturer = "Teensyduino"

// PortInfo describes a serial device found on the host
type PortInfo struct {
	Name         string `json:"name" yaml:"name"`
	Device       string `json:"device" yaml:"device"`
	Manufacturer string `json:"manufacturer" yaml:"manufacturer"`
	Product      string `json:"product" yaml:"product"`
	VID          string `json:"vid" yaml:"vid"`
	PID          string `json:"pid" yaml:"pid"`
	SerialNumber string `json:"serial_number" yaml:"serial_number"`
	Likely       bool   `json:"likely" yaml:"likely"`
}

// USB vendor IDs seen on hobby boards. The enumerator reports VID/PID but
// not the manufacturer string, so it is derived from the vendor.
var vendorNames = map[string]string{
	"16C0": LikelyManufacturer, // Van Ooijen / PJRC Teensy
	"2341": "Arduino",
	"2A03": "Arduino",
	"0403": "FTDI",
	"10C4": "Silicon Labs",
	"1A86": "QinHeng Electronics",
	"2E8A": "Raspberry Pi",
}

// allow tests to override the enumerator
var detailedPortsList = enumerator.GetDetailedPortsList

// ListPorts enumerates serial devices and flags the likely controller
func ListPorts() ([]PortInfo, error) {
	details, err := detailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, describePort(d))
	}
	return ports, nil
}

func describePort(d *enumerator.PortDetails) PortInfo {
	info := PortInfo{
		Name:   filepath.Base(d.Name),
		Device: d.Name,
	}

	if d.IsUSB {
		info.VID = strings.ToUpper(d.VID)
		info.PID = strings.ToUpper(d.PID)
		info.SerialNumber = d.SerialNumber
		info.Product = d.Product
		info.Manufacturer = vendorNames[info.VID]
	}

	info.Likely = info.Manufacturer == LikelyManufacturer ||
		strings.Contains(strings.ToLower(info.Product), "teensy")
	return info
}
