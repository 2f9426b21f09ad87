package dap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// ErrProbeNotFound is returned when no probe with the requested VID:PID is
// attached.
var ErrProbeNotFound = errors.New("dap: probe not found")

// ProbeKind categorizes debug probe families.
type ProbeKind string

const (
	ProbeKindCMSISDAP ProbeKind = "cmsis-dap"
	ProbeKindSim      ProbeKind = "simulator"
)

// ProbeEntry describes a detected probe.
type ProbeEntry struct {
	Kind        ProbeKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
}

// Label returns a user-friendly description for the probe.
func (p ProbeEntry) Label() string {
	if p.Description != "" {
		return p.Description
	}
	if p.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(p.Kind), p.VendorID, p.ProductID)
	}
	return fmt.Sprintf("Probe %04X:%04X", p.VendorID, p.ProductID)
}

// DiscoverProbes enumerates connected CMSIS-DAP probes that match known
// VID/PID pairs. It always returns the simulator entry last so the tools can
// be exercised without hardware connected.
func DiscoverProbes(ctx context.Context) ([]ProbeEntry, error) {
	var results []ProbeEntry
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		_, ok := classifyUSBDevice(desc)
		return ok
	})
	for _, dev := range devs {
		entry, _ := classifyUSBDevice(dev.Desc)
		entry.Serial, _ = dev.SerialNumber()
		results = append(results, entry)
		dev.Close()
	}
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, err
	}

	results = append(results, ProbeEntry{
		Kind:        ProbeKindSim,
		Description: "Simulator (no hardware)",
	})

	return results, nil
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (ProbeEntry, bool) {
	for _, known := range knownCMSISDAPVIDPIDs {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return ProbeEntry{
				Kind:        ProbeKindCMSISDAP,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return ProbeEntry{}, false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownCMSISDAPVIDPIDs = []knownUSBDevice{
	{VendorID: VendorIDRaspberryPi, ProductID: ProductIDCMSISDAP, Description: "Raspberry Pi CMSIS-DAP"},
	{VendorID: 0x0d28, ProductID: 0x0204, Description: "DAPLink CMSIS-DAP"},
	{VendorID: 0x1366, ProductID: 0x0101, Description: "SEGGER J-Link CMSIS-DAP"},
}

// Known reports whether vid:pid is a recognised CMSIS-DAP probe.
func Known(vid, pid uint16) (string, bool) {
	for _, k := range knownCMSISDAPVIDPIDs {
		if k.VendorID == vid && k.ProductID == pid {
			return k.Description, true
		}
	}
	return "", false
}
