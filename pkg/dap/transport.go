package dap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// Raspberry Pi Debug Probe / picoprobe CMSIS-DAP firmware
	VendorIDRaspberryPi = 0x2E8A
	ProductIDCMSISDAP   = 0x000C

	// Default packet size for CMSIS-DAP v1/v2
	DefaultPacketSize = 64
	DefaultTimeout    = 5 * time.Second
)

// Transport carries CMSIS-DAP command/response packets.
type Transport interface {
	WriteRead(cmd []byte) ([]byte, error)
	PacketSize() int
	Close() error
}

// USBSelector picks one probe among those attached. An empty Serial takes
// the first match.
type USBSelector struct {
	VID    uint16
	PID    uint16
	Serial string
}

func (s USBSelector) String() string {
	if s.Serial != "" {
		return fmt.Sprintf("%04X:%04X serial %s", s.VID, s.PID, s.Serial)
	}
	return fmt.Sprintf("%04X:%04X", s.VID, s.PID)
}

// USBTransport exchanges CMSIS-DAP v2 packets over the probe's vendor bulk
// endpoints.
type USBTransport struct {
	sel USBSelector

	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
}

// NewUSBTransport opens the probe sel names and claims its CMSIS-DAP
// interface.
func NewUSBTransport(sel USBSelector) (*USBTransport, error) {
	t := &USBTransport{
		sel:        sel,
		ctx:        gousb.NewContext(),
		packetSize: DefaultPacketSize,
		timeout:    DefaultTimeout,
	}

	steps := []func() error{t.openDevice, t.claimInterface, t.findEndpoints}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

// openDevice opens every device with the right VID:PID and keeps the one
// whose serial matches.
func (t *USBTransport) openDevice() error {
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == t.sel.VID && uint16(desc.Product) == t.sel.PID
	})
	// Devices we may not open are reported alongside the ones we could.
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		for _, d := range devs {
			d.Close()
		}
		return fmt.Errorf("USB error: %w", err)
	}

	for _, d := range devs {
		if t.dev == nil && t.matchSerial(d) {
			t.dev = d
			continue
		}
		d.Close()
	}
	if t.dev == nil {
		return fmt.Errorf("%w (%s)", ErrProbeNotFound, t.sel)
	}

	// Kernel drivers (cdc_acm on the probe's serial port) hold the other
	// interfaces on Linux; not all platforms support detaching.
	_ = t.dev.SetAutoDetach(true)
	return nil
}

func (t *USBTransport) matchSerial(d *gousb.Device) bool {
	if t.sel.Serial == "" {
		return true
	}
	sn, err := d.SerialNumber()
	return err == nil && sn == t.sel.Serial
}

// claimInterface claims the vendor-class interface CMSIS-DAP v2 uses, or
// interface 0 on probes that do not advertise one.
func (t *USBTransport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	t.cfg = cfg

	num := 0
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = intf.Number
			break
		}
	}

	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", num, err)
	}
	t.intf = intf
	return nil
}

// findEndpoints opens the first bulk endpoint in each direction. The IN
// endpoint's max packet size is the DAP packet size.
func (t *USBTransport) findEndpoints() error {
	var outAddr, inAddr int
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outAddr == 0:
			outAddr = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inAddr == 0:
			inAddr = ep.Number
			t.packetSize = ep.MaxPacketSize
		}
	}
	if outAddr == 0 || inAddr == 0 {
		return fmt.Errorf("dap: %s has no bulk endpoint pair", t.sel)
	}

	var err error
	if t.epOut, err = t.intf.OutEndpoint(outAddr); err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if t.epIn, err = t.intf.InEndpoint(inAddr); err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	return nil
}

// WriteRead sends one command packet, zero padded, and returns the response.
func (t *USBTransport) WriteRead(cmd []byte) ([]byte, error) {
	if len(cmd) > t.packetSize {
		return nil, fmt.Errorf("dap: %d byte command exceeds %d byte packet", len(cmd), t.packetSize)
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	packet := make([]byte, t.packetSize)
	copy(packet, cmd)
	if _, err := t.epOut.WriteContext(ctx, packet); err != nil {
		return nil, fmt.Errorf("USB write failed: %w", err)
	}

	resp := make([]byte, t.packetSize)
	n, err := t.epIn.ReadContext(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("USB read failed: %w", err)
	}
	return resp[:n], nil
}

func (t *USBTransport) PacketSize() int {
	return t.packetSize
}

// SetTimeout sets the per-transaction timeout
func (t *USBTransport) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// Close releases the interface, config, device and context, innermost first.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	var errs []error
	if t.cfg != nil {
		errs = append(errs, t.cfg.Close())
		t.cfg = nil
	}
	if t.dev != nil {
		errs = append(errs, t.dev.Close())
		t.dev = nil
	}
	if t.ctx != nil {
		errs = append(errs, t.ctx.Close())
		t.ctx = nil
	}
	return errors.Join(errs...)
}
