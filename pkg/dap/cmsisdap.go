package dap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

const (
	DefaultSpeedHz = 1_000_000
	MinSpeedHz     = 1000
	MaxSpeedHz     = 10_000_000

	// Power-up polls before giving up on CDBGPWRUPACK/CSYSPWRUPACK
	powerUpPolls = 100
	waitRetries  = 128
)

// SWD line reset: at least 50 clocks with SWDIO high
var lineReset = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// JTAG-to-SWD select sequence 0xE79E, LSB first
var jtagToSWD = []byte{0x9E, 0xE7}

// CMSISDAPProbe implements Probe for CMSIS-DAP adapters in SWD mode
type CMSISDAPProbe struct {
	transport Transport
	protocol  *Protocol

	info      ProbeInfo
	speedHz   int
	connected bool

	mu sync.Mutex // Protect concurrent access
}

// NewCMSISDAPProbe opens the USB probe sel names and brings up the SWD link.
func NewCMSISDAPProbe(sel USBSelector, speedHz int) (*CMSISDAPProbe, error) {
	transport, err := NewUSBTransport(sel)
	if err != nil {
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}

	p, err := Open(transport, speedHz)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return p, nil
}

// Open brings up the SWD link and the MEM-AP over an already open transport.
func Open(t Transport, speedHz int) (*CMSISDAPProbe, error) {
	if speedHz == 0 {
		speedHz = DefaultSpeedHz
	}
	p := &CMSISDAPProbe{
		transport: t,
		protocol:  NewProtocol(t.PacketSize()),
	}

	steps := []struct {
		what string
		fn   func() error
	}{
		{"query device info", p.queryInfo},
		{"connect to SWD", p.connect},
		{"set speed", func() error { return p.SetSpeed(speedHz) }},
		{"configure transfers", p.configure},
		{"switch to SWD", p.switchToSWD},
		{"power up debug domain", p.powerUp},
		{"configure MEM-AP", p.setupAP},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("failed to %s: %w", step.what, err)
		}
	}
	return p, nil
}

// queryInfo retrieves device information from the probe
func (p *CMSISDAPProbe) queryInfo() error {
	vendor, err := p.infoString(InfoVendorID)
	if err != nil {
		return err
	}
	// Optional strings; a probe may leave them empty
	product, _ := p.infoString(InfoProductID)
	serial, _ := p.infoString(InfoSerialNum)
	firmware, _ := p.infoString(InfoFirmwareVer)

	p.info = ProbeInfo{
		Name:         "CMSIS-DAP Probe",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		Firmware:     firmware,
	}
	return nil
}

func (p *CMSISDAPProbe) infoString(id byte) (string, error) {
	resp, err := p.transport.WriteRead(p.protocol.EncodeInfo(id))
	if err != nil {
		return "", err
	}
	return p.protocol.DecodeInfo(resp)
}

// connect selects the SWD port
func (p *CMSISDAPProbe) connect() error {
	resp, err := p.transport.WriteRead(p.protocol.EncodeConnect(PortSWD))
	if err != nil {
		return err
	}

	port, err := p.protocol.DecodeConnect(resp)
	if err != nil {
		return err
	}
	if port != PortSWD {
		return fmt.Errorf("failed to connect to SWD (got port %d)", port)
	}

	p.connected = true
	return nil
}

func (p *CMSISDAPProbe) configure() error {
	resp, err := p.transport.WriteRead(p.protocol.EncodeTransferConfigure(0, waitRetries, 0))
	if err != nil {
		return err
	}
	if err := p.protocol.DecodeTransferConfigure(resp); err != nil {
		return err
	}

	// One turnaround cycle, no data phase on WAIT/FAULT
	resp, err = p.transport.WriteRead(p.protocol.EncodeSWDConfigure(0))
	if err != nil {
		return err
	}
	return p.protocol.DecodeSWDConfigure(resp)
}

// switchToSWD sends line reset, the JTAG-to-SWD sequence, another line reset
// and idle cycles, then reads DPIDR, which is what takes the DP out of reset.
func (p *CMSISDAPProbe) switchToSWD() error {
	seqs := []struct {
		bits int
		data []byte
	}{
		{56, lineReset},
		{16, jtagToSWD},
		{56, lineReset},
		{8, []byte{0x00}},
	}
	for _, s := range seqs {
		cmd, err := p.protocol.EncodeSWJSequence(s.bits, s.data)
		if err != nil {
			return err
		}
		resp, err := p.transport.WriteRead(cmd)
		if err != nil {
			return err
		}
		if err := p.protocol.DecodeSWJSequence(resp); err != nil {
			return err
		}
	}

	reads, err := p.transfer(DPRead(DPIDR))
	if err != nil {
		return fmt.Errorf("read DPIDR: %w", err)
	}
	p.info.DPIDR = reads[0]
	return nil
}

func (p *CMSISDAPProbe) powerUp() error {
	if _, err := p.transfer(
		DPWrite(DPAbort, abortClearAll),
		DPWrite(Select, 0),
		DPWrite(CtrlStat, CtrlCSysPwrUpReq|CtrlCDbgPwrUpReq),
	); err != nil {
		return err
	}

	const acks = CtrlCSysPwrUpAck | CtrlCDbgPwrUpAck
	for range powerUpPolls {
		reads, err := p.transfer(DPRead(CtrlStat))
		if err != nil {
			return err
		}
		if reads[0]&acks == acks {
			return nil
		}
	}
	return fmt.Errorf("dap: debug power-up not acknowledged")
}

func (p *CMSISDAPProbe) setupAP() error {
	reads, err := p.transfer(
		DPWrite(Select, APIDR&0xF0),
		APRead(APIDR),
		DPWrite(Select, 0),
		APWrite(APCSW, CSWDefault),
	)
	if err != nil {
		return err
	}
	p.info.APIDR = reads[0]
	if p.info.APIDR == 0 {
		return fmt.Errorf("dap: no MEM-AP at index 0")
	}
	return nil
}

// transfer runs one DAP_Transfer. A FAULT answer leaves sticky flags set in
// CTRL/STAT; they are cleared here so the next access can proceed.
func (p *CMSISDAPProbe) transfer(xfers ...Transfer) ([]uint32, error) {
	cmd, err := p.protocol.EncodeTransfer(0, xfers)
	if err != nil {
		return nil, err
	}
	resp, err := p.transport.WriteRead(cmd)
	if err != nil {
		return nil, fmt.Errorf("transfer failed: %w", err)
	}

	reads, err := p.protocol.DecodeTransfer(resp, xfers)
	if errors.Is(err, ErrAckFault) {
		p.clearSticky()
	}
	return reads, err
}

func (p *CMSISDAPProbe) clearSticky() {
	cmd, _ := p.protocol.EncodeTransfer(0, []Transfer{DPWrite(DPAbort, abortClearAll)})
	p.transport.WriteRead(cmd)
}

// Transfer runs raw DP/AP accesses and returns the values read.
func (p *CMSISDAPProbe) Transfer(xfers ...Transfer) ([]uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transfer(xfers...)
}

// Info returns what the probe reported and what was read from the target
func (p *CMSISDAPProbe) Info() ProbeInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := p.info
	info.SpeedHz = p.speedHz
	return info
}

// ReadWord reads a target word through the MEM-AP.
func (p *CMSISDAPProbe) ReadWord(addr uint32) (uint32, error) {
	if err := mmio.CheckAligned(addr); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reads, err := p.transfer(APWrite(APTAR, addr), APRead(APDRW))
	if err != nil {
		return 0, memError("read", addr, err)
	}
	return reads[0], nil
}

// WriteWord writes a target word through the MEM-AP.
func (p *CMSISDAPProbe) WriteWord(addr uint32, value uint32) error {
	if err := mmio.CheckAligned(addr); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.transfer(APWrite(APTAR, addr), APWrite(APDRW, value)); err != nil {
		return memError("write", addr, err)
	}
	return nil
}

// memError reports a faulted MEM-AP access as a bus fault.
func memError(op string, addr uint32, err error) error {
	if errors.Is(err, ErrAckFault) {
		return fmt.Errorf("dap: %s 0x%08X: %w: %w", op, addr, mmio.ErrBusFault, err)
	}
	return fmt.Errorf("dap: %s 0x%08X: %w", op, addr, err)
}

// SetSpeed sets the SWCLK frequency
func (p *CMSISDAPProbe) SetSpeed(hz int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if hz < MinSpeedHz || hz > MaxSpeedHz {
		return fmt.Errorf("frequency %d Hz out of range [%d, %d]", hz, MinSpeedHz, MaxSpeedHz)
	}

	resp, err := p.transport.WriteRead(p.protocol.EncodeSetClock(uint32(hz)))
	if err != nil {
		return fmt.Errorf("set speed failed: %w", err)
	}
	if err := p.protocol.DecodeSetClock(resp); err != nil {
		return err
	}

	p.speedHz = hz
	return nil
}

// ResetTarget resets the target with the probe's device-specific sequence,
// or with SYSRESETREQ when the probe has none.
func (p *CMSISDAPProbe) ResetTarget() error {
	p.mu.Lock()
	resp, err := p.transport.WriteRead(p.protocol.EncodeResetTarget())
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("reset target failed: %w", err)
	}

	executed, err := p.protocol.DecodeResetTarget(resp)
	if err != nil {
		return err
	}
	if executed {
		return nil
	}
	return requestSystemReset(p)
}

// Close disconnects and releases resources
func (p *CMSISDAPProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		p.transport.WriteRead(p.protocol.EncodeDisconnect())
		p.connected = false
	}

	return p.transport.Close()
}
