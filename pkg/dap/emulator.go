package dap

import (
	"encoding/binary"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

const (
	// DefaultDPIDR is an Arm SW-DP v1 as found on Cortex-M3/M4 parts.
	DefaultDPIDR = 0x2BA01477
	// DefaultAPIDR is the Cortex-M4 AHB-AP.
	DefaultAPIDR = 0x24770011
)

// Emulator is an in-memory CMSIS-DAP probe wired to an SW-DP and a MEM-AP
// over bus. It implements Transport so the probe code can be exercised
// without hardware.
type Emulator struct {
	Bus   mmio.Bus
	DPIDR uint32
	APIDR uint32

	Vendor  string
	Product string
	Serial  string

	// ResetSequence, when true, makes DAP_ResetTarget report that it ran a
	// device-specific reset; OnReset is called for it.
	ResetSequence bool
	OnReset       func()

	packet   int
	port     byte
	clockHz  uint32
	seqs     [][]byte
	ctrlStat uint32
	sel      uint32
	csw      uint32
	tar      uint32
	sticky   bool
	closed   bool
	commands []byte
}

// NewEmulator returns an emulator with an Arm SW-DP and AHB-AP over bus.
func NewEmulator(bus mmio.Bus) *Emulator {
	return &Emulator{
		Bus:     bus,
		DPIDR:   DefaultDPIDR,
		APIDR:   DefaultAPIDR,
		Vendor:  "OpenTraceLab",
		Product: "Emulated CMSIS-DAP",
		Serial:  "EMU0001",
		packet:  DefaultPacketSize,
	}
}

func (e *Emulator) PacketSize() int {
	return e.packet
}

func (e *Emulator) Close() error {
	e.closed = true
	return nil
}

// Commands returns the command IDs received so far, in order.
func (e *Emulator) Commands() []byte {
	return append([]byte(nil), e.commands...)
}

// Sequences returns the data of every DAP_SWJ_Sequence received.
func (e *Emulator) Sequences() [][]byte {
	return append([][]byte(nil), e.seqs...)
}

// ClockHz returns the last SWJ clock set.
func (e *Emulator) ClockHz() uint32 {
	return e.clockHz
}

// Sticky reports whether a FAULT is latched in CTRL/STAT.
func (e *Emulator) Sticky() bool {
	return e.sticky
}

func (e *Emulator) WriteRead(cmd []byte) ([]byte, error) {
	if e.closed {
		return nil, fmt.Errorf("emulator: closed")
	}
	if len(cmd) == 0 {
		return nil, fmt.Errorf("emulator: empty command")
	}
	if len(cmd) > e.packet {
		return nil, fmt.Errorf("emulator: command of %d bytes exceeds packet size", len(cmd))
	}
	e.commands = append(e.commands, cmd[0])

	switch cmd[0] {
	case CmdInfo:
		return e.info(cmd)
	case CmdConnect:
		if len(cmd) < 2 || cmd[1] == PortJTAG {
			return []byte{CmdConnect, 0}, nil
		}
		e.port = PortSWD
		return []byte{CmdConnect, PortSWD}, nil
	case CmdDisconnect:
		e.port = 0
		return []byte{CmdDisconnect, StatusOK}, nil
	case CmdSWJClock:
		if len(cmd) < 5 {
			return []byte{CmdSWJClock, StatusError}, nil
		}
		e.clockHz = binary.LittleEndian.Uint32(cmd[1:])
		return []byte{CmdSWJClock, StatusOK}, nil
	case CmdSWJSequence:
		e.seqs = append(e.seqs, append([]byte(nil), cmd[2:]...))
		return []byte{CmdSWJSequence, StatusOK}, nil
	case CmdSWDConfigure, CmdTransferConfigure:
		return []byte{cmd[0], StatusOK}, nil
	case CmdResetTarget:
		if !e.ResetSequence {
			return []byte{CmdResetTarget, StatusOK, 0}, nil
		}
		if e.OnReset != nil {
			e.OnReset()
		}
		return []byte{CmdResetTarget, StatusOK, 1}, nil
	case CmdTransfer:
		return e.transfer(cmd)
	}
	return []byte{0xFF}, nil
}

func (e *Emulator) info(cmd []byte) ([]byte, error) {
	if len(cmd) < 2 {
		return nil, fmt.Errorf("emulator: short DAP_Info")
	}
	var s string
	switch cmd[1] {
	case InfoVendorID:
		s = e.Vendor
	case InfoProductID:
		s = e.Product
	case InfoSerialNum:
		s = e.Serial
	case InfoFirmwareVer:
		s = "2.1.0"
	case InfoPacketSize:
		resp := []byte{CmdInfo, 2, 0, 0}
		binary.LittleEndian.PutUint16(resp[2:], uint16(e.packet))
		return resp, nil
	}
	return append([]byte{CmdInfo, byte(len(s))}, s...), nil
}

func (e *Emulator) transfer(cmd []byte) ([]byte, error) {
	if len(cmd) < 3 {
		return nil, fmt.Errorf("emulator: short DAP_Transfer")
	}
	count := int(cmd[2])
	resp := []byte{CmdTransfer, 0, 0}
	if e.port != PortSWD {
		return resp, nil // no ACK
	}

	offset := 3
	for i := 0; i < count; i++ {
		if offset >= len(cmd) {
			return nil, fmt.Errorf("emulator: truncated transfer %d", i)
		}
		x := Transfer{Request: cmd[offset]}
		offset++
		if !x.Read() {
			if offset+4 > len(cmd) {
				return nil, fmt.Errorf("emulator: truncated transfer %d", i)
			}
			x.Data = binary.LittleEndian.Uint32(cmd[offset:])
			offset += 4
		}

		v, ok := e.access(x)
		if !ok {
			resp[1] = byte(i)
			resp[2] = AckFault
			return resp, nil
		}
		if x.Read() {
			resp = binary.LittleEndian.AppendUint32(resp, v)
		}
	}
	resp[1] = byte(count)
	resp[2] = AckOK
	return resp, nil
}

// access performs one register access; ok is false when it answers FAULT.
func (e *Emulator) access(x Transfer) (uint32, bool) {
	if !x.AP() {
		return e.dp(x)
	}
	// AP accesses fault while a sticky error is latched or the debug
	// domain is off.
	if e.sticky || e.ctrlStat&CtrlCDbgPwrUpReq == 0 {
		e.sticky = true
		return 0, false
	}
	if e.sel>>24 != 0 {
		return 0, true // no AP at this index reads as zero
	}

	switch uint32(x.Addr()) | e.sel&0xF0 {
	case APCSW:
		if x.Read() {
			return e.csw, true
		}
		e.csw = x.Data
	case APTAR:
		if x.Read() {
			return e.tar, true
		}
		e.tar = x.Data
	case APDRW:
		if e.csw&CSWSizeMask != CSWSize32 {
			e.sticky = true
			return 0, false
		}
		if x.Read() {
			v, err := e.Bus.ReadWord(e.tar)
			if err != nil {
				e.sticky = true
				return 0, false
			}
			return v, true
		}
		if err := e.Bus.WriteWord(e.tar, x.Data); err != nil {
			e.sticky = true
			return 0, false
		}
	case APIDR:
		if x.Read() {
			return e.APIDR, true
		}
	}
	return 0, true
}

func (e *Emulator) dp(x Transfer) (uint32, bool) {
	switch x.Addr() {
	case DPIDR: // DPAbort on write
		if x.Read() {
			return e.DPIDR, true
		}
		if x.Data&AbortStkErrClr != 0 {
			e.sticky = false
		}
	case CtrlStat:
		if x.Read() {
			v := e.ctrlStat
			// Power-up requests are acknowledged immediately
			v |= (e.ctrlStat & (CtrlCDbgPwrUpReq | CtrlCSysPwrUpReq)) << 1
			if e.sticky {
				v |= CtrlStickyErr
			}
			return v, true
		}
		e.ctrlStat = x.Data &^ (CtrlCDbgPwrUpAck | CtrlCSysPwrUpAck | CtrlStickyErr)
	case Select:
		if !x.Read() {
			e.sel = x.Data
		}
	case RDBuff:
		return 0, true
	}
	return 0, true
}
