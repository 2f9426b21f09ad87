// Package dap reaches a target's memory through an Arm debug probe: a
// CMSIS-DAP adapter speaking SWD to the debug port, then the MEM-AP to the
// system bus. Probes satisfy mmio.Bus so a core dump can be read off a board
// with the same code that wrote it.
package dap

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Debug port registers (A[3:2])
const (
	DPIDR    = 0x00 // read
	DPAbort  = 0x00 // write
	CtrlStat = 0x04
	Select   = 0x08
	RDBuff   = 0x0C
)

// ABORT bits
const (
	AbortDAPAbort   = 1 << 0
	AbortStkCmpClr  = 1 << 1
	AbortStkErrClr  = 1 << 2
	AbortWdErrClr   = 1 << 3
	AbortOrunErrClr = 1 << 4

	abortClearAll = AbortStkCmpClr | AbortStkErrClr | AbortWdErrClr | AbortOrunErrClr
)

// CTRL/STAT bits
const (
	CtrlStickyErr    = 1 << 5
	CtrlCDbgPwrUpReq = 1 << 28
	CtrlCDbgPwrUpAck = 1 << 29
	CtrlCSysPwrUpReq = 1 << 30
	CtrlCSysPwrUpAck = 1 << 31
)

// MEM-AP registers, bank in SELECT[7:4]
const (
	APCSW = 0x00
	APTAR = 0x04
	APDRW = 0x0C
	APIDR = 0xFC
)

// CSW fields
const (
	CSWSize32   = 0x2
	CSWSizeMask = 0x7
	// HPROT privileged data access, master type debug
	CSWProt = 0x23000000

	CSWDefault = CSWProt | CSWSize32
)

// ProbeInfo describes a connected probe and what it found on the wire.
type ProbeInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	SpeedHz      int
	DPIDR        uint32 // SW-DP IDCODE
	APIDR        uint32 // MEM-AP identification
}

func (i ProbeInfo) String() string {
	s := i.Name
	if i.Vendor != "" || i.Model != "" {
		s = fmt.Sprintf("%s (%s %s)", s, i.Vendor, i.Model)
	}
	if i.SerialNumber != "" {
		s += " serial " + i.SerialNumber
	}
	return s
}

// Probe is a debug probe attached to a target's memory bus.
type Probe interface {
	mmio.Bus
	Info() ProbeInfo
	ResetTarget() error
	Close() error
}

// requestSystemReset asks the core for a system reset through AIRCR. The
// reset may cut the bus before the write is acknowledged.
func requestSystemReset(bus mmio.Bus) error {
	if err := bus.WriteWord(mmio.AIRCR, mmio.AIRCRVectKey|mmio.AIRCRSysResetReq); err != nil {
		return fmt.Errorf("dap: request reset: %w", err)
	}
	return nil
}
