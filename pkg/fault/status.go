package fault

import "fmt"

// Registers holds the raw fault register values read at decode time. MMFAR and
// BFAR are zero unless their validity bit was set: an invalid fault address
// register holds stale data and is never read.
type Registers struct {
	CFSR  uint32
	HFSR  uint32
	DFSR  uint32
	AFSR  uint32
	MMFAR uint32
	BFAR  uint32
}

// MMFSR returns the MemManage sub-status (CFSR bits 0-7).
func (r Registers) MMFSR() uint8 { return uint8(r.CFSR) }

// BFSR returns the BusFault sub-status (CFSR bits 8-15).
func (r Registers) BFSR() uint8 { return uint8(r.CFSR >> 8) }

// UFSR returns the UsageFault sub-status (CFSR bits 16-31).
func (r Registers) UFSR() uint16 { return uint16(r.CFSR >> 16) }

// MMFARValid reports whether MMFAR holds the faulting address.
func (r Registers) MMFARValid() bool { return r.CFSR&MMARVALID != 0 }

// BFARValid reports whether BFAR holds the faulting address.
func (r Registers) BFARValid() bool { return r.CFSR&BFARVALID != 0 }

// Status is the decoded view of the fault registers.
type Status struct {
	Category Category

	// Address is meaningful only when AddressValid is set. It is the MMFAR
	// value for protection faults and the BFAR value for access faults.
	Address      uint32
	AddressValid bool

	Forced      bool // HFSR.FORCED: escalated from a configurable fault
	VectorTable bool // HFSR.VECTTBL: vector fetch failed
	DebugEvent  bool // HFSR.DEBUGEVT

	Raw Registers
}

// AddressString renders the faulting address, or "n/a" when the hardware did
// not provide one.
func (s Status) AddressString() string {
	if !s.AddressValid {
		return "n/a"
	}
	return fmt.Sprintf("0x%08X", s.Address)
}

// Reasons lists the names of every status bit that is set.
func (s Status) Reasons() []string {
	var out []string
	for _, b := range cfsrBits {
		if s.Raw.CFSR&b.mask != 0 {
			out = append(out, b.name)
		}
	}
	for _, b := range hfsrBits {
		if s.Raw.HFSR&b.mask != 0 {
			out = append(out, b.name)
		}
	}
	return out
}

// Err returns the status as an error, or nil when no fault is recorded.
func (s Status) Err() error {
	if s.Category == CategoryNone {
		return nil
	}
	return &Error{Status: s}
}

func (s Status) String() string {
	return fmt.Sprintf("%s addr=%s cfsr=0x%08X hfsr=0x%08X", s.Category, s.AddressString(), s.Raw.CFSR, s.Raw.HFSR)
}
