package fault

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Decoder reads the fault status registers through a bus. It never writes:
// clearing the sticky status bits belongs to whoever decides what happens
// next.
type Decoder struct {
	bus mmio.Bus
	cfg Config
}

// NewDecoder validates cfg and returns a decoder bound to bus.
func NewDecoder(bus mmio.Bus, cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{bus: bus, cfg: cfg}, nil
}

// Config returns the validated decoder configuration.
func (d *Decoder) Config() Config {
	return d.cfg
}

// Decode reads CFSR, HFSR, DFSR and AFSR, then MMFAR and BFAR only when their
// validity bits say they hold a fault address.
func (d *Decoder) Decode() (Status, error) {
	var regs Registers
	var err error

	if regs.CFSR, err = d.bus.ReadWord(mmio.CFSR); err != nil {
		return Status{}, fmt.Errorf("fault: read CFSR: %w", err)
	}
	if regs.HFSR, err = d.bus.ReadWord(mmio.HFSR); err != nil {
		return Status{}, fmt.Errorf("fault: read HFSR: %w", err)
	}
	if regs.DFSR, err = d.bus.ReadWord(mmio.DFSR); err != nil {
		return Status{}, fmt.Errorf("fault: read DFSR: %w", err)
	}
	if regs.AFSR, err = d.bus.ReadWord(mmio.AFSR); err != nil {
		return Status{}, fmt.Errorf("fault: read AFSR: %w", err)
	}
	if regs.MMFARValid() {
		if regs.MMFAR, err = d.bus.ReadWord(mmio.MMFAR); err != nil {
			return Status{}, fmt.Errorf("fault: read MMFAR: %w", err)
		}
	}
	if regs.BFARValid() {
		if regs.BFAR, err = d.bus.ReadWord(mmio.BFAR); err != nil {
			return Status{}, fmt.Errorf("fault: read BFAR: %w", err)
		}
	}

	return DecodeRegisters(regs, d.cfg), nil
}

// DecodeRegisters classifies raw register values. Fault address registers
// whose validity bit is clear are discarded, whatever they contain. cfg need
// not be validated: categories its priority list leaves out keep their
// default rank after the listed ones.
func DecodeRegisters(regs Registers, cfg Config) Status {
	if !regs.MMFARValid() {
		regs.MMFAR = 0
	}
	if !regs.BFARValid() {
		regs.BFAR = 0
	}

	s := Status{
		Forced:      regs.HFSR&FORCED != 0,
		VectorTable: regs.HFSR&VECTTBL != 0,
		DebugEvent:  regs.HFSR&DEBUGEVT != 0,
		Raw:         regs,
	}

	present := candidates(regs, cfg.SeparateAlignment)
	if len(present) == 0 {
		if regs.HFSR == 0 {
			s.Category = CategoryNone
			return s
		}
		s.Category = CategoryEscalated
		return s
	}

	// Categories missing from an unvalidated priority list rank after it in
	// default order, as Validate would have placed them.
	s.Category = CategoryEscalated
	for _, list := range [][]Category{cfg.Priority, DefaultPriority()} {
		if cat, ok := first(list, present); ok {
			s.Category = cat
			break
		}
	}

	switch {
	case s.Category == CategoryProtection && regs.MMFARValid():
		s.Address, s.AddressValid = regs.MMFAR, true
	case s.Category == CategoryAccess && regs.BFARValid():
		s.Address, s.AddressValid = regs.BFAR, true
	}
	return s
}

func first(priority []Category, present map[Category]bool) (Category, bool) {
	for _, cat := range priority {
		if present[cat] {
			return cat, true
		}
	}
	return CategoryNone, false
}

func candidates(regs Registers, separateAlignment bool) map[Category]bool {
	present := make(map[Category]bool, 4)
	if regs.CFSR&protectionMask != 0 {
		present[CategoryProtection] = true
	}
	if regs.CFSR&accessMask != 0 {
		present[CategoryAccess] = true
	}
	if regs.CFSR&usageMask != 0 {
		present[CategoryUndefinedInstruction] = true
	}
	if regs.CFSR&UNALIGNED != 0 {
		if separateAlignment {
			present[CategoryAlignment] = true
		} else {
			present[CategoryAccess] = true
		}
	}
	return present
}

// Clear acknowledges the fault by writing the set bits back to CFSR and HFSR,
// which are write-one-to-clear.
func Clear(bus mmio.Bus, regs Registers) error {
	if regs.CFSR != 0 {
		if err := bus.WriteWord(mmio.CFSR, regs.CFSR); err != nil {
			return fmt.Errorf("fault: clear CFSR: %w", err)
		}
	}
	if regs.HFSR != 0 {
		if err := bus.WriteWord(mmio.HFSR, regs.HFSR); err != nil {
			return fmt.Errorf("fault: clear HFSR: %w", err)
		}
	}
	return nil
}
