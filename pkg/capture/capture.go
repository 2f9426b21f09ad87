package capture

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Capture reads the exception frame described by entry. The frame must be
// word aligned and lie entirely within one of the ram regions; nothing
// outside them is dereferenced.
func Capture(bus mmio.Bus, entry Entry, ram []mmio.Region) (Frame, error) {
	if !entry.ExcReturn.Valid() {
		return Frame{}, fmt.Errorf("%w: 0x%08X", ErrBadExcReturn, uint32(entry.ExcReturn))
	}

	stack, sp := entry.Stack()
	f := Frame{
		Stack:    stack,
		Address:  sp,
		Extended: entry.ExcReturn.ExtendedFrame(),
	}

	if sp%mmio.WordSize != 0 || !inRAM(ram, sp, f.Size()) {
		return Frame{}, fmt.Errorf("%w: %s=0x%08X", ErrFrameOutOfRange, stack, sp)
	}

	// Read word by word into fixed fields; no intermediate buffers.
	regs := [FrameWords]*uint32{&f.R0, &f.R1, &f.R2, &f.R3, &f.R12, &f.LR, &f.ReturnAddress, &f.XPSR}
	for i, dst := range regs {
		v, err := bus.ReadWord(sp + uint32(i*mmio.WordSize))
		if err != nil {
			return Frame{}, fmt.Errorf("capture: read stacked word %d: %w", i, err)
		}
		*dst = v
	}

	return f, nil
}

func inRAM(ram []mmio.Region, addr, size uint32) bool {
	for _, r := range ram {
		if r.Contains(addr, size) {
			return true
		}
	}
	return false
}
