package idcode

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Identify reads CPUID and, when it answers, the STM32 DBGMCU_IDCODE.
func Identify(bus mmio.Bus) (Target, error) {
	raw, err := bus.ReadWord(mmio.CPUID)
	if err != nil {
		return Target{}, fmt.Errorf("idcode: read CPUID: %w", err)
	}
	t := Target{CPUID: ParseCPUID(raw)}
	t.Core = t.CPUID.Core()

	// Not every vendor implements DBGMCU; a failed read is not an error.
	if dev, err := bus.ReadWord(mmio.DBGMCUIDCode); err == nil {
		t.DevID = uint16(dev & 0xFFF)
		t.RevID = uint16(dev >> 16)
	}
	return t, nil
}
