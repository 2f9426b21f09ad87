package idcode

import "fmt"

// ParseIDCode parses a raw 32-bit DP IDCODE into its component fields
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8((raw >> 28) & 0xF),
		PartNumber:       uint16((raw >> 12) & 0xFFFF),
		ManufacturerCode: uint16((raw >> 1) & 0x7FF),
		HasIDCode:        (raw & 0x1) == 0x1,
	}
}

// ParseCPUID splits the CPUID register.
func ParseCPUID(raw uint32) CPUID {
	return CPUID{
		Raw:         raw,
		Implementer: uint8(raw >> 24),
		Variant:     uint8((raw >> 20) & 0xF),
		PartNo:      uint16((raw >> 4) & 0xFFF),
		Revision:    uint8(raw & 0xF),
	}
}

// String renders the revision the way Arm documents it, e.g. "r0p1".
func (c CPUID) String() string {
	return fmt.Sprintf("%s r%dp%d", c.Core(), c.Variant, c.Revision)
}

var armCores = map[uint16]string{
	0xC20: "Cortex-M0",
	0xC60: "Cortex-M0+",
	0xC21: "Cortex-M1",
	0xC23: "Cortex-M3",
	0xC24: "Cortex-M4",
	0xC27: "Cortex-M7",
	0xD20: "Cortex-M23",
	0xD21: "Cortex-M33",
	0xD22: "Cortex-M55",
	0xD23: "Cortex-M85",
}

// Core names the processor, or "unknown" for parts this table lacks.
func (c CPUID) Core() string {
	if c.Implementer != 0x41 {
		return fmt.Sprintf("unknown (implementer 0x%02X)", c.Implementer)
	}
	if name, ok := armCores[c.PartNo]; ok {
		return name
	}
	return fmt.Sprintf("unknown (part 0x%03X)", c.PartNo)
}

// HasConfigurableFaults reports whether the core implements CFSR, MMFAR and
// BFAR. ARMv6-M and ARMv8-M Baseline cores only have HardFault.
func (c CPUID) HasConfigurableFaults() bool {
	switch c.PartNo {
	case 0xC20, 0xC60, 0xC21, 0xD20:
		return false
	}
	return c.Implementer == 0x41
}
