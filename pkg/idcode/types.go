// Package idcode decodes the identification registers of Arm debug targets:
// the core's CPUID, the SW-DP IDCODE and the STM32 DBGMCU device ID.
package idcode

// IDCode is a parsed DP IDCODE. The layout matches an IEEE 1149.1 IDCODE.
type IDCode struct {
	Raw              uint32 // full IDCODE
	Version          uint8  // [31:28]
	PartNumber       uint16 // [27:12]
	ManufacturerCode uint16 // [11:1] JEP106
	HasIDCode        bool   // bit 0 == 1
}

// Manufacturer represents a JEP106 manufacturer entry
type Manufacturer struct {
	Code         uint16 // JEP106 code
	Name         string // "STMicroelectronics"
	Abbreviation string // "STM"
}

// CPUID is the parsed SCB CPUID register.
type CPUID struct {
	Raw         uint32
	Implementer uint8  // [31:24], 0x41 = Arm
	Variant     uint8  // [23:20]
	PartNo      uint16 // [15:4]
	Revision    uint8  // [3:0]
}

// Target summarises what Identify found.
type Target struct {
	CPUID CPUID
	Core  string // "Cortex-M4"

	// DevID and RevID come from the STM32 DBGMCU_IDCODE register and are
	// zero on other vendors' parts.
	DevID uint16
	RevID uint16
}
