package deviceinfo

import "github.com/OpenTraceLab/OpenTraceFault/pkg/idcode"

// DeviceInfo describes an MCU family identified by its DBGMCU device ID.
type DeviceInfo struct {
	// Key fields
	DevID        uint16
	Manufacturer idcode.Manufacturer

	// Human-friendly
	Name        string // "STM32L47x/L48x"
	Family      string // "STM32L4"
	Description string // "Arm Cortex-M4 MCU with FPU"

	ARMCore string // "Cortex-M4"

	// RetainedRAM is SRAM that keeps its contents across a system reset
	// and is the natural home of a core dump. Zero when the part has none
	// beyond main SRAM.
	RetainedRAMOrigin uint32
	RetainedRAMSize   uint32

	Known bool
}
