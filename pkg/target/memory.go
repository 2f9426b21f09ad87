package target

import "github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"

// Memory map of an STM32L4-class part.
var (
	Flash = mmio.Region{Name: "FLASH", Origin: 0x08000000, Length: 1 << 20}
	SRAM1 = mmio.Region{Name: "RAM", Origin: 0x20000000, Length: 96 << 10}
	SRAM2 = mmio.Region{Name: "RAM2", Origin: 0x10000000, Length: 32 << 10}

	// BootAlias mirrors flash at address zero after a boot from main flash.
	BootAlias = mmio.Region{Name: "BOOT", Origin: 0x00000000, Length: 1 << 20}

	// SystemSpace (0xE0000000 and up) is execute-never in the default
	// memory map.
	SystemSpace = mmio.Region{Name: "SYSTEM", Origin: 0xE0000000, Length: 0x20000000}
)

// Layout places the firmware's RAM sections. Data and BSS are zeroed by the
// startup code on every reset; NoInit is left alone.
type Layout struct {
	Data     mmio.Region
	BSS      mmio.Region
	NoInit   mmio.Region
	MainTop  uint32 // initial MSP
	ThreadSP uint32 // initial PSP for thread code using the process stack
}

// DefaultLayout keeps the core dump in SRAM2, outside the zero-filled
// sections.
func DefaultLayout() Layout {
	return Layout{
		Data:     mmio.Region{Name: ".data", Origin: 0x20000000, Length: 0x400},
		BSS:      mmio.Region{Name: ".bss", Origin: 0x20000400, Length: 0x1000},
		NoInit:   mmio.Region{Name: ".CoreDump", Origin: 0x10000000, Length: 0x40},
		MainTop:  0x20018000,
		ThreadSP: 0x20010000,
	}
}

// RAM lists the regions a stacked frame may legitimately live in.
func RAM() []mmio.Region {
	return []mmio.Region{SRAM1, SRAM2}
}

func mapped(addr uint32) bool {
	for _, r := range []mmio.Region{Flash, SRAM1, SRAM2, BootAlias, mmio.SCB} {
		if r.Contains(addr, 1) {
			return true
		}
	}
	return false
}

func writable(addr uint32) bool {
	return SRAM1.Contains(addr, 1) || SRAM2.Contains(addr, 1)
}

func readOnly(addr uint32) bool {
	return Flash.Contains(addr, 1) || BootAlias.Contains(addr, 1)
}
