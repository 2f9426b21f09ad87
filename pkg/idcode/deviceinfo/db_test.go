package deviceinfo

import (
	"testing"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/idcode"
)

func TestLookupSTM32(t *testing.T) {
	info := LookupSTM32(0x415)
	if !info.Known || info.Family != "STM32L4" {
		t.Fatalf("LookupSTM32(0x415) = %+v", info)
	}
	if info.RetainedRAMOrigin != 0x10000000 || info.RetainedRAMSize != 32<<10 {
		t.Fatalf("retained RAM = 0x%08X+%d", info.RetainedRAMOrigin, info.RetainedRAMSize)
	}
	if info.Manufacturer.Abbreviation != "STM" {
		t.Fatalf("manufacturer = %+v", info.Manufacturer)
	}

	unknown := LookupSTM32(0xFFF)
	if unknown.Known {
		t.Fatalf("unknown DEV_ID reported as known")
	}
}

func TestDescribe(t *testing.T) {
	info := Describe(idcode.Target{Core: "Cortex-M33"})
	if info.Known || info.ARMCore != "Cortex-M33" {
		t.Fatalf("Describe without DEV_ID = %+v", info)
	}
	info = Describe(idcode.Target{Core: "Cortex-M4", DevID: 0x435})
	if info.Name != "STM32L43x/L44x" {
		t.Fatalf("Describe = %+v", info)
	}
}
