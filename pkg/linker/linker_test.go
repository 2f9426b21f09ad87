package linker

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseSTM32Script(t *testing.T) {
	s, err := ParseFile(filepath.Join("testdata", "STM32L476RGTX_FLASH.ld"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	regions := s.MemoryRegions()
	if len(regions) != 3 {
		t.Fatalf("regions = %d, want 3", len(regions))
	}
	ram2, ok := s.Memory("RAM2")
	if !ok {
		t.Fatalf("RAM2 missing")
	}
	if ram2.Origin != 0x10000000 || ram2.Length != 32<<10 {
		t.Fatalf("RAM2 = %s", ram2)
	}
	flash, _ := s.Memory("FLASH")
	if flash.Origin != 0x08000000 || flash.Length != 1<<20 {
		t.Fatalf("FLASH = %s", flash)
	}

	data, ok := s.Section(".data")
	if !ok || data.Region != "RAM" || data.LoadRegion != "FLASH" {
		t.Fatalf(".data = %+v", data)
	}
	attrs, ok := s.Section(".ARM.attributes")
	if !ok || attrs.Address != "0" {
		t.Fatalf(".ARM.attributes = %+v", attrs)
	}
	if _, ok := s.Section("/DISCARD/"); !ok {
		t.Fatalf("/DISCARD/ missing")
	}
	dump, _ := s.Section(".CoreDump")
	if len(dump.Inputs) != 1 || dump.Inputs[0] != ".CoreDump" {
		t.Fatalf(".CoreDump inputs = %v", dump.Inputs)
	}

	if v, ok := s.Symbol("_Min_Heap_Size"); !ok || v != 0x200 {
		t.Fatalf("_Min_Heap_Size = 0x%X, %v", v, ok)
	}
}

func TestVerifyNoInitOK(t *testing.T) {
	s, err := ParseFile(filepath.Join("testdata", "STM32L476RGTX_FLASH.ld"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if err := s.VerifyNoInit(".CoreDump"); err != nil {
		t.Fatalf("VerifyNoInit: %v", err)
	}
	r, err := s.DumpRegion(".CoreDump")
	if err != nil {
		t.Fatalf("DumpRegion: %v", err)
	}
	if r.Origin != 0x10000000 || r.Length != 32<<10 {
		t.Fatalf("DumpRegion = %s", r)
	}
}

const scriptHeader = `
MEMORY
{
  RAM  (xrw) : ORIGIN = 0x20000000, LENGTH = 96K
  RAM2 (xrw) : ORIGIN = 0x10000000, LENGTH = 0x8000
}
`

func TestVerifyNoInitErrors(t *testing.T) {
	cases := []struct {
		name     string
		sections string
		want     error
	}{
		{
			name:     "missing",
			sections: `.bss : { *(.bss) } >RAM`,
			want:     ErrSectionNotFound,
		},
		{
			name:     "loaded",
			sections: `.CoreDump : { *(.CoreDump) } >RAM2`,
			want:     ErrNotNoLoad,
		},
		{
			name:     "shares bss region",
			sections: ".bss : { *(.bss) } >RAM\n.CoreDump (NOLOAD) : { *(.CoreDump) } >RAM",
			want:     ErrSharesBSS,
		},
		{
			name:     "no region",
			sections: `.CoreDump (NOLOAD) : { *(.CoreDump) }`,
			want:     ErrNoRegion,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseString(scriptHeader + "SECTIONS\n{\n" + tc.sections + "\n}\n")
			if err != nil {
				t.Fatalf("ParseString: %v", err)
			}
			if err := s.VerifyNoInit(".CoreDump"); !errors.Is(err, tc.want) {
				t.Fatalf("VerifyNoInit = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDumpRegionAfterAnotherSection(t *testing.T) {
	s, err := ParseString(scriptHeader + `
SECTIONS
{
  .sram2_text : { *(.sram2_text) } >RAM2
  .CoreDump (NOLOAD) : { *(.CoreDump) } >RAM2
}
`)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	if _, err := s.DumpRegion(".CoreDump"); !errors.Is(err, ErrAddressUnknown) {
		t.Fatalf("DumpRegion = %v, want ErrAddressUnknown", err)
	}
}

func TestDumpRegionExplicitAddress(t *testing.T) {
	cases := []struct {
		name       string
		sections   string
		wantOrigin uint32
		wantLength uint32
		wantErr    bool
	}{
		{
			name:       "first in region",
			sections:   `.CoreDump 0x10000100 (NOLOAD) : { *(.CoreDump) } >RAM2`,
			wantOrigin: 0x10000100,
			wantLength: 0x8000 - 0x100,
		},
		{
			name:       "after another section",
			sections:   ".sram2_text : { *(.sram2_text) } >RAM2\n.CoreDump 0x10004000 (NOLOAD) : { *(.CoreDump) } >RAM2",
			wantOrigin: 0x10004000,
			wantLength: 0x4000,
		},
		{
			name:     "outside region",
			sections: `.CoreDump 0x20000000 (NOLOAD) : { *(.CoreDump) } >RAM2`,
			wantErr:  true,
		},
		{
			name:     "past region end",
			sections: `.CoreDump 0x10008000 (NOLOAD) : { *(.CoreDump) } >RAM2`,
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseString(scriptHeader + "SECTIONS\n{\n" + tc.sections + "\n}\n")
			if err != nil {
				t.Fatalf("ParseString: %v", err)
			}
			r, err := s.DumpRegion(".CoreDump")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("DumpRegion = %s, want error", r)
				}
				return
			}
			if err != nil {
				t.Fatalf("DumpRegion: %v", err)
			}
			if r.Origin != tc.wantOrigin || r.Length != tc.wantLength {
				t.Fatalf("DumpRegion = [0x%08X+0x%X), want [0x%08X+0x%X)", r.Origin, r.Length, tc.wantOrigin, tc.wantLength)
			}
		})
	}
}

func TestMemoryExpressions(t *testing.T) {
	s, err := ParseString(`
_ram_base = 0x20000000;
MEMORY
{
  RAM   (xrw) : ORIGIN = _ram_base, LENGTH = 128K - 4K
  NOINIT (rw) : ORIGIN = ORIGIN(RAM) + LENGTH(RAM), LENGTH = 4K
  FLASH (rx)  : org = 0x08000000, len = 2 * 512K
}
_estack = ORIGIN(RAM) + LENGTH(RAM);
_tern = DEFINED(_x) ? _x : 1K;
`)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	noinit, ok := s.Memory("NOINIT")
	if !ok || noinit.Origin != 0x2001F000 || noinit.Length != 0x1000 {
		t.Fatalf("NOINIT = %s", noinit)
	}
	flash, _ := s.Memory("FLASH")
	if flash.Length != 1<<20 {
		t.Fatalf("FLASH length = 0x%X", flash.Length)
	}
	if v, ok := s.Symbol("_estack"); !ok || v != 0x2001F000 {
		t.Fatalf("_estack = 0x%X, %v", v, ok)
	}
	if _, ok := s.Symbol("_tern"); ok {
		t.Fatalf("ternary evaluated")
	}
}

func TestParseError(t *testing.T) {
	if _, err := ParseString("MEMORY { RAM : ORIGIN = }"); err == nil {
		t.Fatalf("ParseString accepted a broken MEMORY block")
	}
}

func TestParseNumber(t *testing.T) {
	cases := map[string]uint64{
		"0x20000000": 0x20000000,
		"96K":        96 << 10,
		"1M":         1 << 20,
		"0x10k":      0x4000,
		"42":         42,
	}
	for in, want := range cases {
		got, err := parseNumber(in)
		if err != nil || got != want {
			t.Errorf("parseNumber(%q) = 0x%X, %v; want 0x%X", in, got, err, want)
		}
	}
}
