package linker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

var (
	// ErrSectionNotFound is returned when the script has no such output
	// section.
	ErrSectionNotFound = errors.New("linker: section not found")
	// ErrNotNoLoad is returned when a section that must survive reset is
	// not marked (NOLOAD), so startup code or the loader would initialise it.
	ErrNotNoLoad = errors.New("linker: section is not NOLOAD")
	// ErrNoRegion is returned when a section is not placed with >REGION.
	ErrNoRegion = errors.New("linker: section not placed in a memory region")
	// ErrSharesBSS is returned when a section lives in the memory region the
	// startup code zero-fills.
	ErrSharesBSS = errors.New("linker: section shares a memory region with .bss")
	// ErrAddressUnknown is returned when the address of a section cannot be
	// derived without laying out the sections before it.
	ErrAddressUnknown = errors.New("linker: section address depends on preceding sections")
)

// Section is an output section with the properties the checks need.
type Section struct {
	Name       string
	Type       string // "NOLOAD", "" for a normal section
	Region     string
	LoadRegion string
	Address    string // explicit VMA, if any
	Inputs     []string
}

// NoLoad reports whether the section is marked (NOLOAD).
func (s *Section) NoLoad() bool {
	return strings.EqualFold(s.Type, "NOLOAD")
}

// Script is a parsed linker script.
type Script struct {
	File *File

	memory   []mmio.Region
	sections []*Section
	symbols  map[string]uint64
}

func newScript(f *File) (*Script, error) {
	s := &Script{File: f, symbols: make(map[string]uint64)}
	for _, cmd := range f.Commands {
		switch {
		case cmd.Memory != nil:
			for _, r := range cmd.Memory.Regions {
				origin, err := r.Origin.eval(s)
				if err != nil {
					return nil, fmt.Errorf("linker: region %s origin: %w", r.Name, err)
				}
				length, err := r.Length.eval(s)
				if err != nil {
					return nil, fmt.Errorf("linker: region %s length: %w", r.Name, err)
				}
				if origin+length > 1<<32 {
					return nil, fmt.Errorf("linker: region %s exceeds the 32-bit address space", r.Name)
				}
				s.memory = append(s.memory, mmio.Region{Name: r.Name, Origin: uint32(origin), Length: uint32(length)})
			}
		case cmd.Sections != nil:
			for _, item := range cmd.Sections.Items {
				if item.Section != nil {
					s.sections = append(s.sections, newSection(item.Section))
				}
			}
		case cmd.Other != nil && cmd.Other.Assign != nil:
			a := cmd.Other.Assign
			if a.Op != "=" || len(a.Rest) != 0 {
				continue
			}
			// Symbols that depend on the layout simply stay unknown.
			if v, err := a.Value.eval(s); err == nil {
				s.symbols[a.Symbol] = v
			}
		}
	}
	return s, nil
}

func newSection(o *OutputSection) *Section {
	sec := &Section{
		Name:       o.Name,
		Type:       o.Type,
		Region:     o.Region,
		LoadRegion: o.LoadRegion,
		Address:    o.Address,
	}
	// Input section descriptions look like *(.name) or KEEP(*(.name*)):
	// section names inside parentheses.
	var walk func(b *Body)
	walk = func(b *Body) {
		depth := 0
		for _, item := range b.Items {
			switch {
			case item.Block != nil:
				walk(item.Block)
			case item.Text == "(":
				depth++
			case item.Text == ")":
				depth--
			case depth > 0 && len(item.Text) > 1 && item.Text[0] == '.':
				sec.Inputs = append(sec.Inputs, item.Text)
			}
		}
	}
	walk(o.Body)
	return sec
}

func (s *Script) region(name string) (uint64, uint64, bool) {
	r, ok := s.Memory(name)
	return uint64(r.Origin), uint64(r.Length), ok
}

func (s *Script) symbol(name string) (uint64, bool) {
	v, ok := s.symbols[name]
	return v, ok
}

// MemoryRegions returns the regions of the MEMORY command in script order.
func (s *Script) MemoryRegions() []mmio.Region {
	return append([]mmio.Region(nil), s.memory...)
}

// Memory looks up a memory region by name.
func (s *Script) Memory(name string) (mmio.Region, bool) {
	for _, r := range s.memory {
		if r.Name == name {
			return r, true
		}
	}
	return mmio.Region{}, false
}

// Sections returns the output sections in script order.
func (s *Script) Sections() []*Section {
	return append([]*Section(nil), s.sections...)
}

// Section looks up an output section by name.
func (s *Script) Section(name string) (*Section, bool) {
	for _, sec := range s.sections {
		if sec.Name == name {
			return sec, true
		}
	}
	return nil, false
}

// Symbol returns the value of a top-level symbol assignment that does not
// depend on the layout.
func (s *Script) Symbol(name string) (uint64, bool) {
	return s.symbol(name)
}

// DumpRegion returns the address range a core dump section occupies. The
// address is known without a link when the section gives it explicitly or is
// the first one placed in its memory region; the length is what remains of
// the region from there.
func (s *Script) DumpRegion(section string) (mmio.Region, error) {
	sec, ok := s.Section(section)
	if !ok {
		return mmio.Region{}, fmt.Errorf("%w: %s", ErrSectionNotFound, section)
	}
	if sec.Region == "" {
		return mmio.Region{}, fmt.Errorf("%w: %s", ErrNoRegion, section)
	}
	mem, ok := s.Memory(sec.Region)
	if !ok {
		return mmio.Region{}, fmt.Errorf("linker: section %s placed in undefined region %s", section, sec.Region)
	}

	if sec.Address != "" {
		addr, err := parseNumber(sec.Address)
		if err != nil {
			return mmio.Region{}, fmt.Errorf("linker: section %s address: %w", section, err)
		}
		if addr < uint64(mem.Origin) || addr >= mem.End() {
			return mmio.Region{}, fmt.Errorf("linker: section %s at 0x%08X lies outside %s", section, addr, sec.Region)
		}
		return mmio.Region{Name: section, Origin: uint32(addr), Length: uint32(mem.End() - addr)}, nil
	}

	for _, other := range s.sections {
		if other == sec {
			break
		}
		if other.Region == sec.Region {
			return mmio.Region{}, fmt.Errorf("%w: %s follows %s in %s", ErrAddressUnknown, section, other.Name, sec.Region)
		}
	}
	return mmio.Region{Name: section, Origin: mem.Origin, Length: mem.Length}, nil
}

// VerifyNoInit checks that section survives a warm reset: it exists, is
// NOLOAD, is placed in a memory region, and that region is not the one the
// startup code clears for .bss.
func (s *Script) VerifyNoInit(section string) error {
	sec, ok := s.Section(section)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, section)
	}
	if !sec.NoLoad() {
		return fmt.Errorf("%w: %s", ErrNotNoLoad, section)
	}
	if sec.Region == "" {
		return fmt.Errorf("%w: %s", ErrNoRegion, section)
	}
	if _, ok := s.Memory(sec.Region); !ok {
		return fmt.Errorf("linker: section %s placed in undefined region %s", section, sec.Region)
	}
	if bss, ok := s.Section(".bss"); ok && bss.Region == sec.Region {
		return fmt.Errorf("%w: %s and .bss are both in %s", ErrSharesBSS, section, sec.Region)
	}
	return nil
}
