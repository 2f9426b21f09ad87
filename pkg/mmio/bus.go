package mmio

import (
	"errors"
	"fmt"
)

// Bus abstracts 32-bit access to a target's memory-mapped address space. It is
// the only way the fault core touches hardware addresses: on-target builds
// back it with volatile loads/stores, host tools back it with a debug probe's
// MEM-AP, and tests back it with a SimBus.
type Bus interface {
	ReadWord(addr uint32) (uint32, error)
	WriteWord(addr uint32, value uint32) error
}

var (
	// ErrUnaligned is returned for word accesses on a non word-aligned address.
	ErrUnaligned = errors.New("mmio: unaligned word access")
	// ErrBusFault is returned when an access hits memory that does not respond.
	ErrBusFault = errors.New("mmio: bus fault")
)

// WordSize is the access width of every Bus operation, in bytes.
const WordSize = 4

// Region is a named, contiguous span of the target address space.
type Region struct {
	Name   string
	Origin uint32
	Length uint32
}

// End returns the first address past the region, widened to 64 bits so a
// region reaching the top of the address space does not wrap.
func (r Region) End() uint64 {
	return uint64(r.Origin) + uint64(r.Length)
}

// Contains reports whether [addr, addr+size) lies entirely inside the region.
func (r Region) Contains(addr, size uint32) bool {
	if addr < r.Origin {
		return false
	}
	return uint64(addr)+uint64(size) <= r.End()
}

// Overlaps reports whether the two regions share at least one byte.
func (r Region) Overlaps(o Region) bool {
	return uint64(r.Origin) < o.End() && uint64(o.Origin) < r.End()
}

func (r Region) String() string {
	name := r.Name
	if name == "" {
		name = "region"
	}
	return fmt.Sprintf("%s [0x%08X-0x%08X)", name, r.Origin, r.End())
}

// CheckAligned validates a word address.
func CheckAligned(addr uint32) error {
	if addr%WordSize != 0 {
		return fmt.Errorf("%w at 0x%08X", ErrUnaligned, addr)
	}
	return nil
}

// ReadWords reads n consecutive words starting at addr.
func ReadWords(bus Bus, addr uint32, n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := bus.ReadWord(addr + uint32(i*WordSize))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteWords writes words to consecutive addresses starting at addr.
func WriteWords(bus Bus, addr uint32, words []uint32) error {
	for i, w := range words {
		if err := bus.WriteWord(addr+uint32(i*WordSize), w); err != nil {
			return err
		}
	}
	return nil
}
