package coredump

import (
	"encoding/binary"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Store reads and writes the record in a reserved region of target RAM. The
// region must be excluded from the startup zero-fill or the record will not
// survive the reset that follows a fault.
//
// There is one writer (the fault handler) and one reader (boot diagnostics),
// never active at the same time, so no locking is done.
type Store struct {
	bus    mmio.Bus
	region mmio.Region
}

// NewStore binds a store to region on bus.
func NewStore(bus mmio.Bus, region mmio.Region) (*Store, error) {
	if err := mmio.CheckAligned(region.Origin); err != nil {
		return nil, fmt.Errorf("coredump: region %s: %w", region, err)
	}
	if region.Length < RecordSize {
		return nil, fmt.Errorf("coredump: region %s smaller than %d bytes", region, RecordSize)
	}
	return &Store{bus: bus, region: region}, nil
}

// Region returns the region the store uses.
func (s *Store) Region() mmio.Region {
	return s.region
}

// Write overwrites any previous record. The payload is written before the key
// so a write cut short by power loss never reads back as valid.
func (s *Store) Write(rec Record) error {
	w := rec.words()
	if err := s.bus.WriteWord(s.region.Origin+offKey, 0); err != nil {
		return fmt.Errorf("coredump: invalidate: %w", err)
	}
	for i := 1; i < len(w); i++ {
		if err := s.bus.WriteWord(s.region.Origin+uint32(i*4), w[i]); err != nil {
			return fmt.Errorf("coredump: write word %d: %w", i, err)
		}
	}
	if err := s.bus.WriteWord(s.region.Origin+offKey, Key); err != nil {
		return fmt.Errorf("coredump: write key: %w", err)
	}
	return nil
}

// Read returns the stored record. ok is false when the key does not match,
// in which case nothing past the key is read.
func (s *Store) Read() (rec Record, ok bool, err error) {
	key, err := s.bus.ReadWord(s.region.Origin + offKey)
	if err != nil {
		return Record{}, false, fmt.Errorf("coredump: read key: %w", err)
	}
	if key != Key {
		return Record{}, false, nil
	}
	var w [recordWords]uint32
	w[0] = key
	for i := 1; i < len(w); i++ {
		if w[i], err = s.bus.ReadWord(s.region.Origin + uint32(i*4)); err != nil {
			return Record{}, false, fmt.Errorf("coredump: read word %d: %w", i, err)
		}
	}
	return fromWords(w), true, nil
}

// Invalidate clobbers the key so the record is not reported again.
func (s *Store) Invalidate() error {
	if err := s.bus.WriteWord(s.region.Origin+offKey, 0); err != nil {
		return fmt.Errorf("coredump: invalidate: %w", err)
	}
	return nil
}

// Raw returns the region's first RecordSize bytes exactly as stored, in the
// given byte order, for saving to a dump file.
func (s *Store) Raw(order binary.ByteOrder) ([]byte, error) {
	words, err := mmio.ReadWords(s.bus, s.region.Origin, recordWords)
	if err != nil {
		return nil, fmt.Errorf("coredump: raw read: %w", err)
	}
	buf := make([]byte, RecordSize)
	for i, w := range words {
		order.PutUint32(buf[i*4:], w)
	}
	return buf, nil
}
