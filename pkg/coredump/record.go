// Package coredump persists a fixed-layout fault record in a RAM region that
// survives a warm reset, and reads it back at the next boot.
package coredump

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
)

// Key marks a region that holds a complete record. It is the first word read
// and the last word written.
const Key uint32 = 0x0E0C2024

// Record layout, word offsets from the start of the dump region.
const (
	offKey = iota * 4
	offCategory
	offR0
	offR1
	offR2
	offR3
	offReturnAddress
	offStackPointer
	offAux

	// RecordSize is the size of the on-device record in bytes.
	RecordSize
)

const recordWords = RecordSize / 4

var (
	// ErrNoRecord means the key did not match: the region holds no record.
	ErrNoRecord = errors.New("coredump: no record")
	// ErrShortRecord means a dump is smaller than RecordSize.
	ErrShortRecord = errors.New("coredump: short record")
)

// Record is the persisted summary of one fault.
type Record struct {
	Category      fault.Category
	R0            uint32
	R1            uint32
	R2            uint32
	R3            uint32
	ReturnAddress uint32
	StackPointer  uint32
	Aux           int32
}

// NewRecord assembles a record from a captured frame and its decoded status.
func NewRecord(frame capture.Frame, status fault.Status, aux int32) Record {
	return Record{
		Category:      status.Category,
		R0:            frame.R0,
		R1:            frame.R1,
		R2:            frame.R2,
		R3:            frame.R3,
		ReturnAddress: frame.ReturnAddress,
		StackPointer:  frame.StackPointer(),
		Aux:           aux,
	}
}

// words returns the record in storage order, key included.
func (r Record) words() [recordWords]uint32 {
	return [recordWords]uint32{
		Key,
		uint32(r.Category),
		r.R0,
		r.R1,
		r.R2,
		r.R3,
		r.ReturnAddress,
		r.StackPointer,
		uint32(r.Aux),
	}
}

func fromWords(w [recordWords]uint32) Record {
	return Record{
		Category:      fault.Category(w[1]),
		R0:            w[2],
		R1:            w[3],
		R2:            w[4],
		R3:            w[5],
		ReturnAddress: w[6],
		StackPointer:  w[7],
		Aux:           int32(w[8]),
	}
}

// Encode serializes the record, key first, in the given byte order.
func (r Record) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, RecordSize)
	for i, w := range r.words() {
		order.PutUint32(buf[i*4:], w)
	}
	return buf
}

// Decode parses a dump in the given byte order. The key is checked before any
// other field; a mismatch yields ErrNoRecord.
func Decode(b []byte, order binary.ByteOrder) (Record, error) {
	if len(b) < 4 {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	if key := order.Uint32(b[offKey:]); key != Key {
		return Record{}, fmt.Errorf("%w: key 0x%08X", ErrNoRecord, key)
	}
	if len(b) < RecordSize {
		return Record{}, fmt.Errorf("%w: %d of %d bytes", ErrShortRecord, len(b), RecordSize)
	}
	var w [recordWords]uint32
	for i := range w {
		w[i] = order.Uint32(b[i*4:])
	}
	return fromWords(w), nil
}

// MarshalBinary encodes the record in little-endian order, the byte order of
// every Cortex-M part in common use.
func (r Record) MarshalBinary() ([]byte, error) {
	return r.Encode(binary.LittleEndian), nil
}

// UnmarshalBinary decodes a little-endian record.
func (r *Record) UnmarshalBinary(b []byte) error {
	rec, err := Decode(b, binary.LittleEndian)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s pc=0x%08X sp=0x%08X r0=0x%08X aux=%d",
		r.Category, r.ReturnAddress, r.StackPointer, r.R0, r.Aux)
}
