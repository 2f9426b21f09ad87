package simulate

import (
	"github.com/OpenTraceLab/OpenTraceFault/pkg/target"
)

// Addresses used by the fault catalogue.
const (
	// UnmappedAddress is in the external memory controller range, with no
	// memory fitted.
	UnmappedAddress = 0x60000000
	// MisalignedAddress is a RAM address ending in 1.
	MisalignedAddress = 0x20003001
	// UndefinedInsn is a permanently undefined Thumb-2 encoding (UDF.W).
	UndefinedInsn = 0xF7F0A000
)

// Fault is a programming error the simulated firmware can commit.
type Fault struct {
	Name        string
	Description string
	run         func(*target.Target) bool
}

var catalogue = []Fault{
	{
		Name:        "null-write",
		Description: "store through a null pointer (faults with the MPU null guard)",
		run:         func(t *target.Target) bool { _, ok := t.Store32(0, 10); return ok },
	},
	{
		Name:        "null-call",
		Description: "call through a null function pointer",
		run:         func(t *target.Target) bool { _, ok := t.CallNull(); return ok },
	},
	{
		Name:        "divide-by-zero",
		Description: "integer division by zero (faults with DIV_0_TRP)",
		run:         func(t *target.Target) bool { _, ok := t.DivideByZero(1, 0); return ok },
	},
	{
		Name:        "unaligned",
		Description: "word load from an address ending in 1 (faults with UNALIGN_TRP)",
		run:         func(t *target.Target) bool { _, ok := t.Load32(MisalignedAddress); return ok },
	},
	{
		Name:        "bus-error",
		Description: "word load from unmapped memory",
		run:         func(t *target.Target) bool { _, ok := t.Load32(UnmappedAddress); return ok },
	},
	{
		Name:        "uninitialized-pointer",
		Description: "store through a pointer holding the stack fill pattern",
		run: func(t *target.Target) bool {
			_, ok := t.Store32(target.HazardUninitializedPointer, 1)
			return ok
		},
	},
	{
		Name:        "execute-data",
		Description: "branch into a stack buffer holding data",
		run:         func(t *target.Target) bool { _, ok := t.ExecuteData(UndefinedInsn); return ok },
	},
	{
		Name:        "execute-system",
		Description: "call into the execute-never system region",
		run:         func(t *target.Target) bool { _, ok := t.ExecuteAddress(target.SystemSpace.Origin | 1); return ok },
	},
	{
		Name:        "use-after-free",
		Description: "store into a freed heap block (silent corruption, no fault)",
		run:         func(t *target.Target) bool { _, ok := t.Store32(target.HazardFreedHeap, 0xDEADBEEF); return ok },
	},
}

// Faults lists the catalogue in display order.
func Faults() []Fault {
	return append([]Fault(nil), catalogue...)
}

// Names lists the fault names.
func Names() []string {
	names := make([]string, len(catalogue))
	for i, f := range catalogue {
		names[i] = f.Name
	}
	return names
}

// Lookup finds a fault by name.
func Lookup(name string) (Fault, bool) {
	for _, f := range catalogue {
		if f.Name == name {
			return f, true
		}
	}
	return Fault{}, false
}
