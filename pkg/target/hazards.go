package target

// Pointer values that the classic C mistakes tend to produce. What they do on
// a real part depends on the compiler, the optimisation level and what the
// memory happened to hold, so these are fixed stand-ins rather than an
// emulation.
const (
	// HazardUninitializedPointer is a local pointer read before it was set.
	// It holds the stack fill pattern, which points at unmapped memory: a
	// store through it raises an imprecise bus fault.
	HazardUninitializedPointer uint32 = 0xCCCCCCCC

	// HazardFreedHeap is a heap block already handed back to the allocator.
	// Accesses succeed and corrupt whatever reuses the block. No fault.
	HazardFreedHeap uint32 = 0x20002000
)

// HazardReturnedStack returns the address of a 100-word local array whose
// function has already returned. The memory is still RAM, so accesses
// succeed; the next call overwrites it.
func (t *Target) HazardReturnedStack() uint32 {
	return t.currentSP() - 100*4 - 8
}
