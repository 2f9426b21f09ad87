package mmio

import "fmt"

// AccessKind distinguishes reads from writes in the SimBus access log.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
)

func (k AccessKind) String() string {
	if k == AccessWrite {
		return "write"
	}
	return "read"
}

// Access captures one bus transaction for inspection within tests.
type Access struct {
	Kind  AccessKind
	Addr  uint32
	Value uint32
}

// ReadHook emulates a register with read side effects. It replaces the
// default "return the stored word" behaviour for its address.
type ReadHook func(addr uint32) (uint32, error)

// WriteHook emulates a register with write side effects (write-one-to-clear,
// reset requests). The hook is responsible for updating storage via Poke.
type WriteHook func(addr uint32, value uint32) error

// SimBus is an in-memory Bus useful for unit tests and the simulated target.
// Unwritten words read as zero. Every access through ReadWord/WriteWord is
// recorded; Peek and Poke are backdoor accessors that bypass hooks, fault
// regions and the log, the way hardware updates its own registers.
type SimBus struct {
	words   map[uint32]uint32
	onRead  map[uint32]ReadHook
	onWrite map[uint32]WriteHook
	faults  []Region

	log []Access
}

// NewSimBus constructs an empty simulated address space.
func NewSimBus() *SimBus {
	return &SimBus{
		words:   make(map[uint32]uint32),
		onRead:  make(map[uint32]ReadHook),
		onWrite: make(map[uint32]WriteHook),
	}
}

// OnRead installs a read hook for addr.
func (b *SimBus) OnRead(addr uint32, hook ReadHook) {
	b.onRead[addr] = hook
}

// OnWrite installs a write hook for addr.
func (b *SimBus) OnWrite(addr uint32, hook WriteHook) {
	b.onWrite[addr] = hook
}

// AddFaultRegion makes every access inside r fail with ErrBusFault.
func (b *SimBus) AddFaultRegion(r Region) {
	b.faults = append(b.faults, r)
}

func (b *SimBus) ReadWord(addr uint32) (uint32, error) {
	if err := b.check(addr); err != nil {
		return 0, err
	}
	var (
		v   uint32
		err error
	)
	if hook, ok := b.onRead[addr]; ok {
		v, err = hook(addr)
	} else {
		v = b.words[addr]
	}
	if err != nil {
		return 0, err
	}
	b.log = append(b.log, Access{Kind: AccessRead, Addr: addr, Value: v})
	return v, nil
}

func (b *SimBus) WriteWord(addr uint32, value uint32) error {
	if err := b.check(addr); err != nil {
		return err
	}
	b.log = append(b.log, Access{Kind: AccessWrite, Addr: addr, Value: value})
	if hook, ok := b.onWrite[addr]; ok {
		return hook(addr, value)
	}
	b.words[addr] = value
	return nil
}

func (b *SimBus) check(addr uint32) error {
	if err := CheckAligned(addr); err != nil {
		return err
	}
	for _, r := range b.faults {
		if r.Contains(addr, WordSize) {
			return fmt.Errorf("%w at 0x%08X (%s)", ErrBusFault, addr, r.Name)
		}
	}
	return nil
}

// Peek returns the stored word at addr without side effects.
func (b *SimBus) Peek(addr uint32) uint32 {
	return b.words[addr&^3]
}

// Poke stores a word at addr without side effects.
func (b *SimBus) Poke(addr uint32, value uint32) {
	b.words[addr&^3] = value
}

// Fill overwrites every word of r with values produced by gen.
func (b *SimBus) Fill(r Region, gen func(addr uint32) uint32) {
	for addr := uint64(r.Origin &^ 3); addr < r.End(); addr += WordSize {
		b.words[uint32(addr)] = gen(uint32(addr))
	}
}

// Accesses returns a copy of the access log.
func (b *SimBus) Accesses() []Access {
	return append([]Access(nil), b.log...)
}

// ResetLog discards the access log.
func (b *SimBus) ResetLog() {
	b.log = b.log[:0]
}

// WasRead reports whether addr was read through the Bus interface since the
// last ResetLog.
func (b *SimBus) WasRead(addr uint32) bool {
	for _, a := range b.log {
		if a.Kind == AccessRead && a.Addr == addr {
			return true
		}
	}
	return false
}
