// Package policy decides what happens after a fault has been recorded:
// stop for a debugger, reset the part, or resume.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Decision is the terminal action for a fault.
type Decision uint8

const (
	Continue Decision = iota
	Halt
	Reset
)

var decisionNames = map[Decision]string{
	Continue: "Continue",
	Halt:     "Halt",
	Reset:    "Reset",
}

func (d Decision) String() string {
	if name, ok := decisionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Decision(%d)", uint8(d))
}

// Engine maps a decoded fault to a decision.
type Engine interface {
	Decide(status fault.Status) Decision
}

// DebuggerProbe reports whether a debugger is attached to the core.
type DebuggerProbe interface {
	Attached() bool
}

// DHCSRProbe reads DHCSR.C_DEBUGEN. A read error counts as detached.
type DHCSRProbe struct {
	Bus mmio.Bus
}

func (p DHCSRProbe) Attached() bool {
	v, err := p.Bus.ReadWord(mmio.DHCSR)
	if err != nil {
		return false
	}
	return v&mmio.DHCSRDebugEn != 0
}

// StaticProbe is a fixed answer, for tests and parts without a debug unit.
type StaticProbe bool

func (p StaticProbe) Attached() bool { return bool(p) }

// RecoverFunc tells the recoverable engine whether the faulting instruction
// can be skipped. It runs in fault context and must not fault itself.
type RecoverFunc func(status fault.Status) bool

// Options carries the optional inputs of the engine variants.
type Options struct {
	Recoverable RecoverFunc
}

type defaultEngine struct {
	probe DebuggerProbe
}

// Decide halts under a debugger and resets otherwise. It never continues.
func (e defaultEngine) Decide(fault.Status) Decision {
	if e.probe != nil && e.probe.Attached() {
		return Halt
	}
	return Reset
}

type haltEngine struct{}

func (haltEngine) Decide(fault.Status) Decision { return Halt }

type recoverableEngine struct {
	defaultEngine
	recoverable RecoverFunc
}

func (e recoverableEngine) Decide(status fault.Status) Decision {
	d := e.defaultEngine.Decide(status)
	if d != Reset || e.recoverable == nil {
		return d
	}
	switch status.Category {
	case fault.CategoryProtection, fault.CategoryUndefinedInstruction:
		if e.recoverable(status) {
			return Continue
		}
	}
	return Reset
}

type factory func(probe DebuggerProbe, opts Options) Engine

var variants = map[string]factory{
	"default": func(p DebuggerProbe, _ Options) Engine {
		return defaultEngine{probe: p}
	},
	"halt": func(DebuggerProbe, Options) Engine {
		return haltEngine{}
	},
	"recoverable": func(p DebuggerProbe, o Options) Engine {
		return recoverableEngine{defaultEngine: defaultEngine{probe: p}, recoverable: o.Recoverable}
	},
}

// New builds the named engine variant. An empty name selects "default".
func New(name string, probe DebuggerProbe, opts Options) (Engine, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "default"
	}
	f, ok := variants[key]
	if !ok {
		return nil, fmt.Errorf("policy: unknown variant %q (have %s)", name, strings.Join(Variants(), ", "))
	}
	return f(probe, opts), nil
}

// Variants lists the engine names New accepts.
func Variants() []string {
	out := make([]string, 0, len(variants))
	for name := range variants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
