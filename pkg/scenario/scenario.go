// Package scenario loads fault scenarios: named register snapshots written
// as s-expressions, with the category the decoder is expected to report.
//
//	(scenario null-write
//	  (cfsr 0x00000082) (hfsr 0x40000000) (mmfar 0x00000000)
//	  (frame (r0 0x0) (r1 0xA) (pc 0x08000420) (xpsr 0x21000000))
//	  (expect ProtectionFault))
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/chewxy/sexp"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
)

var (
	// ErrSyntax is returned for a well-formed s-expression that is not a
	// valid scenario.
	ErrSyntax = errors.New("scenario: syntax error")
	// ErrMismatch is returned by Check when the decoder disagrees with the
	// expectation.
	ErrMismatch = errors.New("scenario: decoded status does not match")
)

// Scenario is one fault snapshot.
type Scenario struct {
	Name string

	CFSR  uint32
	HFSR  uint32
	DFSR  uint32
	AFSR  uint32
	MMFAR uint32
	BFAR  uint32

	// Frame is the stacked exception frame, when the scenario records one.
	Frame *capture.Frame

	// Expect is the category the decoder must report; HasExpect is false
	// for snapshots kept only for display.
	Expect    fault.Category
	HasExpect bool

	// ExpectAddress, when set, is the fault address the decoder must
	// report as valid.
	ExpectAddress *uint32
}

// Registers returns the fault status registers of the snapshot.
func (s *Scenario) Registers() fault.Registers {
	return fault.Registers{
		CFSR:  s.CFSR,
		HFSR:  s.HFSR,
		DFSR:  s.DFSR,
		AFSR:  s.AFSR,
		MMFAR: s.MMFAR,
		BFAR:  s.BFAR,
	}
}

// Decode runs the decoder over the snapshot.
func (s *Scenario) Decode(cfg fault.Config) fault.Status {
	return fault.DecodeRegisters(s.Registers(), cfg)
}

// Check decodes the snapshot and compares the result with the expectation.
func (s *Scenario) Check(cfg fault.Config) error {
	st := s.Decode(cfg)
	if s.HasExpect && st.Category != s.Expect {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrMismatch, s.Name, st.Category, s.Expect)
	}
	if s.ExpectAddress != nil {
		if !st.AddressValid {
			return fmt.Errorf("%w: %s: no valid address, want 0x%08X", ErrMismatch, s.Name, *s.ExpectAddress)
		}
		if st.Address != *s.ExpectAddress {
			return fmt.Errorf("%w: %s: address 0x%08X, want 0x%08X", ErrMismatch, s.Name, st.Address, *s.ExpectAddress)
		}
	}
	return nil
}

// Load reads every scenario from r.
func Load(r io.Reader) ([]Scenario, error) {
	exprs, err := sexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("scenario: parse error: %w", err)
	}

	var out []Scenario
	for _, e := range exprs {
		sc, err := parseScenario(e)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// LoadFile reads every scenario in the file at path.
func LoadFile(path string) ([]Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: failed to open file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Find returns the scenario called name.
func Find(list []Scenario, name string) (*Scenario, bool) {
	for i := range list {
		if list[i].Name == name {
			return &list[i], true
		}
	}
	return nil, false
}

func parseScenario(e sexp.Sexp) (Scenario, error) {
	key, rest, ok := keyed(e)
	if !ok || key != "scenario" {
		return Scenario{}, fmt.Errorf("%w: expected (scenario name ...), got %s", ErrSyntax, e)
	}
	if len(rest) == 0 {
		return Scenario{}, fmt.Errorf("%w: scenario without a name", ErrSyntax)
	}
	name, ok := atom(rest[0])
	if !ok {
		return Scenario{}, fmt.Errorf("%w: scenario name must be an atom, got %s", ErrSyntax, rest[0])
	}

	sc := Scenario{Name: name}
	for _, field := range rest[1:] {
		if empty(field) {
			continue
		}
		if err := sc.setField(field); err != nil {
			return Scenario{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	return sc, nil
}

func (sc *Scenario) setField(field sexp.Sexp) error {
	key, vals, ok := keyed(field)
	if !ok {
		return fmt.Errorf("%w: expected (field value), got %s", ErrSyntax, field)
	}

	switch key {
	case "frame":
		return sc.setFrame(vals)
	case "expect":
		v, err := single(key, vals)
		if err != nil {
			return err
		}
		c, err := fault.ParseCategory(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		sc.Expect, sc.HasExpect = c, true
		return nil
	}

	v, err := word(key, vals)
	if err != nil {
		return err
	}
	switch key {
	case "cfsr":
		sc.CFSR = v
	case "hfsr":
		sc.HFSR = v
	case "dfsr":
		sc.DFSR = v
	case "afsr":
		sc.AFSR = v
	case "mmfar":
		sc.MMFAR = v
	case "bfar":
		sc.BFAR = v
	case "expect-address":
		sc.ExpectAddress = &v
	default:
		return fmt.Errorf("%w: unknown field %q", ErrSyntax, key)
	}
	return nil
}

func (sc *Scenario) setFrame(fields []sexp.Sexp) error {
	f := &capture.Frame{}
	for _, field := range fields {
		if empty(field) {
			continue
		}
		key, vals, ok := keyed(field)
		if !ok {
			return fmt.Errorf("%w: expected (register value) in frame, got %s", ErrSyntax, field)
		}
		v, err := word(key, vals)
		if err != nil {
			return err
		}
		switch key {
		case "r0":
			f.R0 = v
		case "r1":
			f.R1 = v
		case "r2":
			f.R2 = v
		case "r3":
			f.R3 = v
		case "r12":
			f.R12 = v
		case "lr":
			f.LR = v
		case "pc":
			f.ReturnAddress = v
		case "xpsr":
			f.XPSR = v
		case "sp":
			f.Address = v
		default:
			return fmt.Errorf("%w: unknown frame register %q", ErrSyntax, key)
		}
	}
	sc.Frame = f
	return nil
}

func single(key string, vals []sexp.Sexp) (string, error) {
	if len(vals) != 1 {
		return "", fmt.Errorf("%w: (%s ...) takes one value, got %d", ErrSyntax, key, len(vals))
	}
	v, ok := atom(vals[0])
	if !ok {
		return "", fmt.Errorf("%w: (%s ...) value must be an atom", ErrSyntax, key)
	}
	return v, nil
}

func word(key string, vals []sexp.Sexp) (uint32, error) {
	s, err := single(key, vals)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: (%s %s): %v", ErrSyntax, key, s, err)
	}
	return uint32(v), nil
}
