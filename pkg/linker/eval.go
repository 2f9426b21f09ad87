package linker

import (
	"fmt"
	"strconv"
	"strings"
)

// parseNumber reads an ld number: decimal or 0x hex, optionally scaled by K
// or M.
func parseNumber(s string) (uint64, error) {
	mult := uint64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("linker: bad number %q: %w", s, err)
	}
	return v * mult, nil
}

// env resolves the names an expression may refer to.
type env interface {
	region(name string) (origin, length uint64, ok bool)
	symbol(name string) (uint64, bool)
}

func (e *Expr) eval(en env) (uint64, error) {
	v, err := e.Left.eval(en)
	if err != nil {
		return 0, err
	}
	for _, op := range e.Right {
		r, err := op.Term.eval(en)
		if err != nil {
			return 0, err
		}
		if op.Op == "+" {
			v += r
		} else {
			v -= r
		}
	}
	return v, nil
}

func (p *Product) eval(en env) (uint64, error) {
	v, err := p.Left.eval(en)
	if err != nil {
		return 0, err
	}
	for _, op := range p.Right {
		r, err := op.Factor.eval(en)
		if err != nil {
			return 0, err
		}
		if op.Op == "*" {
			v *= r
			continue
		}
		if r == 0 {
			return 0, fmt.Errorf("linker: division by zero")
		}
		v /= r
	}
	return v, nil
}

func (f *Factor) eval(en env) (uint64, error) {
	switch {
	case f.Number != nil:
		return parseNumber(*f.Number)
	case f.Sub != nil:
		return f.Sub.eval(en)
	case f.Call != nil:
		return f.Call.eval(en)
	case f.Symbol != nil:
		if v, ok := en.symbol(*f.Symbol); ok {
			return v, nil
		}
		return 0, fmt.Errorf("linker: unknown symbol %q", *f.Symbol)
	}
	return 0, fmt.Errorf("linker: empty expression")
}

func (c *Call) eval(en env) (uint64, error) {
	fn := strings.ToUpper(c.Func)
	switch fn {
	case "ORIGIN", "LENGTH":
		if len(c.Args) != 1 || c.Args[0].name() == "" {
			return 0, fmt.Errorf("linker: %s takes a region name", fn)
		}
		origin, length, ok := en.region(c.Args[0].name())
		if !ok {
			return 0, fmt.Errorf("linker: %s(%s): no such region", fn, c.Args[0].name())
		}
		if fn == "ORIGIN" {
			return origin, nil
		}
		return length, nil
	case "ALIGN", "ADDR", "SIZEOF", "LOADADDR":
		return 0, fmt.Errorf("linker: %s depends on the final layout", fn)
	}
	return 0, fmt.Errorf("linker: unsupported function %s", c.Func)
}

// name returns the expression as a bare identifier, or "".
func (e *Expr) name() string {
	if len(e.Right) != 0 || len(e.Left.Right) != 0 || e.Left.Left.Symbol == nil {
		return ""
	}
	return *e.Left.Left.Symbol
}
