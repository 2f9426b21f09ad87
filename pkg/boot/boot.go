// Package boot reports the core dump left behind by a fault in the previous
// run.
package boot

import (
	"fmt"
	"io"
	"log"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/coredump"
)

// Options controls the boot-time check.
type Options struct {
	// ClearAfterReport invalidates the record once it has been logged, so
	// the same fault is not reported again on the next boot.
	ClearAfterReport bool

	// Logger receives the report. nil uses the standard logger.
	Logger *log.Logger
}

// Report is the outcome of a boot-time check.
type Report struct {
	Record coredump.Record
	Found  bool
}

// Check looks for a record from the previous run. An absent record is the
// normal case after power-on and is not an error.
func Check(store *coredump.Store, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	rec, ok, err := store.Read()
	if err != nil {
		return Report{}, fmt.Errorf("boot: %w", err)
	}
	if !ok {
		return Report{}, nil
	}

	logger.Printf("previous run ended in %s at pc=0x%08X", rec.Category, rec.ReturnAddress)
	if err := Format(logger.Writer(), rec); err != nil {
		return Report{}, fmt.Errorf("boot: %w", err)
	}

	if opts.ClearAfterReport {
		if err := store.Invalidate(); err != nil {
			return Report{Record: rec, Found: true}, fmt.Errorf("boot: %w", err)
		}
	}
	return Report{Record: rec, Found: true}, nil
}

// Format writes a multi-line human-readable report of rec.
func Format(w io.Writer, rec coredump.Record) error {
	_, err := fmt.Fprintf(w, `Core dump
  cause:          %s
  r0:             0x%08X
  r1:             0x%08X
  r2:             0x%08X
  r3:             0x%08X
  return address: 0x%08X
  stack pointer:  0x%08X
  aux:            %d
`, rec.Category, rec.R0, rec.R1, rec.R2, rec.R3, rec.ReturnAddress, rec.StackPointer, rec.Aux)
	return err
}
