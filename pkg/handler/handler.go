// Package handler runs the fault pipeline: capture the stacked frame, decode
// the fault registers, persist a core dump, then apply the policy decision.
//
// The pipeline is not re-entrant. A fault raised while a fault is being
// handled is reported as ErrNestedFault and halts the core.
package handler

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/coredump"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/policy"
)

var (
	// ErrNestedFault is returned when Handle is entered while already running.
	ErrNestedFault = errors.New("handler: nested fault")
	// ErrCapture wraps a failure to read the stacked frame.
	ErrCapture = errors.New("handler: capture failed")
	// ErrPersist wraps a failure to write the core dump.
	ErrPersist = errors.New("handler: persist failed")
)

// AuxCell is an application-owned value stored with every core dump, for
// example the last battery reading. Application code updates it at any time;
// the handler only loads it.
type AuxCell struct {
	v atomic.Int32
}

// Set stores v.
func (c *AuxCell) Set(v int32) { c.v.Store(v) }

// Load returns the current value. A nil cell reads as zero.
func (c *AuxCell) Load() int32 {
	if c == nil {
		return 0
	}
	return c.v.Load()
}

// Outcome describes what happened to one fault.
type Outcome struct {
	Frame    capture.Frame
	Status   fault.Status
	Record   coredump.Record
	Decision policy.Decision
	Trail    Trail
}

// State is the state the pipeline stopped in.
func (o Outcome) State() State {
	return o.Trail.Last()
}

// Handler wires the four fault components together.
type Handler struct {
	Bus      mmio.Bus
	RAM      []mmio.Region
	Decoder  *fault.Decoder
	Store    *coredump.Store
	Engine   policy.Engine
	Actuator policy.Actuator
	Aux      *AuxCell

	active atomic.Bool
}

// Handle processes one fault. entry is what the exception entry sequence
// left behind: EXC_RETURN in LR and the two stack pointers.
//
// Capture and persist failures halt. A decode failure is treated as an
// escalated fault with no further detail.
func (h *Handler) Handle(entry capture.Entry) (Outcome, error) {
	var out Outcome
	out.Trail.push(StateTrapped)

	if !h.active.CompareAndSwap(false, true) {
		out.Trail.push(StateHalted)
		out.Decision = policy.Halt
		h.halt()
		return out, ErrNestedFault
	}
	defer h.active.Store(false)

	frame, err := capture.Capture(h.Bus, entry, h.RAM)
	if err != nil {
		return h.stop(out, StateTrapped, fmt.Errorf("%w: %w", ErrCapture, err))
	}
	out.Frame = frame
	out.Trail.push(NextState(StateTrapped, true))

	out.Status = h.classify()
	out.Trail.push(NextState(StateCaptured, true))

	out.Record = coredump.NewRecord(out.Frame, out.Status, h.Aux.Load())
	if err := h.Store.Write(out.Record); err != nil {
		return h.stop(out, StateClassified, fmt.Errorf("%w: %w", ErrPersist, err))
	}
	out.Trail.push(NextState(StateClassified, true))

	out.Decision = h.Engine.Decide(out.Status)
	out.Trail.push(Settle(out.Decision))
	if err := h.Actuator.Apply(out.Decision, out.Status.Raw, out.Frame); err != nil {
		return out, fmt.Errorf("handler: %s: %w", out.Decision, err)
	}
	return out, nil
}

// Active reports whether a fault is being handled.
func (h *Handler) Active() bool {
	return h.active.Load()
}

func (h *Handler) classify() fault.Status {
	status, err := h.Decoder.Decode()
	if err != nil {
		return fault.Status{Category: fault.CategoryEscalated}
	}
	if status.Category == fault.CategoryNone {
		// Trapped with no status bit set: cause unknown.
		status.Category = fault.CategoryEscalated
	}
	return status
}

func (h *Handler) stop(out Outcome, from State, err error) (Outcome, error) {
	out.Trail.push(NextState(from, false))
	out.Decision = policy.Halt
	h.halt()
	return out, err
}

func (h *Handler) halt() {
	_ = h.Actuator.Apply(policy.Halt, fault.Registers{}, capture.Frame{})
}
