// Package fault decodes the Cortex-M fault status registers into a single
// fault category and, when the hardware vouches for it, a faulting address.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the root-cause classification of a fault. The numeric values are
// persisted in core dumps and must not be renumbered.
type Category uint32

const (
	CategoryNone                 Category = 0
	CategoryAlignment            Category = 1
	CategoryAccess               Category = 2
	CategoryUndefinedInstruction Category = 3
	CategoryProtection           Category = 4
	CategoryEscalated            Category = 5
)

var categoryNames = map[Category]string{
	CategoryNone:                 "NoFault",
	CategoryAlignment:            "AlignmentFault",
	CategoryAccess:               "AccessFault",
	CategoryUndefinedInstruction: "UndefinedInstructionFault",
	CategoryProtection:           "ProtectionFault",
	CategoryEscalated:            "EscalatedFault",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", uint32(c))
}

// Known reports whether c is one of the defined categories.
func (c Category) Known() bool {
	_, ok := categoryNames[c]
	return ok
}

var categoryAliases = map[string]Category{
	"none":       CategoryNone,
	"alignment":  CategoryAlignment,
	"unaligned":  CategoryAlignment,
	"access":     CategoryAccess,
	"bus":        CategoryAccess,
	"busfault":   CategoryAccess,
	"usage":      CategoryUndefinedInstruction,
	"usagefault": CategoryUndefinedInstruction,
	"undefined":  CategoryUndefinedInstruction,
	"protection": CategoryProtection,
	"memmanage":  CategoryProtection,
	"mpu":        CategoryProtection,
	"escalated":  CategoryEscalated,
	"hardfault":  CategoryEscalated,
	"unknown":    CategoryEscalated,
}

// ParseCategory accepts the String() form of a category (case-insensitive) or
// one of the usual register-family aliases ("memmanage", "bus", "usage",
// "hardfault").
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if strings.ToLower(name) == key {
			return c, nil
		}
	}
	if c, ok := categoryAliases[key]; ok {
		return c, nil
	}
	return CategoryNone, fmt.Errorf("fault: unknown category %q", s)
}

// Sentinel errors, one per category, for errors.Is matching.
var (
	ErrAlignmentFault            = errors.New("alignment fault")
	ErrAccessFault               = errors.New("access fault")
	ErrUndefinedInstructionFault = errors.New("undefined instruction fault")
	ErrProtectionFault           = errors.New("protection fault")
	ErrEscalatedFault            = errors.New("escalated fault")
)

func (c Category) sentinel() error {
	switch c {
	case CategoryAlignment:
		return ErrAlignmentFault
	case CategoryAccess:
		return ErrAccessFault
	case CategoryUndefinedInstruction:
		return ErrUndefinedInstructionFault
	case CategoryProtection:
		return ErrProtectionFault
	case CategoryEscalated:
		return ErrEscalatedFault
	}
	return nil
}

// Error carries a decoded Status as an error value. It unwraps to the
// category's sentinel error.
type Error struct {
	Status Status
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fault: %s at %s", e.Status.Category.sentinel(), e.Status.AddressString())
	if reasons := e.Status.Reasons(); len(reasons) > 0 {
		msg += " (" + strings.Join(reasons, ", ") + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Status.Category.sentinel()
}
