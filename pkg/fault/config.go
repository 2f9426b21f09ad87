package fault

import "fmt"

// Config controls how simultaneous sub-status bits are resolved into one
// category.
//
// The default order (protection, access, usage, escalated) is a policy choice
// that favours the most actionable report for null and wild pointer writes.
// The hardware sets every applicable bit and ranks none of them.
type Config struct {
	// Priority lists categories from most to least preferred. Categories
	// missing from the list are appended in default order by Validate.
	Priority []Category

	// SeparateAlignment reports UFSR.UNALIGNED as CategoryAlignment. When
	// false an unaligned access is a rejected data access and is reported
	// as CategoryAccess.
	SeparateAlignment bool
}

// DefaultPriority returns the default tie-break order.
func DefaultPriority() []Category {
	return []Category{
		CategoryProtection,
		CategoryAccess,
		CategoryAlignment,
		CategoryUndefinedInstruction,
		CategoryEscalated,
	}
}

// DefaultConfig returns a Config with the default tie-break order.
func DefaultConfig() Config {
	return Config{Priority: DefaultPriority()}
}

// Validate rejects unknown or duplicate categories and completes the priority
// list so every fault category has a rank.
func (c *Config) Validate() error {
	seen := make(map[Category]bool, len(c.Priority))
	for _, cat := range c.Priority {
		if cat == CategoryNone || !cat.Known() {
			return fmt.Errorf("fault: invalid category %s in priority", cat)
		}
		if seen[cat] {
			return fmt.Errorf("fault: category %s listed twice in priority", cat)
		}
		seen[cat] = true
	}
	for _, cat := range DefaultPriority() {
		if !seen[cat] {
			c.Priority = append(c.Priority, cat)
		}
	}
	return nil
}
