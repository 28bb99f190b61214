package verify

import "errors"

// Recognition outcomes. Neither is returned by VerifyAndRepair; they tag
// shape outcomes and log entries.
var (
	// ErrRecoverable marks an "extra stroke" complaint repaired by removing
	// the stroke.
	ErrRecoverable = errors.New("recoverable recognition error")

	// ErrUnresolved marks structural errors left after automatic repair.
	ErrUnresolved = errors.New("unresolved recognition error")
)
