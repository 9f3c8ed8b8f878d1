package state

import (
	"fmt"
	"strings"
)

// PreconditionError indicates that an operation cannot start because records
// remain in a state strictly preceding the operation's source state.
type PreconditionError struct {
	Operation Operation
	Blocking  map[State]int // state -> number of records stuck there
}

func (e *PreconditionError) Error() string {
	var parts []string
	for _, s := range All {
		if n, ok := e.Blocking[s]; ok && n > 0 {
			parts = append(parts, fmt.Sprintf("%d in %s", n, s))
		}
	}
	return fmt.Sprintf("operation %s blocked by preceding records: %s",
		e.Operation, strings.Join(parts, ", "))
}

// CheckPrecondition verifies that op may start given the current per-state
// record counts. When delay is false the check always passes: operations are
// applied record by record and stragglers are simply skipped. When delay is
// true (the project delays automated processing), the check fails if any
// record is still in a state strictly preceding the operation's source state.
func CheckPrecondition(op Operation, counts map[State]int, delay bool) error {
	if !delay {
		return nil
	}
	source, err := SourceState(op)
	if err != nil {
		return err
	}
	preceding := PrecedingStates(source)
	blocking := make(map[State]int)
	for s, n := range counts {
		if n > 0 && preceding[s] {
			blocking[s] = n
		}
	}
	if len(blocking) > 0 {
		return &PreconditionError{Operation: op, Blocking: blocking}
	}
	return nil
}
