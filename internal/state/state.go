// Package state defines the record state machine for the review pipeline.
package state

import (
	"fmt"
	"sort"
)

// State is a record lifecycle state.
type State string

// Record states, in pipeline order.
const (
	MdRetrieved             State = "md_retrieved"
	MdImported              State = "md_imported"
	MdNeedsManualPrep       State = "md_needs_manual_preparation"
	MdPrepared              State = "md_prepared"
	MdProcessed             State = "md_processed"
	RevPrescreenIncluded    State = "rev_prescreen_included"
	RevPrescreenExcluded    State = "rev_prescreen_excluded"
	PdfNeedsManualRetrieval State = "pdf_needs_manual_retrieval"
	PdfImported             State = "pdf_imported"
	PdfNotAvailable         State = "pdf_not_available"
	PdfNeedsManualPrep      State = "pdf_needs_manual_preparation"
	PdfPrepared             State = "pdf_prepared"
	RevExcluded             State = "rev_excluded"
	RevIncluded             State = "rev_included"
	RevSynthesized          State = "rev_synthesized"
)

// Operation is a pipeline operation that triggers state transitions.
type Operation string

// Pipeline operations.
const (
	OpLoad       Operation = "load"
	OpPrep       Operation = "prep"
	OpPrepMan    Operation = "prep_man"
	OpDedupe     Operation = "dedupe"
	OpPrescreen  Operation = "prescreen"
	OpPdfGet     Operation = "pdf_get"
	OpPdfGetMan  Operation = "pdf_get_man"
	OpPdfPrep    Operation = "pdf_prep"
	OpPdfPrepMan Operation = "pdf_prep_man"
	OpScreen     Operation = "screen"
	OpData       Operation = "data"
)

// Transition is one edge of the state machine.
type Transition struct {
	Trigger Operation
	Source  State
	Dest    State
}

// Transitions is the full transition table. Every status change in the
// pipeline must correspond to exactly one row.
var Transitions = []Transition{
	{OpLoad, MdRetrieved, MdImported},
	{OpPrep, MdImported, MdNeedsManualPrep},
	{OpPrep, MdImported, MdPrepared},
	{OpPrepMan, MdNeedsManualPrep, MdPrepared},
	{OpDedupe, MdPrepared, MdProcessed},
	{OpPrescreen, MdProcessed, RevPrescreenIncluded},
	{OpPrescreen, MdProcessed, RevPrescreenExcluded},
	{OpPdfGet, RevPrescreenIncluded, PdfImported},
	{OpPdfGet, RevPrescreenIncluded, PdfNeedsManualRetrieval},
	{OpPdfGetMan, PdfNeedsManualRetrieval, PdfImported},
	{OpPdfGetMan, PdfNeedsManualRetrieval, PdfNotAvailable},
	{OpPdfPrep, PdfImported, PdfPrepared},
	{OpPdfPrep, PdfImported, PdfNeedsManualPrep},
	{OpPdfPrepMan, PdfNeedsManualPrep, PdfPrepared},
	{OpScreen, PdfPrepared, RevIncluded},
	{OpScreen, PdfPrepared, RevExcluded},
	{OpData, RevIncluded, RevSynthesized},
}

// All lists every state in pipeline order.
var All = []State{
	MdRetrieved,
	MdImported,
	MdNeedsManualPrep,
	MdPrepared,
	MdProcessed,
	RevPrescreenIncluded,
	RevPrescreenExcluded,
	PdfNeedsManualRetrieval,
	PdfImported,
	PdfNotAvailable,
	PdfNeedsManualPrep,
	PdfPrepared,
	RevExcluded,
	RevIncluded,
	RevSynthesized,
}

// terminal states have no outgoing transitions.
var terminal = map[State]bool{
	RevPrescreenExcluded: true,
	RevExcluded:          true,
	PdfNotAvailable:      true,
	RevSynthesized:       true,
}

// Valid reports whether s is a known state.
func Valid(s State) bool {
	for _, known := range All {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a sink with no outgoing transitions.
func IsTerminal(s State) bool {
	return terminal[s]
}

// ValidTransition reports whether the edge source -> dest exists in the table.
func ValidTransition(source, dest State) bool {
	for _, t := range Transitions {
		if t.Source == source && t.Dest == dest {
			return true
		}
	}
	return false
}

// ValidTriggers returns the set of operations applicable to records in s.
func ValidTriggers(s State) map[Operation]bool {
	triggers := make(map[Operation]bool)
	for _, t := range Transitions {
		if t.Source == s {
			triggers[t.Trigger] = true
		}
	}
	return triggers
}

// SourceState returns the state that op operates on.
func SourceState(op Operation) (State, error) {
	for _, t := range Transitions {
		if t.Trigger == op {
			return t.Source, nil
		}
	}
	return "", fmt.Errorf("unknown operation: %s", op)
}

// PrecedingStates returns every state from which s is reachable, computed by
// backward closure over the transition table. s itself is not included.
func PrecedingStates(s State) map[State]bool {
	preceding := make(map[State]bool)
	frontier := []State{s}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, t := range Transitions {
			if t.Dest != cur {
				continue
			}
			if !preceding[t.Source] {
				preceding[t.Source] = true
				frontier = append(frontier, t.Source)
			}
		}
	}
	return preceding
}

// PrecedingList returns PrecedingStates as a sorted slice, for reporting.
func PrecedingList(s State) []State {
	set := PrecedingStates(s)
	out := make([]State, 0, len(set))
	for st := range set {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Index returns the pipeline-order position of s, or -1 if unknown.
// Earlier states have smaller indices.
func Index(s State) int {
	for i, known := range All {
		if s == known {
			return i
		}
	}
	return -1
}
