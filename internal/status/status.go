// Package status computes per-state statistics over the dataset, writes the
// status file, and builds the deterministic commit messages that checkpoint
// each pipeline stage.
package status

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

// stepsPerRecord is the number of automated operations a record passes on the
// longest path from retrieval to synthesis.
const stepsPerRecord = 8

// completedSteps counts the operations a record in a given state has already
// passed. States requiring manual intervention count as their source state:
// the operation that parked them there has not completed.
var completedSteps = map[state.State]int{
	state.MdRetrieved:             0,
	state.MdImported:              1,
	state.MdNeedsManualPrep:       1,
	state.MdPrepared:              2,
	state.MdProcessed:             3,
	state.RevPrescreenIncluded:    4,
	state.RevPrescreenExcluded:    4,
	state.PdfNeedsManualRetrieval: 4,
	state.PdfImported:             5,
	state.PdfNeedsManualPrep:      5,
	state.PdfNotAvailable:         5,
	state.PdfPrepared:             6,
	state.RevExcluded:             7,
	state.RevIncluded:             7,
	state.RevSynthesized:          8,
}

// mergeSurvivorSteps is the number of operations a merged-away duplicate had
// completed when it was absorbed: load, prep and the merge itself.
const mergeSurvivorSteps = 3

// Stats aggregates the per-state record counts of a dataset.
type Stats struct {
	// Overall counts cumulatively: a record in state s is counted for s and
	// for every state preceding s. Currently counts only the present state.
	Overall   map[state.State]int
	Currently map[state.State]int

	// AtomicSteps is the total number of operations the dataset requires;
	// CompletedAtomicSteps how many of those have run. Sink states shorten
	// the total, so both reach the same value on a completed review.
	AtomicSteps          int
	CompletedAtomicSteps int

	// DuplicatesRemoved counts origins absorbed into surviving records.
	DuplicatesRemoved int
}

// Compute derives Stats from the current record set.
func Compute(records map[string]*record.Record) *Stats {
	stats := &Stats{
		Overall:   make(map[state.State]int, len(state.All)),
		Currently: make(map[state.State]int, len(state.All)),
	}
	for _, s := range state.All {
		stats.Overall[s] = 0
		stats.Currently[s] = 0
	}

	for _, rec := range records {
		cur := rec.Status()
		stats.Currently[cur]++
		stats.Overall[cur]++
		for prev := range state.PrecedingStates(cur) {
			stats.Overall[prev]++
		}
		if extra := len(rec.Origins) - 1; extra > 0 {
			stats.DuplicatesRemoved += extra
		}
		stats.CompletedAtomicSteps += completedSteps[cur]
	}

	// Absorbed duplicates passed retrieval, import and preparation before
	// they were merged away.
	for _, s := range []state.State{state.MdRetrieved, state.MdImported, state.MdPrepared} {
		stats.Overall[s] += stats.DuplicatesRemoved
	}
	stats.CompletedAtomicSteps += mergeSurvivorSteps * stats.DuplicatesRemoved

	stats.AtomicSteps = stepsPerRecord*stats.Overall[state.MdRetrieved] -
		(stepsPerRecord-mergeSurvivorSteps)*stats.DuplicatesRemoved -
		(stepsPerRecord-completedSteps[state.RevPrescreenExcluded])*stats.Currently[state.RevPrescreenExcluded] -
		(stepsPerRecord-completedSteps[state.PdfNotAvailable])*stats.Currently[state.PdfNotAvailable] -
		(stepsPerRecord-completedSteps[state.RevExcluded])*stats.Currently[state.RevExcluded]

	return stats
}

// PriorityOperations returns the operations applicable to the earliest
// pipeline state that still holds records, sorted by name. An empty dataset
// yields nil.
func (s *Stats) PriorityOperations() []state.Operation {
	for _, st := range state.All {
		if s.Currently[st] == 0 || state.IsTerminal(st) {
			continue
		}
		triggers := state.ValidTriggers(st)
		ops := make([]state.Operation, 0, len(triggers))
		for op := range triggers {
			ops = append(ops, op)
		}
		sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
		return ops
	}
	return nil
}

// Completed reports whether every record has reached a terminal state.
func (s *Stats) Completed() bool {
	return s.AtomicSteps == s.CompletedAtomicSteps
}

// report is the serialized form of the status file.
type report struct {
	AtomicSteps          int            `yaml:"atomic_steps"`
	CompletedAtomicSteps int            `yaml:"completed_atomic_steps"`
	Overall              map[string]int `yaml:"overall"`
	Currently            map[string]int `yaml:"currently"`
}

// Write serializes stats to the project's status file.
func Write(root string, stats *Stats) error {
	r := report{
		AtomicSteps:          stats.AtomicSteps,
		CompletedAtomicSteps: stats.CompletedAtomicSteps,
		Overall:              make(map[string]int, len(stats.Overall)),
		Currently:            make(map[string]int, len(stats.Currently)),
	}
	for s, n := range stats.Overall {
		r.Overall[string(s)] = n
	}
	for s, n := range stats.Currently {
		r.Currently[string(s)] = n
	}
	data, err := yaml.Marshal(&r)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := os.WriteFile(config.StatusPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	return nil
}

// Read loads the status file written by Write.
func Read(root string) (*Stats, error) {
	data, err := os.ReadFile(config.StatusPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	var r report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}
	stats := &Stats{
		AtomicSteps:          r.AtomicSteps,
		CompletedAtomicSteps: r.CompletedAtomicSteps,
		Overall:              make(map[state.State]int, len(r.Overall)),
		Currently:            make(map[state.State]int, len(r.Currently)),
	}
	for s, n := range r.Overall {
		stats.Overall[state.State(s)] = n
	}
	for s, n := range r.Currently {
		stats.Currently[state.State(s)] = n
	}
	return stats, nil
}

// Transition is one observed per-origin status change since the last commit.
type Transition struct {
	Origin string
	From   state.State
	To     state.State
}

// Transitions diffs the committed origin states against the working copy.
// Newly imported origins appear with From == md_retrieved.
func Transitions(store *dataset.Store) ([]Transition, error) {
	committed, err := store.CommittedOriginStates()
	if err != nil {
		return nil, err
	}
	current, err := store.CurrentOriginStates()
	if err != nil {
		return nil, err
	}

	origins := make([]string, 0, len(current))
	for origin := range current {
		origins = append(origins, origin)
	}
	sort.Strings(origins)

	var transitions []Transition
	for _, origin := range origins {
		from, known := committed[origin]
		if !known {
			from = state.MdRetrieved
		}
		to := current[origin]
		if from == to {
			continue
		}
		transitions = append(transitions, Transition{Origin: origin, From: from, To: to})
	}
	return transitions, nil
}

// CommitMessage builds the deterministic message for a stage checkpoint:
// the operation, progress in atomic steps, the next applicable operations
// and the per-edge transition counts.
func CommitMessage(op state.Operation, stats *Stats, transitions []Transition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: update records\n\n", op)
	fmt.Fprintf(&b, "atomic steps: %d/%d completed\n", stats.CompletedAtomicSteps, stats.AtomicSteps)

	if ops := stats.PriorityOperations(); len(ops) > 0 {
		names := make([]string, len(ops))
		for i, o := range ops {
			names[i] = string(o)
		}
		fmt.Fprintf(&b, "next operation: %s\n", strings.Join(names, ", "))
	}

	if len(transitions) > 0 {
		counts := make(map[string]int)
		var edges []string
		for _, tr := range transitions {
			edge := fmt.Sprintf("%s -> %s", tr.From, tr.To)
			if counts[edge] == 0 {
				edges = append(edges, edge)
			}
			counts[edge]++
		}
		sort.Strings(edges)
		b.WriteString("transitions:\n")
		for _, edge := range edges {
			fmt.Fprintf(&b, "  %s: %d\n", edge, counts[edge])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
