// Package screen implements the prescreen, screen and data operations: the
// inclusion decisions that move records through the review half of the
// pipeline.
package screen

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

// WorklistFile collects IDs of records that became ready for prescreening
// during a living run. One ID per line, project root.
const WorklistFile = "screen_worklist.txt"

// Prescreen records the inclusion decision taken on metadata alone.
func Prescreen(rec *record.Record, include bool) error {
	if rec.Status() != state.MdProcessed {
		return fmt.Errorf("record %s: prescreen requires %s, is %s",
			rec.ID, state.MdProcessed, rec.Status())
	}
	dest := state.RevPrescreenExcluded
	if include {
		dest = state.RevPrescreenIncluded
	}
	return rec.SetStatus(dest)
}

// Screen records the full-text screening decision. decisions maps criterion
// names to in/out; the record is included only when every criterion is met.
// The decisions are serialized into screening_criteria as sorted name=in|out
// pairs.
func Screen(rec *record.Record, decisions map[string]bool) error {
	if rec.Status() != state.PdfPrepared {
		return fmt.Errorf("record %s: screen requires %s, is %s",
			rec.ID, state.PdfPrepared, rec.Status())
	}
	if len(decisions) == 0 {
		return fmt.Errorf("record %s: screen needs at least one criterion", rec.ID)
	}

	names := make([]string, 0, len(decisions))
	for name := range decisions {
		names = append(names, name)
	}
	sort.Strings(names)

	included := true
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		verdict := "out"
		if decisions[name] {
			verdict = "in"
		} else {
			included = false
		}
		pairs = append(pairs, name+"="+verdict)
	}
	rec.ScreeningCriteria = strings.Join(pairs, ";")

	dest := state.RevExcluded
	if included {
		dest = state.RevIncluded
	}
	return rec.SetStatus(dest)
}

// Synthesize marks an included record as incorporated into the synthesis.
func Synthesize(rec *record.Record) error {
	if rec.Status() != state.RevIncluded {
		return fmt.Errorf("record %s: data requires %s, is %s",
			rec.ID, state.RevIncluded, rec.Status())
	}
	return rec.SetStatus(state.RevSynthesized)
}

// AppendWorklist adds id to the screening worklist unless already present.
func AppendWorklist(root, id string) error {
	existing, err := ReadWorklist(root)
	if err != nil {
		return err
	}
	for _, have := range existing {
		if have == id {
			return nil
		}
	}
	f, err := os.OpenFile(worklistPath(root), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening worklist: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, id); err != nil {
		return fmt.Errorf("appending to worklist: %w", err)
	}
	return nil
}

// ReadWorklist returns the worklist IDs in file order. A missing file is an
// empty worklist.
func ReadWorklist(root string) ([]string, error) {
	f, err := os.Open(worklistPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening worklist: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			ids = append(ids, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading worklist: %w", err)
	}
	return ids, nil
}

// ClearWorklist removes the worklist file once its entries are consumed.
func ClearWorklist(root string) error {
	err := os.Remove(worklistPath(root))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing worklist: %w", err)
	}
	return nil
}

func worklistPath(root string) string {
	return config.LedgerPath(root, WorklistFile)
}
