package dedupe

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/livrev/livrev/internal/config"
)

// The merge engine persists its intermediate decisions in append-only CSV
// ledgers at the project root. apply consumes and deletes them.

// DuplicatePair records that ID2 is a duplicate of the surviving ID1.
type DuplicatePair struct {
	ID1, ID2 string
}

// PotentialPair records a pair held for manual adjudication.
type PotentialPair struct {
	ID1, ID2      string
	MaxSimilarity float64
}

// AppendQueueOrder appends one fingerprint to the comparison queue.
func AppendQueueOrder(root, hashID string) error {
	return appendLine(config.LedgerPath(root, config.QueueOrderFile), hashID)
}

// ReadQueueOrder returns the queued fingerprints in arrival order. A missing
// file is an empty queue.
func ReadQueueOrder(root string) ([]string, error) {
	f, err := os.Open(config.LedgerPath(root, config.QueueOrderFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queue []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			queue = append(queue, line)
		}
	}
	return queue, sc.Err()
}

// PriorQueue returns the queue entries preceding hashID, or nil if hashID is
// not queued.
func PriorQueue(queue []string, hashID string) []string {
	for i, el := range queue {
		if el == hashID {
			return queue[:i]
		}
	}
	return nil
}

// AppendDuplicate records an auto-merge decision: id2 will be fused into id1.
func AppendDuplicate(root, id1, id2 string) error {
	path := config.LedgerPath(root, config.DuplicateTuplesFile)
	if err := ensureHeader(path, `"ID1","ID2"`); err != nil {
		return err
	}
	return appendLine(path, fmt.Sprintf("%q,%q", id1, id2))
}

// AppendNonDuplicate records that id matched nothing.
func AppendNonDuplicate(root, id string) error {
	path := config.LedgerPath(root, config.NonDuplicatesFile)
	if err := ensureHeader(path, `"ID"`); err != nil {
		return err
	}
	return appendLine(path, fmt.Sprintf("%q", id))
}

// AppendPotentialDuplicate records a pair for manual review. The pair is
// stored in lexicographic order so re-runs produce identical rows.
func AppendPotentialDuplicate(root, a, b string, sim float64) error {
	if b < a {
		a, b = b, a
	}
	path := config.LedgerPath(root, config.PotentialDuplicatesFile)
	if err := ensureHeader(path, `"ID1","ID2","max_similarity"`); err != nil {
		return err
	}
	return appendLine(path, fmt.Sprintf("%q,%q,%q", a, b, formatSimilarity(sim)))
}

// ReadDuplicates returns the duplicate ledger. Missing file means no rows.
func ReadDuplicates(root string) ([]DuplicatePair, error) {
	rows, err := readLedger(config.LedgerPath(root, config.DuplicateTuplesFile), 2)
	if err != nil {
		return nil, err
	}
	pairs := make([]DuplicatePair, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, DuplicatePair{ID1: row[0], ID2: row[1]})
	}
	return pairs, nil
}

// ReadNonDuplicates returns the non-duplicate ledger IDs.
func ReadNonDuplicates(root string) ([]string, error) {
	rows, err := readLedger(config.LedgerPath(root, config.NonDuplicatesFile), 1)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row[0])
	}
	return ids, nil
}

// ReadPotentialDuplicates returns the manual-review ledger.
func ReadPotentialDuplicates(root string) ([]PotentialPair, error) {
	rows, err := readLedger(config.LedgerPath(root, config.PotentialDuplicatesFile), 3)
	if err != nil {
		return nil, err
	}
	pairs := make([]PotentialPair, 0, len(rows))
	for _, row := range rows {
		sim, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("potential duplicates ledger: bad similarity %q: %w", row[2], err)
		}
		pairs = append(pairs, PotentialPair{ID1: row[0], ID2: row[1], MaxSimilarity: sim})
	}
	return pairs, nil
}

// WritePotentialDuplicates replaces the manual-review ledger, sorted by
// descending similarity then by IDs.
func WritePotentialDuplicates(root string, pairs []PotentialPair) error {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].MaxSimilarity != pairs[j].MaxSimilarity {
			return pairs[i].MaxSimilarity > pairs[j].MaxSimilarity
		}
		if pairs[i].ID1 != pairs[j].ID1 {
			return pairs[i].ID1 < pairs[j].ID1
		}
		return pairs[i].ID2 < pairs[j].ID2
	})

	f, err := os.Create(config.LedgerPath(root, config.PotentialDuplicatesFile))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, `"ID1","ID2","max_similarity"`)
	for _, p := range pairs {
		fmt.Fprintf(w, "%q,%q,%q\n", p.ID1, p.ID2, formatSimilarity(p.MaxSimilarity))
	}
	return w.Flush()
}

// RemoveConsumedLedgers deletes the queue and the auto-decided ledgers after
// apply. The potential-duplicates ledger survives until manual adjudication.
func RemoveConsumedLedgers(root string) error {
	for _, name := range []string{
		config.QueueOrderFile,
		config.DuplicateTuplesFile,
		config.NonDuplicatesFile,
	} {
		if err := os.Remove(config.LedgerPath(root, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func formatSimilarity(sim float64) string {
	return strconv.FormatFloat(sim, 'f', 4, 64)
}

func ensureHeader(path, header string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return appendLine(path, header)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// readLedger reads a headered CSV ledger with a fixed column count. A
// missing file yields no rows.
func readLedger(path string, columns int) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = columns
	if _, err := rd.Read(); err != nil { // header
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	var rows [][]string
	for {
		row, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
