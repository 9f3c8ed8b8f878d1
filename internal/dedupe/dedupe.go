// Package dedupe detects and merges duplicate records. Decisions are staged
// in append-only ledgers so that parallel workers never contend on the
// record store, and applied in a single pass at the end of a run.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

// ErrDeferred indicates a record's queue prerequisites did not materialize
// within the wait budget; the record is left unchanged for the next run.
var ErrDeferred = errors.New("dedupe: prerequisites not ready, record deferred")

// Default prerequisite wait bounds.
const (
	DefaultWaitTimeout  = 20 * time.Second
	DefaultPollInterval = time.Second
)

// OutcomeKind classifies the result of comparing a record against all prior
// records in the queue.
type OutcomeKind int

const (
	NonDuplicate OutcomeKind = iota
	PotentialDuplicate
	Duplicate
)

func (k OutcomeKind) String() string {
	switch k {
	case NonDuplicate:
		return "non_duplicate"
	case PotentialDuplicate:
		return "potential_duplicate"
	case Duplicate:
		return "duplicate"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the classification of one record.
type Outcome struct {
	Kind          OutcomeKind
	PartnerID     string
	MaxSimilarity float64
}

// Classifier scores prepared records against the prefix of the comparison
// queue and appends decisions to the ledgers.
type Classifier struct {
	Store *dataset.Store
	Root  string

	// DupThreshold and above is an automatic merge; NonDupThreshold and
	// below is a clear non-duplicate; in between goes to manual review.
	DupThreshold    float64
	NonDupThreshold float64

	WaitTimeout  time.Duration
	PollInterval time.Duration

	// mu serializes ledger access across workers and guards cleansed.
	mu sync.Mutex
	// cleansed holds in-run snapshots that override the canonical entries
	// until the overlay is promoted.
	cleansed map[string]*record.Record
}

// RegisterCleansed records the in-run snapshot of rec. During a living run
// cleansed metadata lives only in the overlay, so peers waiting on rec's
// fingerprint score against this snapshot instead of the stale canonical
// entry. Records parked for manual preparation are registered too; their
// status excludes them as candidates.
func (c *Classifier) RegisterCleansed(rec *record.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleansed == nil {
		c.cleansed = make(map[string]*record.Record)
	}
	c.cleansed[rec.ID] = rec
}

// NewClassifier builds a Classifier with the project's thresholds.
func NewClassifier(store *dataset.Store, root string, settings *config.Settings) *Classifier {
	return &Classifier{
		Store:           store,
		Root:            root,
		DupThreshold:    settings.Dedupe.DupThreshold,
		NonDupThreshold: settings.Dedupe.NonDupThreshold,
		WaitTimeout:     DefaultWaitTimeout,
		PollInterval:    DefaultPollInterval,
	}
}

// Classify queues rec, waits for its queue prerequisites, scores it against
// every prior cleansed record and appends the decision to the matching
// ledger. Records not in md_prepared are ignored, as are members of a pair
// held for manual review. The record itself is not persisted here;
// ApplyMerges folds the ledgers back into the store. The ledger mutations
// hold the classifier lock; the prerequisite wait does not, so a waiting
// worker never blocks its peers.
func (c *Classifier) Classify(ctx context.Context, rec *record.Record) (*Outcome, error) {
	if rec.Status() != state.MdPrepared {
		return nil, nil
	}
	hashID := rec.HashIDString()
	if hashID == "" {
		return nil, fmt.Errorf("dedupe: record %s has no fingerprint", rec.ID)
	}
	c.mu.Lock()
	held, err := c.heldForReview(rec.ID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if held {
		// The pair stays untouched until a human adjudicates it.
		c.mu.Unlock()
		return nil, nil
	}

	queue, err := ReadQueueOrder(c.Root)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if !contains(queue, hashID) {
		if err := AppendQueueOrder(c.Root, hashID); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		queue = append(queue, hashID)
	}
	required := PriorQueue(queue, hashID)

	if len(required) == 0 {
		// First in the queue is a non-duplicate by definition.
		err := AppendNonDuplicate(c.Root, rec.ID)
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return &Outcome{Kind: NonDuplicate}, nil
	}
	c.mu.Unlock()

	records, err := c.awaitPrerequisites(ctx, required)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	best, ok := c.bestCandidate(rec, records, required, queue)
	if !ok {
		if err := AppendNonDuplicate(c.Root, rec.ID); err != nil {
			return nil, err
		}
		return &Outcome{Kind: NonDuplicate}, nil
	}

	outcome := &Outcome{PartnerID: best.rec.ID, MaxSimilarity: best.sim}
	switch {
	case best.sim >= c.DupThreshold:
		outcome.Kind = Duplicate
		err = AppendDuplicate(c.Root, best.rec.ID, rec.ID)
	case best.sim > c.NonDupThreshold:
		outcome.Kind = PotentialDuplicate
		err = AppendPotentialDuplicate(c.Root, best.rec.ID, rec.ID, best.sim)
	default:
		outcome.Kind = NonDuplicate
		outcome.PartnerID = ""
		err = AppendNonDuplicate(c.Root, rec.ID)
	}
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// heldForReview reports whether id belongs to a pair awaiting manual
// adjudication. Such records keep md_prepared until ResolvePotential settles
// the pair; re-classifying them would advance a member past the pending
// review.
func (c *Classifier) heldForReview(id string) (bool, error) {
	pairs, err := ReadPotentialDuplicates(c.Root)
	if err != nil {
		return false, err
	}
	for _, p := range pairs {
		if p.ID1 == id || p.ID2 == id {
			return true, nil
		}
	}
	return false, nil
}

// awaitPrerequisites polls until every required fingerprint is claimed by a
// cleansed record, within the wait budget. The returned snapshot is the one
// that satisfied the requirement, with in-run snapshots from RegisterCleansed
// layered over the canonical entries.
func (c *Classifier) awaitPrerequisites(ctx context.Context, required []string) (map[string]*record.Record, error) {
	timeout := c.WaitTimeout
	if timeout == 0 {
		timeout = DefaultWaitTimeout
	}
	interval := c.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	for {
		records, err := c.Store.LoadRecords(false)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for id, snap := range c.cleansed {
			records[id] = snap
		}
		c.mu.Unlock()
		if prerequisitesMet(records, required) {
			return records, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrDeferred
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// prerequisitesMet checks that every required fingerprint is claimed by a
// record whose metadata is settled: past md_imported, or parked for manual
// preparation. A claim from a record still carrying raw import metadata
// does not count, since scoring against it would use pre-cleansing fields.
func prerequisitesMet(records map[string]*record.Record, required []string) bool {
	claimed := make(map[string]bool)
	for _, rec := range records {
		switch rec.Status() {
		case state.MdRetrieved, state.MdImported:
			continue
		}
		for _, h := range rec.HashIDs {
			claimed[h] = true
		}
	}
	for _, h := range required {
		if !claimed[h] {
			return false
		}
	}
	return true
}

type candidate struct {
	rec      *record.Record
	sim      float64
	queueIdx int
}

// bestCandidate scores rec against every prior record and returns the
// strongest match. Records needing manual preparation are skipped until
// they have been prepared; so is the record itself.
func (c *Classifier) bestCandidate(rec *record.Record, records map[string]*record.Record, required []string, queue []string) (candidate, bool) {
	requiredSet := make(map[string]bool, len(required))
	for _, h := range required {
		requiredSet[h] = true
	}
	queueIndex := make(map[string]int, len(queue))
	for i, h := range queue {
		queueIndex[h] = i
	}

	var best candidate
	found := false
	for _, prior := range records {
		if prior.ID == rec.ID || prior.SharesOrigin(rec) {
			continue
		}
		if prior.Status() == state.MdNeedsManualPrep {
			continue
		}
		inPrefix := false
		idx := len(queue)
		for _, h := range prior.HashIDs {
			if requiredSet[h] {
				inPrefix = true
				if i, ok := queueIndex[h]; ok && i < idx {
					idx = i
				}
			}
		}
		if !inPrefix {
			continue
		}

		cand := candidate{rec: prior, sim: RecordSimilarity(rec, prior), queueIdx: idx}
		if !found || betterCandidate(cand, best) {
			best = cand
			found = true
		}
	}
	return best, found
}

// betterCandidate orders candidates at equal similarity: curated metadata
// wins over non-curated, two curated records are split by abstract length,
// and the earliest queue position breaks remaining ties.
func betterCandidate(a, b candidate) bool {
	if a.sim != b.sim {
		return a.sim > b.sim
	}
	aCur, bCur := a.rec.MasterdataCurated(), b.rec.MasterdataCurated()
	if aCur != bCur {
		return aCur
	}
	if aCur && bCur {
		la, lb := len(a.rec.GetField("abstract")), len(b.rec.GetField("abstract"))
		if la != lb {
			return la > lb
		}
	}
	return a.queueIdx < b.queueIdx
}

// MergeReport summarizes one ApplyMerges pass.
type MergeReport struct {
	Merged        int `json:"merged"`
	NonDuplicates int `json:"non_duplicates"`
	Potential     int `json:"potential"`
}

// ApplyMerges folds the ledgers into the record store: duplicates are fused
// into their survivors, non-duplicates advance to md_processed, potential
// duplicates are re-sorted for manual review. The consumed ledgers are
// deleted afterwards.
func ApplyMerges(store *dataset.Store, root string) (*MergeReport, error) {
	records, err := store.LoadRecords(false)
	if err != nil {
		return nil, err
	}
	report := &MergeReport{}

	duplicates, err := ReadDuplicates(root)
	if err != nil {
		return nil, err
	}
	for _, pair := range duplicates {
		survivor, okA := records[pair.ID1]
		dup, okB := records[pair.ID2]
		if !okA || !okB {
			continue
		}
		survivor.Fuse(dup)
		delete(records, pair.ID2)
		if survivor.Status() == state.MdPrepared {
			if err := survivor.SetStatus(state.MdProcessed); err != nil {
				return nil, err
			}
		}
		report.Merged++
	}

	nonDuplicates, err := ReadNonDuplicates(root)
	if err != nil {
		return nil, err
	}
	for _, id := range nonDuplicates {
		rec, ok := records[id]
		if !ok {
			continue
		}
		if rec.Status() == state.MdPrepared {
			if err := rec.SetStatus(state.MdProcessed); err != nil {
				return nil, err
			}
		}
		report.NonDuplicates++
	}

	potentials, err := ReadPotentialDuplicates(root)
	if err != nil {
		return nil, err
	}
	if len(potentials) > 0 {
		if err := WritePotentialDuplicates(root, potentials); err != nil {
			return nil, err
		}
	}
	report.Potential = len(potentials)

	if err := store.SaveRecords(records); err != nil {
		return nil, err
	}
	return report, RemoveConsumedLedgers(root)
}

// ResolvePotential settles one manually adjudicated pair: a merge fuses id2
// into id1; a keep advances both to md_processed. The pair is removed from
// the ledger either way.
func ResolvePotential(store *dataset.Store, root, id1, id2 string, merge bool) error {
	records, err := store.LoadRecords(false)
	if err != nil {
		return err
	}
	survivor, okA := records[id1]
	other, okB := records[id2]
	if !okA || !okB {
		return fmt.Errorf("dedupe: pair %s/%s not found in dataset", id1, id2)
	}

	if merge {
		survivor.Fuse(other)
		delete(records, id2)
		if survivor.Status() == state.MdPrepared {
			if err := survivor.SetStatus(state.MdProcessed); err != nil {
				return err
			}
		}
	} else {
		for _, rec := range []*record.Record{survivor, other} {
			if rec.Status() == state.MdPrepared {
				if err := rec.SetStatus(state.MdProcessed); err != nil {
					return err
				}
			}
		}
	}

	pairs, err := ReadPotentialDuplicates(root)
	if err != nil {
		return err
	}
	remaining := pairs[:0]
	for _, p := range pairs {
		if (p.ID1 == id1 && p.ID2 == id2) || (p.ID1 == id2 && p.ID2 == id1) {
			continue
		}
		remaining = append(remaining, p)
	}
	if len(remaining) == 0 {
		if err := removeIfExists(config.LedgerPath(root, config.PotentialDuplicatesFile)); err != nil {
			return err
		}
	} else if err := WritePotentialDuplicates(root, remaining); err != nil {
		return err
	}

	return store.SaveRecords(records)
}

func contains(list []string, s string) bool {
	for _, el := range list {
		if el == s {
			return true
		}
	}
	return false
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
