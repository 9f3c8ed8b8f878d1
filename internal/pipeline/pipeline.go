// Package pipeline orchestrates the record operations of a review project
// across the configured strategy: batch runs committing between operations,
// or the living mode where a worker pool drives each record forward as far
// as it can go in one invocation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/crossref"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/dedupe"
	"github.com/livrev/livrev/internal/fingerprint"
	"github.com/livrev/livrev/internal/gitrepo"
	"github.com/livrev/livrev/internal/importer"
	"github.com/livrev/livrev/internal/index"
	"github.com/livrev/livrev/internal/loader"
	"github.com/livrev/livrev/internal/prep"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/screen"
	"github.com/livrev/livrev/internal/state"
	"github.com/livrev/livrev/internal/status"
)

// Runner drives the pipeline over one project.
type Runner struct {
	Root     string
	Settings *config.Settings
	Store    *dataset.Store
	Cleanser *prep.Cleanser

	// Workers overrides the settings-derived pool size when positive.
	Workers int
}

// New builds a Runner for the project at root. Crossref enrichment is wired
// in unless disabled in the settings.
func New(root string, settings *config.Settings) (*Runner, error) {
	var md prep.MetadataSource
	if settings.Prep.CrossrefEnrichment {
		md = crossref.NewClient()
	}
	cleanser, err := prep.New(root, md)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Root:     root,
		Settings: settings,
		Store:    dataset.Open(root),
		Cleanser: cleanser,
	}, nil
}

// workerCount resolves the pool size: explicit override, then settings, then
// CPU count minus two, never below one.
func (r *Runner) workerCount() int {
	if r.Workers > 0 {
		return r.Workers
	}
	if r.Settings.Workers > 0 {
		return r.Settings.Workers
	}
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

// precondition refuses an operation while records linger in preceding states,
// if the project is configured to delay automated processing. The plain
// traditional strategy is strict; traditional-delay-manual and living proceed
// past stragglers.
func (r *Runner) precondition(op state.Operation) error {
	strict := r.Settings.Project.DelayAutomated ||
		r.Settings.Project.Strategy == config.StrategyTraditional
	if !strict {
		return nil
	}
	records, err := r.Store.LoadRecords(true)
	if err != nil {
		return err
	}
	stats := status.Compute(records)
	return state.CheckPrecondition(op, stats.Currently, true)
}

// RunReport summarizes one living run.
type RunReport struct {
	Imported       int                 `json:"imported"`
	Prepared       int                 `json:"prepared"`
	NeedsManual    int                 `json:"needs_manual"`
	Deferred       int                 `json:"deferred"`
	NewlyProcessed []string            `json:"newly_processed,omitempty"`
	Merge          *dedupe.MergeReport `json:"merge,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
	Interrupted    bool                `json:"interrupted,omitempty"`
}

// Run executes the living strategy: import every novel raw record, then fan
// the pending records out to a worker pool where each is cleansed, appended
// to the overlay and classified against its queue prefix. When all workers
// finish, the overlay replaces the canonical file, the merge ledgers are
// applied, and newly processed records join the screening worklist.
//
// A cancelled context drains the workers and discards the partial overlay;
// because imports are keyed by fingerprint, the next run resumes where this
// one stopped.
func (r *Runner) Run(ctx context.Context, sources []string) (*RunReport, error) {
	report := &RunReport{}

	// A partial overlay from an interrupted run is discarded; its records
	// are simply driven again.
	if err := removeIfExists(config.OverlayPath(r.Root)); err != nil {
		return nil, err
	}

	added, err := r.importSources(sources, report)
	if err != nil {
		return nil, err
	}

	// Loaded after the import so that origins attached to already-known
	// records during this run are carried into the overlay.
	existing, err := r.Store.LoadRecords(false)
	if err != nil {
		return nil, err
	}
	processedBefore := make(map[string]bool)
	for id, rec := range existing {
		if rec.Status() == state.MdProcessed {
			processedBefore[id] = true
		}
	}

	// Pending records from earlier runs resume first, in ID order; records
	// imported this run follow in arrival order.
	addedThisRun := make(map[string]bool, len(added))
	for _, rec := range added {
		addedThisRun[rec.ID] = true
	}
	var work []*record.Record
	for _, id := range sortedIDs(existing) {
		rec := existing[id]
		if addedThisRun[id] {
			continue
		}
		if rec.Status() == state.MdImported || rec.Status() == state.MdPrepared {
			work = append(work, rec)
		}
	}
	for _, rec := range added {
		work = append(work, existing[rec.ID])
	}

	// Seed the overlay with every record the workers will not touch, so that
	// promoting it yields the complete dataset.
	touched := make(map[string]bool, len(work))
	for _, rec := range work {
		touched[rec.ID] = true
	}
	for _, id := range sortedIDs(existing) {
		if touched[id] {
			continue
		}
		if err := r.Store.AppendOverlay(existing[id]); err != nil {
			return nil, err
		}
	}

	classifier := dedupe.NewClassifier(r.Store, r.Root, r.Settings)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		runErr error
	)
	jobs := make(chan *record.Record)
	for i := 0; i < r.workerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := r.driveRecord(ctx, rec, classifier, &mu, report); err != nil {
					mu.Lock()
					if runErr == nil {
						runErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
dispatch:
	for _, rec := range work {
		select {
		case jobs <- rec:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		report.Interrupted = true
		if err := removeIfExists(config.OverlayPath(r.Root)); err != nil {
			return report, err
		}
		return report, nil
	}
	if runErr != nil {
		return report, runErr
	}

	if err := r.Store.PromoteOverlay(); err != nil {
		return report, err
	}
	merge, err := dedupe.ApplyMerges(r.Store, r.Root)
	if err != nil {
		return report, err
	}
	report.Merge = merge

	after, err := r.Store.LoadRecords(true)
	if err != nil {
		return report, err
	}
	for _, id := range sortedIDs(after) {
		if after[id].Status() != state.MdProcessed || processedBefore[id] {
			continue
		}
		if err := screen.AppendWorklist(r.Root, id); err != nil {
			return report, err
		}
		report.NewlyProcessed = append(report.NewlyProcessed, id)
	}
	return report, nil
}

// driveRecord is the per-record worker loop: cleanse, append to the overlay,
// classify. Persistent cleansing failures park the record for manual
// preparation instead of failing the run.
func (r *Runner) driveRecord(ctx context.Context, rec *record.Record, classifier *dedupe.Classifier, mu *sync.Mutex, report *RunReport) error {
	if rec.Status() == state.MdImported {
		if err := r.Cleanser.Cleanse(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if serr := rec.SetStatus(state.MdNeedsManualPrep); serr != nil {
				return serr
			}
			mu.Lock()
			report.Warnings = append(report.Warnings, fmt.Sprintf("cleansing %s: %v", rec.ID, err))
			mu.Unlock()
		}
	}

	// Peers waiting on this record's fingerprint score against the cleansed
	// snapshot, not the canonical entry.
	classifier.RegisterCleansed(rec)

	// Overlay appends are serialized across workers. Classification runs
	// outside the lock: a worker polling for its queue prerequisites must
	// not block its peers from registering theirs.
	mu.Lock()
	err := r.Store.AppendOverlay(rec)
	if err == nil {
		switch rec.Status() {
		case state.MdNeedsManualPrep:
			report.NeedsManual++
		case state.MdPrepared:
			report.Prepared++
		}
	}
	mu.Unlock()
	if err != nil {
		return err
	}

	if rec.Status() != state.MdPrepared {
		return nil
	}
	if _, err := classifier.Classify(ctx, rec); err != nil {
		if errors.Is(err, dedupe.ErrDeferred) {
			mu.Lock()
			report.Deferred++
			mu.Unlock()
			return nil
		}
		return err
	}
	return nil
}

// importSources loads each source in order and imports every raw record whose
// fingerprint is not yet known. The local index answers the common case of an
// unchanged export row without a store scan.
func (r *Runner) importSources(sources []string, report *RunReport) ([]*record.Record, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	descriptors, err := dataset.LoadSearchDetails(config.SearchDetailsPath(r.Root))
	if err != nil {
		return nil, err
	}
	byName := make(map[string]dataset.SourceDescriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Filename] = d
	}

	var ix *index.Index
	if opened, err := index.Open(r.Root); err == nil {
		ix = opened
		defer ix.Close()
	}

	im := importer.New(r.Store, r.Settings.Project.HashVersion)
	var added []*record.Record
	for _, src := range sources {
		raws, count, err := loader.Load(src)
		if err != nil {
			return nil, err
		}
		if d, ok := byName[filepath.Base(src)]; ok {
			if err := dataset.ValidateSource(config.SearchPath(r.Root), d, count); err != nil {
				return nil, err
			}
		}
		for _, raw := range raws {
			if ix != nil {
				// The fast path only covers rows whose fingerprint AND
				// origin are both on file; a known record surfacing in a
				// new source still goes through the importer to collect
				// the origin.
				h, err := fingerprint.Compute(r.Settings.Project.HashVersion, raw)
				if err == nil {
					if known, err := ix.HasHash(h); err == nil && known {
						if owner, err := ix.ByOrigin(raw.Origin()); err == nil && owner != "" {
							continue
						}
					}
				}
			}
			rec, err := im.ImportOne(raw)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				added = append(added, rec)
				report.Imported++
			}
		}
	}
	return added, nil
}

// PrepReport summarizes one batch preparation pass.
type PrepReport struct {
	Prepared    int      `json:"prepared"`
	NeedsManual int      `json:"needs_manual"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Import runs the batch importer over the given sources.
func (r *Runner) Import(sources []string) (*importer.Report, error) {
	im := importer.New(r.Store, r.Settings.Project.HashVersion)
	return im.Import(sources)
}

// Prep cleanses every imported record over the worker pool and saves the
// result in one pass.
func (r *Runner) Prep(ctx context.Context) (*PrepReport, error) {
	if err := r.precondition(state.OpPrep); err != nil {
		return nil, err
	}
	records, err := r.Store.LoadRecords(false)
	if err != nil {
		return nil, err
	}

	var pending []*record.Record
	for _, id := range sortedIDs(records) {
		if records[id].Status() == state.MdImported {
			pending = append(pending, records[id])
		}
	}

	report := &PrepReport{}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	jobs := make(chan *record.Record)
	for i := 0; i < r.workerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				if ctx.Err() != nil {
					continue
				}
				err := r.Cleanser.Cleanse(ctx, rec)
				mu.Lock()
				if err != nil && ctx.Err() == nil {
					if rec.SetStatus(state.MdNeedsManualPrep) == nil {
						report.Warnings = append(report.Warnings, fmt.Sprintf("cleansing %s: %v", rec.ID, err))
					}
				}
				switch rec.Status() {
				case state.MdPrepared:
					report.Prepared++
				case state.MdNeedsManualPrep:
					report.NeedsManual++
				}
				mu.Unlock()
			}
		}()
	}
	for _, rec := range pending {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if err := r.Store.SaveRecords(records); err != nil {
		return report, err
	}
	return report, nil
}

// Dedupe classifies every prepared record in ID order and applies the
// resulting ledgers.
func (r *Runner) Dedupe(ctx context.Context) (*dedupe.MergeReport, error) {
	if err := r.precondition(state.OpDedupe); err != nil {
		return nil, err
	}
	records, err := r.Store.LoadRecords(false)
	if err != nil {
		return nil, err
	}

	classifier := dedupe.NewClassifier(r.Store, r.Root, r.Settings)
	for _, id := range sortedIDs(records) {
		rec := records[id]
		if rec.Status() != state.MdPrepared {
			continue
		}
		if _, err := classifier.Classify(ctx, rec); err != nil {
			return nil, err
		}
	}
	return dedupe.ApplyMerges(r.Store, r.Root)
}

// RunTraditional executes load, prep and dedupe over the whole dataset,
// committing between operations.
func (r *Runner) RunTraditional(ctx context.Context, sources []string) (*RunReport, error) {
	report := &RunReport{}

	if len(sources) > 0 {
		imp, err := r.Import(sources)
		if err != nil {
			return nil, err
		}
		report.Imported = imp.Added()
		report.Warnings = append(report.Warnings, imp.Warnings...)
		if err := r.Checkpoint(state.OpLoad); err != nil {
			return report, err
		}
	}

	prepReport, err := r.Prep(ctx)
	if err != nil {
		return report, err
	}
	report.Prepared = prepReport.Prepared
	report.NeedsManual = prepReport.NeedsManual
	report.Warnings = append(report.Warnings, prepReport.Warnings...)
	if err := r.Checkpoint(state.OpPrep); err != nil {
		return report, err
	}

	merge, err := r.Dedupe(ctx)
	if err != nil {
		return report, err
	}
	report.Merge = merge
	if err := r.Checkpoint(state.OpDedupe); err != nil {
		return report, err
	}
	return report, nil
}

// Checkpoint refreshes the status file and commits the project state with the
// deterministic stage message. Outside a git repository the status file is
// still written and the commit is skipped.
func (r *Runner) Checkpoint(op state.Operation) error {
	transitions, err := status.Transitions(r.Store)
	if err != nil {
		return err
	}
	records, err := r.Store.LoadRecords(true)
	if err != nil {
		return err
	}
	stats := status.Compute(records)
	if err := status.Write(r.Root, stats); err != nil {
		return err
	}

	repoRoot, err := gitrepo.FindRepoRoot(r.Root)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNotGitRepo) {
			return nil
		}
		return err
	}
	message := status.CommitMessage(op, stats, transitions)
	return gitrepo.Commit(repoRoot, message, r.Root)
}

func sortedIDs(records map[string]*record.Record) []string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
