package dedupe

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

func setupStore(t *testing.T, records ...*record.Record) (*dataset.Store, string) {
	t.Helper()
	root := t.TempDir()
	store := dataset.Open(root)
	m := make(map[string]*record.Record)
	for _, rec := range records {
		m[rec.ID] = rec
	}
	if len(m) > 0 {
		if err := store.SaveRecords(m); err != nil {
			t.Fatalf("SaveRecords: %v", err)
		}
	}
	return store, root
}

func storedRecord(t *testing.T, id, origin, hashID string, fields map[string]string) *record.Record {
	t.Helper()
	rec := preparedRecord(t, id, fields)
	rec.AddOrigin(origin)
	rec.AddHashID(hashID)
	return rec
}

func classifier(store *dataset.Store, root string) *Classifier {
	return &Classifier{
		Store:           store,
		Root:            root,
		DupThreshold:    0.95,
		NonDupThreshold: 0.70,
		WaitTimeout:     100 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
	}
}

func TestQueueOrderRoundTrip(t *testing.T) {
	root := t.TempDir()
	for _, h := range []string{"hash-a", "hash-b", "hash-c"} {
		if err := AppendQueueOrder(root, h); err != nil {
			t.Fatalf("AppendQueueOrder: %v", err)
		}
	}
	queue, err := ReadQueueOrder(root)
	if err != nil {
		t.Fatalf("ReadQueueOrder: %v", err)
	}
	if len(queue) != 3 || queue[0] != "hash-a" || queue[2] != "hash-c" {
		t.Errorf("queue = %v", queue)
	}

	prior := PriorQueue(queue, "hash-c")
	if len(prior) != 2 || prior[1] != "hash-b" {
		t.Errorf("PriorQueue = %v", prior)
	}
	if got := PriorQueue(queue, "hash-a"); len(got) != 0 {
		t.Errorf("PriorQueue of first element = %v, want empty", got)
	}
}

func TestLedgerRoundTrips(t *testing.T) {
	root := t.TempDir()

	if err := AppendDuplicate(root, "A", "B"); err != nil {
		t.Fatalf("AppendDuplicate: %v", err)
	}
	dups, err := ReadDuplicates(root)
	if err != nil {
		t.Fatalf("ReadDuplicates: %v", err)
	}
	if len(dups) != 1 || dups[0].ID1 != "A" || dups[0].ID2 != "B" {
		t.Errorf("duplicates = %v", dups)
	}

	if err := AppendNonDuplicate(root, "C"); err != nil {
		t.Fatalf("AppendNonDuplicate: %v", err)
	}
	nonDups, err := ReadNonDuplicates(root)
	if err != nil {
		t.Fatalf("ReadNonDuplicates: %v", err)
	}
	if len(nonDups) != 1 || nonDups[0] != "C" {
		t.Errorf("non-duplicates = %v", nonDups)
	}

	// Pairs are stored in lexicographic order regardless of argument order.
	if err := AppendPotentialDuplicate(root, "Z", "D", 0.8123); err != nil {
		t.Fatalf("AppendPotentialDuplicate: %v", err)
	}
	pots, err := ReadPotentialDuplicates(root)
	if err != nil {
		t.Fatalf("ReadPotentialDuplicates: %v", err)
	}
	if len(pots) != 1 || pots[0].ID1 != "D" || pots[0].ID2 != "Z" {
		t.Errorf("potential duplicates = %v", pots)
	}
	if pots[0].MaxSimilarity != 0.8123 {
		t.Errorf("similarity = %v", pots[0].MaxSimilarity)
	}
}

func TestWritePotentialDuplicatesSortsDescending(t *testing.T) {
	root := t.TempDir()
	pairs := []PotentialPair{
		{ID1: "A", ID2: "B", MaxSimilarity: 0.72},
		{ID1: "C", ID2: "D", MaxSimilarity: 0.94},
		{ID1: "E", ID2: "F", MaxSimilarity: 0.85},
	}
	if err := WritePotentialDuplicates(root, pairs); err != nil {
		t.Fatalf("WritePotentialDuplicates: %v", err)
	}
	got, err := ReadPotentialDuplicates(root)
	if err != nil {
		t.Fatalf("ReadPotentialDuplicates: %v", err)
	}
	if got[0].ID1 != "C" || got[1].ID1 != "E" || got[2].ID1 != "A" {
		t.Errorf("order = %v", got)
	}
}

func TestClassifyFirstRecordIsNonDuplicate(t *testing.T) {
	rec := storedRecord(t, "Webster2002", "ais.bib/1", "hash-1", map[string]string{
		"author": "Webster, Jane", "title": "Analyzing the Past", "year": "2002",
		"journal": "MIS Quarterly",
	})
	store, root := setupStore(t, rec)

	out, err := classifier(store, root).Classify(context.Background(), rec)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Kind != NonDuplicate {
		t.Errorf("kind = %s, want non_duplicate", out.Kind)
	}
	nonDups, _ := ReadNonDuplicates(root)
	if len(nonDups) != 1 || nonDups[0] != "Webster2002" {
		t.Errorf("non-duplicates ledger = %v", nonDups)
	}
}

func TestClassifyDuplicate(t *testing.T) {
	fields := map[string]string{
		"author": "Webster, Jane and Watson, Richard T.",
		"title":  "Analyzing the Past to Prepare for the Future",
		"year":   "2002", "journal": "MIS Quarterly",
	}
	prior := storedRecord(t, "Webster2002", "ais.bib/1", "hash-1", fields)
	dup := storedRecord(t, "Webster2002a", "wos.bib/7", "hash-2", fields)
	store, root := setupStore(t, prior, dup)

	if err := AppendQueueOrder(root, "hash-1"); err != nil {
		t.Fatal(err)
	}

	out, err := classifier(store, root).Classify(context.Background(), dup)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Kind != Duplicate {
		t.Fatalf("kind = %s, want duplicate", out.Kind)
	}
	if out.PartnerID != "Webster2002" {
		t.Errorf("partner = %q", out.PartnerID)
	}
	if out.MaxSimilarity != 1.0 {
		t.Errorf("similarity = %v", out.MaxSimilarity)
	}
	dups, _ := ReadDuplicates(root)
	if len(dups) != 1 || dups[0].ID1 != "Webster2002" || dups[0].ID2 != "Webster2002a" {
		t.Errorf("duplicate ledger = %v", dups)
	}
}

func TestClassifyPotentialDuplicate(t *testing.T) {
	prior := storedRecord(t, "Smith2020", "ais.bib/1", "hash-1", map[string]string{
		"author": "Smith, Jane",
		"title":  "User Satisfaction with Information Systems",
		"year":   "2020", "journal": "MIS Quarterly",
	})
	cand := storedRecord(t, "Smith2020a", "wos.bib/2", "hash-2", map[string]string{
		"author": "Smith, Jane",
		"title":  "User Satisfaction with Enterprise Systems",
		"year":   "2020", "journal": "MIS Quarterly",
	})
	store, root := setupStore(t, prior, cand)

	if err := AppendQueueOrder(root, "hash-1"); err != nil {
		t.Fatal(err)
	}

	out, err := classifier(store, root).Classify(context.Background(), cand)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Kind != PotentialDuplicate {
		t.Fatalf("kind = %s (similarity %v), want potential_duplicate", out.Kind, out.MaxSimilarity)
	}
	pots, _ := ReadPotentialDuplicates(root)
	if len(pots) != 1 {
		t.Fatalf("potential ledger rows = %d", len(pots))
	}
	if pots[0].ID1 != "Smith2020" || pots[0].ID2 != "Smith2020a" {
		t.Errorf("pair = %v", pots[0])
	}
}

func TestClassifySkipsNonPrepared(t *testing.T) {
	rec, err := record.New("X", state.MdImported)
	if err != nil {
		t.Fatal(err)
	}
	store, root := setupStore(t)
	out, err := classifier(store, root).Classify(context.Background(), rec)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil outcome for non-prepared record, got %v", out)
	}
}

func TestClassifyDefersOnMissingPrerequisite(t *testing.T) {
	rec := storedRecord(t, "Late2020", "ais.bib/9", "hash-9", map[string]string{
		"author": "Late, Larry", "title": "A Record That Arrives Early",
		"year": "2020", "journal": "MIS Quarterly",
	})
	store, root := setupStore(t, rec)

	// A fingerprint is queued but its record never reaches the store.
	if err := AppendQueueOrder(root, "hash-ghost"); err != nil {
		t.Fatal(err)
	}

	_, err := classifier(store, root).Classify(context.Background(), rec)
	if err != ErrDeferred {
		t.Errorf("err = %v, want ErrDeferred", err)
	}
}

func TestClassifyIgnoresManualPreparationRecords(t *testing.T) {
	manual, err := record.Restore("Manual2020", state.MdNeedsManualPrep)
	if err != nil {
		t.Fatal(err)
	}
	manual.EntryType = "article"
	manual.AddOrigin("ais.bib/3")
	manual.AddHashID("hash-1")
	for k, v := range map[string]string{
		"author": "Webster, Jane", "title": "Analyzing the Past", "year": "2002",
		"journal": "MIS Quarterly",
	} {
		manual.UpdateField(k, v, "test", "")
	}
	cand := storedRecord(t, "Webster2002a", "wos.bib/4", "hash-2", map[string]string{
		"author": "Webster, Jane", "title": "Analyzing the Past", "year": "2002",
		"journal": "MIS Quarterly",
	})
	store, root := setupStore(t, manual, cand)
	if err := AppendQueueOrder(root, "hash-1"); err != nil {
		t.Fatal(err)
	}

	out, err := classifier(store, root).Classify(context.Background(), cand)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Kind != NonDuplicate {
		t.Errorf("kind = %s, want non_duplicate (manual records excluded)", out.Kind)
	}
}

func TestApplyMerges(t *testing.T) {
	fields := map[string]string{
		"author": "Webster, Jane", "title": "Analyzing the Past", "year": "2002",
		"journal": "MIS Quarterly",
	}
	survivor := storedRecord(t, "Webster2002", "ais.bib/1", "hash-1", fields)
	dup := storedRecord(t, "Webster2002a", "wos.bib/2", "hash-2", fields)
	clean := storedRecord(t, "Davis1989", "ais.bib/3", "hash-3", map[string]string{
		"author": "Davis, Fred", "title": "Perceived Usefulness", "year": "1989",
		"journal": "MIS Quarterly",
	})
	store, root := setupStore(t, survivor, dup, clean)

	if err := AppendQueueOrder(root, "hash-1"); err != nil {
		t.Fatal(err)
	}
	if err := AppendDuplicate(root, "Webster2002", "Webster2002a"); err != nil {
		t.Fatal(err)
	}
	if err := AppendNonDuplicate(root, "Davis1989"); err != nil {
		t.Fatal(err)
	}

	report, err := ApplyMerges(store, root)
	if err != nil {
		t.Fatalf("ApplyMerges: %v", err)
	}
	if report.Merged != 1 || report.NonDuplicates != 1 {
		t.Errorf("report = %+v", report)
	}

	records, err := store.LoadRecords(false)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if _, ok := records["Webster2002a"]; ok {
		t.Error("merged duplicate still present")
	}
	merged := records["Webster2002"]
	if merged.Status() != state.MdProcessed {
		t.Errorf("survivor status = %s, want md_processed", merged.Status())
	}
	if got := merged.HashIDString(); got != "hash-1,hash-2" {
		t.Errorf("survivor hash ids = %q", got)
	}
	if len(merged.Origins) != 2 {
		t.Errorf("survivor origins = %v", merged.Origins)
	}
	if records["Davis1989"].Status() != state.MdProcessed {
		t.Errorf("non-duplicate status = %s", records["Davis1989"].Status())
	}

	for _, name := range []string{
		config.QueueOrderFile, config.DuplicateTuplesFile, config.NonDuplicatesFile,
	} {
		if _, err := os.Stat(config.LedgerPath(root, name)); !os.IsNotExist(err) {
			t.Errorf("ledger %s should be deleted", name)
		}
	}
}

func TestResolvePotentialMerge(t *testing.T) {
	fields := map[string]string{
		"author": "Smith, Jane", "title": "User Satisfaction", "year": "2020",
		"journal": "MIS Quarterly",
	}
	a := storedRecord(t, "Smith2020", "ais.bib/1", "hash-1", fields)
	b := storedRecord(t, "Smith2020a", "wos.bib/2", "hash-2", fields)
	store, root := setupStore(t, a, b)
	if err := AppendPotentialDuplicate(root, "Smith2020", "Smith2020a", 0.88); err != nil {
		t.Fatal(err)
	}

	if err := ResolvePotential(store, root, "Smith2020", "Smith2020a", true); err != nil {
		t.Fatalf("ResolvePotential: %v", err)
	}
	records, _ := store.LoadRecords(false)
	if _, ok := records["Smith2020a"]; ok {
		t.Error("merged record still present")
	}
	if records["Smith2020"].Status() != state.MdProcessed {
		t.Errorf("survivor status = %s", records["Smith2020"].Status())
	}
	if _, err := os.Stat(config.LedgerPath(root, config.PotentialDuplicatesFile)); !os.IsNotExist(err) {
		t.Error("settled ledger should be deleted")
	}
}

func TestClassifyHoldsPairsAwaitingReview(t *testing.T) {
	prior := storedRecord(t, "Smith2020", "ais.bib/1", "hash-1", map[string]string{
		"author": "Smith, Jane",
		"title":  "User Satisfaction with Information Systems",
		"year":   "2020", "journal": "MIS Quarterly",
	})
	cand := storedRecord(t, "Smith2020a", "wos.bib/2", "hash-2", map[string]string{
		"author": "Smith, Jane",
		"title":  "User Satisfaction with Enterprise Systems",
		"year":   "2020", "journal": "MIS Quarterly",
	})
	store, root := setupStore(t, prior, cand)
	ctx := context.Background()

	c := classifier(store, root)
	if _, err := c.Classify(ctx, prior); err != nil {
		t.Fatalf("Classify(prior): %v", err)
	}
	if _, err := c.Classify(ctx, cand); err != nil {
		t.Fatalf("Classify(cand): %v", err)
	}
	if _, err := ApplyMerges(store, root); err != nil {
		t.Fatalf("ApplyMerges: %v", err)
	}

	records, err := store.LoadRecords(false)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	held := records["Smith2020a"]
	if held.Status() != state.MdPrepared {
		t.Fatalf("held record status = %s, want md_prepared", held.Status())
	}

	// A later pass over the same dataset leaves the pending pair alone.
	out, err := classifier(store, root).Classify(ctx, held)
	if err != nil {
		t.Fatalf("Classify(held): %v", err)
	}
	if out != nil {
		t.Fatalf("outcome = %+v, want none while the pair awaits review", out)
	}
	report, err := ApplyMerges(store, root)
	if err != nil {
		t.Fatalf("second ApplyMerges: %v", err)
	}
	if report.Merged != 0 || report.NonDuplicates != 0 {
		t.Errorf("second pass report = %+v, want no decisions", report)
	}
	records, _ = store.LoadRecords(false)
	if got := records["Smith2020a"].Status(); got != state.MdPrepared {
		t.Errorf("held record advanced to %s", got)
	}
	pots, _ := ReadPotentialDuplicates(root)
	if len(pots) != 1 {
		t.Fatalf("potential ledger rows = %d, want 1", len(pots))
	}

	// Adjudication still settles the pair.
	if err := ResolvePotential(store, root, "Smith2020", "Smith2020a", false); err != nil {
		t.Fatalf("ResolvePotential: %v", err)
	}
	records, _ = store.LoadRecords(false)
	if got := records["Smith2020a"].Status(); got != state.MdProcessed {
		t.Errorf("settled record status = %s, want md_processed", got)
	}
}

// importedRecord builds a record that still carries raw export metadata.
func importedRecord(t *testing.T, id, origin, hashID string, fields map[string]string) *record.Record {
	t.Helper()
	rec, err := record.New(id, state.MdImported)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec.EntryType = "article"
	for k, v := range fields {
		if err := rec.UpdateField(k, v, origin, "imported"); err != nil {
			t.Fatalf("UpdateField(%s): %v", k, err)
		}
	}
	rec.AddOrigin(origin)
	rec.AddHashID(hashID)
	return rec
}

func TestClassifyWaitsForCleansedClaimants(t *testing.T) {
	raw := importedRecord(t, "Webster2002", "ais.bib/1", "hash-1", map[string]string{
		"author": "Jane Webster and Richard T. Watson",
		"title":  "Analyzing the Past to Prepare for the Future",
		"year":   "2002", "journal": "MIS Quarterly",
	})
	cand := storedRecord(t, "Webster2002a", "wos.bib/2", "hash-2", map[string]string{
		"author": "Webster, Jane and Watson, Richard T.",
		"title":  "Analyzing the Past to Prepare for the Future",
		"year":   "2002", "journal": "MIS Quarterly",
	})
	store, root := setupStore(t, raw, cand)
	if err := AppendQueueOrder(root, "hash-1"); err != nil {
		t.Fatal(err)
	}

	// The fingerprint is claimed, but only by a record that has not been
	// cleansed yet. Scoring against it would use raw export metadata.
	_, err := classifier(store, root).Classify(context.Background(), cand)
	if err != ErrDeferred {
		t.Errorf("err = %v, want ErrDeferred", err)
	}
}

func TestClassifyScoresCleansedSnapshots(t *testing.T) {
	raw := importedRecord(t, "Webster2002", "ais.bib/1", "hash-1", map[string]string{
		"author": "Jane Webster and Richard T. Watson",
		"title":  "Analyzing the Past to Prepare for the Future",
		"year":   "2002", "journal": "MIS Quarterly",
	})
	cand := storedRecord(t, "Webster2002a", "wos.bib/2", "hash-2", map[string]string{
		"author": "Webster, Jane and Watson, Richard T.",
		"title":  "Analyzing the Past to Prepare for the Future",
		"year":   "2002", "journal": "MIS Quarterly",
	})
	store, root := setupStore(t, raw, cand)
	if err := AppendQueueOrder(root, "hash-1"); err != nil {
		t.Fatal(err)
	}

	// Registering the in-run snapshot with the homogenized author form makes
	// the claimant eligible and puts the pair at full similarity.
	c := classifier(store, root)
	c.RegisterCleansed(storedRecord(t, "Webster2002", "ais.bib/1", "hash-1", map[string]string{
		"author": "Webster, Jane and Watson, Richard T.",
		"title":  "Analyzing the Past to Prepare for the Future",
		"year":   "2002", "journal": "MIS Quarterly",
	}))

	out, err := c.Classify(context.Background(), cand)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Kind != Duplicate {
		t.Fatalf("kind = %s (similarity %v), want duplicate", out.Kind, out.MaxSimilarity)
	}
	if out.PartnerID != "Webster2002" {
		t.Errorf("partner = %q", out.PartnerID)
	}
	if out.MaxSimilarity != 1.0 {
		t.Errorf("similarity = %v, want 1.0", out.MaxSimilarity)
	}
}

func TestResolvePotentialKeepBoth(t *testing.T) {
	a := storedRecord(t, "Smith2020", "ais.bib/1", "hash-1", map[string]string{
		"author": "Smith, Jane", "title": "User Satisfaction", "year": "2020",
		"journal": "MIS Quarterly",
	})
	b := storedRecord(t, "Smith2021", "wos.bib/2", "hash-2", map[string]string{
		"author": "Smith, Jane", "title": "User Satisfaction Revisited", "year": "2021",
		"journal": "MIS Quarterly",
	})
	store, root := setupStore(t, a, b)
	if err := AppendPotentialDuplicate(root, "Smith2020", "Smith2021", 0.82); err != nil {
		t.Fatal(err)
	}

	if err := ResolvePotential(store, root, "Smith2020", "Smith2021", false); err != nil {
		t.Fatalf("ResolvePotential: %v", err)
	}
	records, _ := store.LoadRecords(false)
	for _, id := range []string{"Smith2020", "Smith2021"} {
		if records[id].Status() != state.MdProcessed {
			t.Errorf("%s status = %s, want md_processed", id, records[id].Status())
		}
	}
}
