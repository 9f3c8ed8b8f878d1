package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/fingerprint"
	"github.com/livrev/livrev/internal/record"
)

func setupProject(t *testing.T) *dataset.Store {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{config.LivrevPath(dir), config.SearchPath(dir)} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return dataset.Open(dir)
}

func writeSearchFile(t *testing.T, store *dataset.Store, name, content string) string {
	t.Helper()
	path := filepath.Join(config.SearchPath(store.Root), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const websterEntry = `@article{Webster2002,
  author = {Webster, Jane and Watson, Richard T.},
  title = {Analyzing the Past to Prepare for the Future},
  journal = {MIS Quarterly},
  year = {2002},
  note = {editor pick},
  wos-category = {IS},
}
`

func TestImportAssignsIdentity(t *testing.T) {
	store := setupProject(t)
	path := writeSearchFile(t, store, "ais.bib", websterEntry)

	im := New(store, fingerprint.DefaultVersion)
	report, err := im.Import([]string{path})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Added() != 1 {
		t.Fatalf("Added = %d, want 1", report.Added())
	}
	// The unknown field triggers a warning; note is a known drop.
	if len(report.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one unrecognized-field warning", report.Warnings)
	}

	records, err := store.LoadRecords(false)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	rec := records["Webster2002"]
	if rec == nil {
		t.Fatalf("expected citation key Webster2002, got %v", keysOf(records))
	}
	if len(rec.Origins) != 1 || rec.Origins[0] != "ais.bib/Webster2002" {
		t.Errorf("Origins = %v", rec.Origins)
	}
	if len(rec.HashIDs) != 1 || len(rec.HashIDs[0]) != 64 {
		t.Errorf("HashIDs = %v", rec.HashIDs)
	}
	if _, ok := rec.Fields["note"]; ok {
		t.Error("note should have been dropped by the whitelist")
	}
	if prov := rec.MdProv["title"]; prov.Source != "ais.bib/Webster2002" {
		t.Errorf("title provenance = %+v", prov)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	store := setupProject(t)
	path := writeSearchFile(t, store, "ais.bib", websterEntry)

	im := New(store, fingerprint.DefaultVersion)
	if _, err := im.Import([]string{path}); err != nil {
		t.Fatalf("first Import: %v", err)
	}

	// Re-running with a fresh importer adds nothing.
	im2 := New(store, fingerprint.DefaultVersion)
	report, err := im2.Import([]string{path})
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if report.Added() != 0 {
		t.Errorf("re-import Added = %d, want 0", report.Added())
	}
	if report.Sources[0].Seen != 1 {
		t.Errorf("Seen = %d, want 1", report.Sources[0].Seen)
	}
}

func TestImportCitationKeyCollision(t *testing.T) {
	store := setupProject(t)
	// Two disjoint records with the same first author and year.
	path := writeSearchFile(t, store, "db.bib", `@article{a,
  author = {Smith, John},
  title = {First Paper on Alpha},
  journal = {Journal A},
  year = {2020},
}
@article{b,
  author = {Smith, Ann},
  title = {Second Paper on Beta},
  journal = {Journal B},
  year = {2020},
}
`)

	im := New(store, fingerprint.DefaultVersion)
	if _, err := im.Import([]string{path}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	records, _ := store.LoadRecords(true)
	if records["Smith2020"] == nil || records["Smith2020a"] == nil {
		t.Errorf("want Smith2020 and Smith2020a, got %v", keysOf(records))
	}
}

func TestImportSourceIntegrity(t *testing.T) {
	store := setupProject(t)
	path := writeSearchFile(t, store, "ais.bib", websterEntry)

	// Descriptor declares 5 records; the file has 1.
	err := dataset.SaveSearchDetails(config.SearchDetailsPath(store.Root), []dataset.SourceDescriptor{
		{Filename: "ais.bib", NumberRecords: 5, SearchType: dataset.SearchTypeDB},
	})
	if err != nil {
		t.Fatalf("SaveSearchDetails: %v", err)
	}

	im := New(store, fingerprint.DefaultVersion)
	_, err = im.Import([]string{path})
	if _, ok := err.(*dataset.SourceIntegrityError); !ok {
		t.Fatalf("err = %v, want SourceIntegrityError", err)
	}

	// The dataset must be untouched.
	records, _ := store.LoadRecords(true)
	if len(records) != 0 {
		t.Errorf("dataset modified on integrity failure: %v", keysOf(records))
	}
}

func TestImportDuplicateAcrossSources(t *testing.T) {
	store := setupProject(t)
	p1 := writeSearchFile(t, store, "s1.bib", websterEntry)
	p2 := writeSearchFile(t, store, "s2.bib", websterEntry)

	im := New(store, fingerprint.DefaultVersion)
	report, err := im.Import([]string{p1, p2})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Added() != 1 {
		t.Errorf("Added = %d, want 1 (identical fingerprint)", report.Added())
	}

	// The single record traces back to both export rows.
	records, err := store.LoadRecords(false)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	rec := records["Webster2002"]
	if rec == nil {
		t.Fatalf("expected Webster2002, got %v", keysOf(records))
	}
	want := []string{"s1.bib/Webster2002", "s2.bib/Webster2002"}
	if len(rec.Origins) != 2 || rec.Origins[0] != want[0] || rec.Origins[1] != want[1] {
		t.Errorf("Origins = %v, want %v", rec.Origins, want)
	}
	if len(rec.HashIDs) != 1 {
		t.Errorf("HashIDs = %v, want the single shared fingerprint", rec.HashIDs)
	}

	// Re-importing a source that already contributed its origin changes
	// nothing.
	im2 := New(store, fingerprint.DefaultVersion)
	if _, err := im2.Import([]string{p2}); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	records, _ = store.LoadRecords(false)
	if got := records["Webster2002"].Origins; len(got) != 2 {
		t.Errorf("Origins after re-import = %v", got)
	}
}

func keysOf(m map[string]*record.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
