package record

import (
	"testing"

	"github.com/livrev/livrev/internal/state"
)

func newTestRecord(t *testing.T, id string) *Record {
	t.Helper()
	r, err := New(id, state.MdImported)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewRejectsMidPipelineStates(t *testing.T) {
	if _, err := New("R1", state.MdProcessed); err == nil {
		t.Error("New should reject md_processed as an initial state")
	}
	if _, err := New("R1", state.MdRetrieved); err != nil {
		t.Errorf("New(md_retrieved): %v", err)
	}
}

func TestSetStatusEnforcesStateMachine(t *testing.T) {
	r := newTestRecord(t, "Smith2020")

	if err := r.SetStatus(state.MdPrepared); err != nil {
		t.Fatalf("SetStatus(md_prepared): %v", err)
	}
	if r.Status() != state.MdPrepared {
		t.Errorf("Status = %s, want md_prepared", r.Status())
	}

	// Skipping dedupe is not an edge.
	if err := r.SetStatus(state.RevPrescreenIncluded); err == nil {
		t.Error("SetStatus should reject md_prepared -> rev_prescreen_included")
	}
	// Backward transitions are never allowed.
	if err := r.SetStatus(state.MdImported); err == nil {
		t.Error("SetStatus should reject backward transitions")
	}
}

func TestUpdateFieldProvenance(t *testing.T) {
	r := newTestRecord(t, "Smith2020")

	if err := r.UpdateField("title", "A Study", "search1.bib/ref1", "imported"); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	prov, ok := r.MdProv["title"]
	if !ok {
		t.Fatal("title provenance missing from md_prov")
	}
	if prov.Source != "search1.bib/ref1" || prov.Note != "imported" {
		t.Errorf("provenance = %+v", prov)
	}

	// Non-masterdata fields record into d_prov.
	if err := r.UpdateField("keywords", "pipelines", "search1.bib/ref1", ""); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	if _, ok := r.DProv["keywords"]; !ok {
		t.Error("keywords provenance missing from d_prov")
	}

	if err := r.UpdateField("status", "x", "s", ""); err == nil {
		t.Error("UpdateField should reject reserved fields")
	}
}

func TestAddHashIDSorted(t *testing.T) {
	r := newTestRecord(t, "R")
	r.AddHashID("ffff")
	r.AddHashID("aaaa")
	r.AddHashID("ffff")

	if got := r.HashIDString(); got != "aaaa,ffff" {
		t.Errorf("HashIDString = %q, want %q", got, "aaaa,ffff")
	}
}

func TestFuse(t *testing.T) {
	a := newTestRecord(t, "Smith2020")
	a.AddOrigin("s1.bib/r1")
	a.AddHashID("bbbb")
	a.UpdateField("title", "A Study of Pipelines", "s1.bib/r1", "")
	a.UpdateField("abstract", "short", "s1.bib/r1", "")

	b := newTestRecord(t, "Smith2020a")
	b.AddOrigin("s2.bib/r9")
	b.AddHashID("aaaa")
	b.UpdateField("title", "A study of pipelines", "s2.bib/r9", "")
	b.UpdateField("abstract", "a much longer abstract text", "s2.bib/r9", "")
	b.UpdateField("doi", "10.1000/X", "s2.bib/r9", "")

	a.Fuse(b)

	if got := a.HashIDString(); got != "aaaa,bbbb" {
		t.Errorf("hash_id union = %q, want sorted union %q", got, "aaaa,bbbb")
	}
	if len(a.Origins) != 2 {
		t.Errorf("origin count = %d, want 2", len(a.Origins))
	}
	if a.Fields["title"] != "A Study of Pipelines" {
		t.Errorf("survivor title overwritten: %q", a.Fields["title"])
	}
	if a.Fields["abstract"] != "a much longer abstract text" {
		t.Errorf("longer abstract should win, got %q", a.Fields["abstract"])
	}
	if a.Fields["doi"] != "10.1000/X" {
		t.Errorf("missing doi should be filled, got %q", a.Fields["doi"])
	}
	if prov := a.MdProv["doi"]; prov.Source != "s2.bib/r9" {
		t.Errorf("doi provenance = %+v, want source s2.bib/r9", prov)
	}
}

func TestFuseCuratedWins(t *testing.T) {
	a := newTestRecord(t, "A")
	a.UpdateField("journal", "MISQ", "s1/1", "")

	b := newTestRecord(t, "B")
	b.UpdateField("journal", "MIS Quarterly", "curation/1", "")
	b.SetMasterdataCurated("curation")

	a.Fuse(b)
	if a.Fields["journal"] != "MIS Quarterly" {
		t.Errorf("curated value should win, got %q", a.Fields["journal"])
	}
	if !a.MasterdataCurated() {
		t.Error("curated marker should propagate to the survivor")
	}

	// The other direction: a curated survivor keeps its values.
	c := newTestRecord(t, "C")
	c.UpdateField("journal", "MIS Quarterly", "curation/1", "")
	c.SetMasterdataCurated("curation")
	d := newTestRecord(t, "D")
	d.UpdateField("journal", "Misq", "s3/1", "")

	c.Fuse(d)
	if c.Fields["journal"] != "MIS Quarterly" {
		t.Errorf("curated survivor should keep its value, got %q", c.Fields["journal"])
	}
}

func TestFormatCitationKey(t *testing.T) {
	tests := []struct {
		author, year, want string
	}{
		{"Webster, Jane and Watson, Richard T.", "2002", "Webster2002"},
		{"van der Aalst, Wil", "2016", "Aalst2016"},
		{"Müller, Hans", "2019", "Mueller2019"},
		{"", "2020", "Anonymous2020"},
	}
	for _, tt := range tests {
		r := newTestRecord(t, "X")
		r.Fields["author"] = tt.author
		r.Fields["year"] = tt.year
		if got := r.FormatCitationKey(); got != tt.want {
			t.Errorf("FormatCitationKey(%q, %q) = %q, want %q", tt.author, tt.year, got, tt.want)
		}
	}
}

func TestSharesOrigin(t *testing.T) {
	a := newTestRecord(t, "A")
	a.AddOrigin("s1.bib/1")
	b := newTestRecord(t, "B")
	b.AddOrigin("s2.bib/1")

	if a.SharesOrigin(b) {
		t.Error("disjoint origins reported as shared")
	}
	b.AddOrigin("s1.bib/1")
	if !a.SharesOrigin(b) {
		t.Error("shared origin not detected")
	}
}
