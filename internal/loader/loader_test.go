package loader

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadBib(t *testing.T) {
	path := writeSource(t, "ais.bib", `@article{Webster2002,
  author = {Webster, Jane and Watson, Richard T.},
  title = {Analyzing the Past to Prepare for the Future},
  journal = {MIS Quarterly},
  year = {2002},
  issue = {2},
  doi = {https://doi.org/10.2307/4132319},
}
`)
	records, count, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	raw := records[0]
	if raw["ID"] != "Webster2002" {
		t.Errorf("ID = %q", raw["ID"])
	}
	if raw["number"] != "2" {
		t.Errorf("issue should be renamed to number, got %q", raw["number"])
	}
	if _, ok := raw["issue"]; ok {
		t.Error("issue field should be removed")
	}
	if raw["doi"] != "10.2307/4132319" {
		t.Errorf("doi = %q", raw["doi"])
	}
	if raw.Origin() != "ais.bib/Webster2002" {
		t.Errorf("Origin = %q", raw.Origin())
	}
}

func TestLoadRIS(t *testing.T) {
	path := writeSource(t, "scopus.ris", `TY  - JOUR
AU  - Smith, John
AU  - Lee, Ann
TI  - A Study of Things
JO  - Journal of Studies
PY  - 2019/01/01
VL  - 7
IS  - 3
SP  - 101
EP  - 120
DO  - 10.1000/182
ER  -
TY  - CONF
AU  - Jones, Pat
TI  - Another Study
BT  - Proc. of Studies
PY  - 2020
ER  -
`)
	records, count, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	first := records[0]
	if first["ENTRYTYPE"] != "article" {
		t.Errorf("ENTRYTYPE = %q", first["ENTRYTYPE"])
	}
	if first["author"] != "Smith, John and Lee, Ann" {
		t.Errorf("author = %q", first["author"])
	}
	if first["year"] != "2019" {
		t.Errorf("year = %q", first["year"])
	}
	if first["pages"] != "101--120" {
		t.Errorf("pages = %q", first["pages"])
	}
	if first["number"] != "3" {
		t.Errorf("number = %q", first["number"])
	}

	second := records[1]
	if second["ENTRYTYPE"] != "inproceedings" {
		t.Errorf("second ENTRYTYPE = %q", second["ENTRYTYPE"])
	}
	// Sequence-numbered IDs for formats without native identifiers.
	if second["ID"] != "000002" {
		t.Errorf("second ID = %q", second["ID"])
	}
}

func TestLoadENL(t *testing.T) {
	path := writeSource(t, "export.enl", `%0 Journal Article
%A John Smith
%T On Widgets
%J Widget Review
%D 2018
%V 3

%0 Conference Proceedings
%A Ann Lee
%T Widget Summit Report
%B Widget Conf
%D 2019
`)
	records, count, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if records[0]["author"] != "Smith, John" {
		t.Errorf("author = %q", records[0]["author"])
	}
	if records[1]["ENTRYTYPE"] != "inproceedings" {
		t.Errorf("ENTRYTYPE = %q", records[1]["ENTRYTYPE"])
	}
}

func TestLoadNBIB(t *testing.T) {
	path := writeSource(t, "pubmed.nbib", `PMID- 31234567
TI  - A Clinical Study of Widget
      Interventions
FAU - Smith, John
FAU - Lee, Ann
JT  - The Widget Journal
DP  - 2020 Mar
VI  - 12
IP  - 4
PG  - 33-41
AID - 10.1000/widget.2020 [doi]
`)
	records, count, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	raw := records[0]
	if raw["ID"] != "31234567" {
		t.Errorf("ID = %q", raw["ID"])
	}
	if raw["title"] != "A Clinical Study of Widget Interventions" {
		t.Errorf("title = %q (continuation lines should fold)", raw["title"])
	}
	if raw["year"] != "2020" {
		t.Errorf("year = %q", raw["year"])
	}
	if raw["doi"] != "10.1000/WIDGET.2020" {
		t.Errorf("doi = %q", raw["doi"])
	}
}

func TestLoadCSV(t *testing.T) {
	path := writeSource(t, "export.csv", "id,author,title,year,journal\n"+
		"r1,\"Smith, John\",First Title,2020,Journal A\n"+
		"r2,Ann Lee,Second Title,2021,Journal B\n")
	records, count, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if records[0]["ID"] != "r1" {
		t.Errorf("ID = %q", records[0]["ID"])
	}
	if records[1]["author"] != "Lee, Ann" {
		t.Errorf("author = %q", records[1]["author"])
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeSource(t, "notes.txt", "hello")
	if _, _, err := Load(path); err == nil {
		t.Error("unsupported extension should fail")
	}
}

func TestFormatAuthors(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Jane Webster and Richard T. Watson", "Webster, Jane and Watson, Richard T."},
		{"Wil van der Aalst", "van der Aalst, Wil"},
		{"Webster, Jane", "Webster, Jane"},
		{"Plato", "Plato"},
	}
	for _, tt := range tests {
		if got := FormatAuthors(tt.in); got != tt.want {
			t.Errorf("FormatAuthors(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct{ in, want string }{
		{`Knowledge \& Management`, "Knowledge & Management"},
		{"The {Big} Picture", "The Big Picture"},
		{"Data &amp; Decisions", "Data & Decisions"},
		{"line one\nline   two", "line one line two"},
	}
	for _, tt := range tests {
		if got := Unescape(tt.in); got != tt.want {
			t.Errorf("Unescape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanDOI(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://doi.org/10.2307/4132319", "10.2307/4132319"},
		{"doi:10.1000/x", "10.1000/X"},
		{" 10.1000/x ", "10.1000/X"},
	}
	for _, tt := range tests {
		if got := CleanDOI(tt.in); got != tt.want {
			t.Errorf("CleanDOI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
