package dedupe

import (
	"testing"

	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

func preparedRecord(t *testing.T, id string, fields map[string]string) *record.Record {
	t.Helper()
	rec, err := record.New(id, state.MdImported)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec.EntryType = "article"
	for k, v := range fields {
		if err := rec.UpdateField(k, v, "test", ""); err != nil {
			t.Fatalf("UpdateField(%s): %v", k, err)
		}
	}
	if err := rec.SetStatus(state.MdPrepared); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	return rec
}

func TestAbbreviateAuthors(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Webster, Jane", "webster j"},
		{"Webster, Jane and Watson, Richard T.", "webster j watson r t"},
		{"van der Aalst, Wil", "van der aalst w"},
		{"Plain Name", "plain name"},
	}
	for _, tt := range tests {
		if got := AbbreviateAuthors(tt.in); got != tt.want {
			t.Errorf("AbbreviateAuthors(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestYearSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"2002", "2002", 1.0},
		{"2002", "2003", 0.8},
		{"2002", "2004", 0.5},
	}
	for _, tt := range tests {
		if got := YearSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("YearSimilarity(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRecordSimilarityIdentical(t *testing.T) {
	fields := map[string]string{
		"author":  "Webster, Jane and Watson, Richard T.",
		"title":   "Analyzing the Past to Prepare for the Future",
		"year":    "2002",
		"journal": "MIS Quarterly",
	}
	a := preparedRecord(t, "A", fields)
	b := preparedRecord(t, "B", fields)
	if got := RecordSimilarity(a, b); got != 1.0 {
		t.Errorf("RecordSimilarity = %v, want 1.0", got)
	}
}

func TestRecordSimilarityPunctuationInsensitive(t *testing.T) {
	a := preparedRecord(t, "A", map[string]string{
		"author":  "Webster, Jane",
		"title":   "Analyzing the Past to Prepare for the Future!",
		"year":    "2002",
		"journal": "MIS Quarterly",
	})
	b := preparedRecord(t, "B", map[string]string{
		"author":  "Webster, Jane",
		"title":   "analyzing the past: to prepare for the future",
		"year":    "2002",
		"journal": "M.I.S. Quarterly",
	})
	if got := RecordSimilarity(a, b); got < 0.99 {
		t.Errorf("RecordSimilarity = %v, want ~1.0", got)
	}
}

func TestRecordSimilarityMissingFieldsScoreFull(t *testing.T) {
	a := preparedRecord(t, "A", map[string]string{
		"title": "Analyzing the Past to Prepare for the Future",
	})
	b := preparedRecord(t, "B", map[string]string{
		"title":   "Analyzing the Past to Prepare for the Future",
		"author":  "Webster, Jane",
		"year":    "2002",
		"journal": "MIS Quarterly",
	})
	if got := RecordSimilarity(a, b); got != 1.0 {
		t.Errorf("RecordSimilarity with missing fields = %v, want 1.0", got)
	}
}

func TestRecordSimilarityDistinctRecords(t *testing.T) {
	a := preparedRecord(t, "A", map[string]string{
		"author":  "Webster, Jane",
		"title":   "Analyzing the Past to Prepare for the Future",
		"year":    "2002",
		"journal": "MIS Quarterly",
	})
	b := preparedRecord(t, "B", map[string]string{
		"author":  "Davis, Fred",
		"title":   "Perceived Usefulness, Perceived Ease of Use, and User Acceptance",
		"year":    "1989",
		"journal": "MIS Quarterly",
	})
	if got := RecordSimilarity(a, b); got > 0.7 {
		t.Errorf("RecordSimilarity = %v, want <= 0.7", got)
	}
}

func TestRecordSimilarityGenericTitle(t *testing.T) {
	a := preparedRecord(t, "A", map[string]string{
		"author":  "Webster, Jane",
		"title":   "Editorial",
		"year":    "2002",
		"journal": "MIS Quarterly",
	})
	b := preparedRecord(t, "B", map[string]string{
		"author":  "Davis, Fred",
		"title":   "Editorial",
		"year":    "2011",
		"journal": "Journal of Marketing Research",
	})
	if got := RecordSimilarity(a, b); got >= 0.7 {
		t.Errorf("generic-title similarity = %v, want < 0.7", got)
	}
}
