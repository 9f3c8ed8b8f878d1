package prep

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Rule table CSV filenames, looked up under <root>/.livrev/lexicon/.
const (
	LexiconDir                  = "lexicon"
	JournalAbbreviationsFile    = "journal_abbreviations.csv"
	JournalVariationsFile       = "journal_variations.csv"
	ConferenceAbbreviationsFile = "conference_abbreviations.csv"
)

// RuleSet maps known abbreviations and spelling variations of container
// titles to their canonical form. Keys are lowercased.
type RuleSet struct {
	JournalAbbreviations    map[string]string
	JournalVariations       map[string]string
	ConferenceAbbreviations map[string]string
}

// Apply rewrites the journal and booktitle fields of raw according to the
// tables. Matching is exact after lowercasing.
func (rs *RuleSet) Apply(fields map[string]string) {
	if j, ok := fields["journal"]; ok {
		key := strings.ToLower(j)
		if full, ok := rs.JournalAbbreviations[key]; ok {
			fields["journal"] = full
		}
		if full, ok := rs.JournalVariations[key]; ok {
			fields["journal"] = full
		}
	}
	if bt, ok := fields["booktitle"]; ok {
		if full, ok := rs.ConferenceAbbreviations[strings.ToLower(bt)]; ok {
			fields["booktitle"] = full
		}
	}
}

// ConferenceMarkers returns lowercase substrings whose presence in a
// container field indicates a conference publication.
func (rs *RuleSet) ConferenceMarkers() []string {
	markers := []string{"proceedings", "conference"}
	for abbrev, name := range rs.ConferenceAbbreviations {
		markers = append(markers, abbrev, strings.ToLower(name))
	}
	return markers
}

// LoadRules reads the project-scoped rule tables from dir. Missing files
// yield empty tables; a project without a lexicon is valid.
func LoadRules(dir string) (*RuleSet, error) {
	rs := &RuleSet{
		JournalAbbreviations:    map[string]string{},
		JournalVariations:       map[string]string{},
		ConferenceAbbreviations: map[string]string{},
	}
	var err error
	if rs.JournalAbbreviations, err = loadTable(filepath.Join(dir, JournalAbbreviationsFile)); err != nil {
		return nil, err
	}
	if rs.JournalVariations, err = loadTable(filepath.Join(dir, JournalVariationsFile)); err != nil {
		return nil, err
	}
	if rs.ConferenceAbbreviations, err = loadTable(filepath.Join(dir, ConferenceAbbreviationsFile)); err != nil {
		return nil, err
	}
	return rs, nil
}

// loadTable reads a two-column CSV (key, canonical form) with a header row.
func loadTable(path string) (map[string]string, error) {
	table := map[string]string{}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return table, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = 2
	if _, err := rd.Read(); err != nil { // header
		if err == io.EOF {
			return table, nil
		}
		return nil, err
	}
	for {
		row, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		table[strings.ToLower(strings.TrimSpace(row[0]))] = strings.TrimSpace(row[1])
	}
	return table, nil
}

// CuratedRules is the built-in fallback table, applied after the project's
// own rules. It covers the container titles most common in information
// systems reviews.
func CuratedRules() *RuleSet {
	return &RuleSet{
		JournalAbbreviations: map[string]string{
			"misq":  "MIS Quarterly",
			"misq.": "MIS Quarterly",
			"ejis":  "European Journal of Information Systems",
			"isr":   "Information Systems Research",
			"jais":  "Journal of the Association for Information Systems",
			"jit":   "Journal of Information Technology",
			"jmis":  "Journal of Management Information Systems",
			"jsis":  "Journal of Strategic Information Systems",
			"cacm":  "Communications of the ACM",
			"isj":   "Information Systems Journal",
			"bise":  "Business & Information Systems Engineering",
		},
		JournalVariations: map[string]string{
			"mis quart":                                      "MIS Quarterly",
			"mis quarterly: management information systems":  "MIS Quarterly",
			"comm. acm":                                      "Communications of the ACM",
			"communications of the acm (cacm)":               "Communications of the ACM",
			"information systems research (isr)":             "Information Systems Research",
		},
		ConferenceAbbreviations: map[string]string{
			"icis":    "International Conference on Information Systems",
			"ecis":    "European Conference on Information Systems",
			"amcis":   "Americas Conference on Information Systems",
			"pacis":   "Pacific Asia Conference on Information Systems",
			"hicss":   "Hawaii International Conference on System Sciences",
			"wi":      "Internationale Tagung Wirtschaftsinformatik",
			"desrist": "International Conference on Design Science Research in Information Systems and Technology",
		},
	}
}
