// Package importer ingests search results into the canonical dataset.
package importer

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/fingerprint"
	"github.com/livrev/livrev/internal/loader"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

// fieldsToKeep is the retention whitelist applied to every imported record.
var fieldsToKeep = map[string]bool{
	"author": true, "year": true, "title": true,
	"journal": true, "booktitle": true, "series": true,
	"volume": true, "number": true, "pages": true, "doi": true,
	"abstract": true, "editor": true, "keywords": true,
	"school": true, "institution": true, "publisher": true,
}

// fieldsKnownToDrop are dropped silently; anything else dropped raises a
// warning in the report.
var fieldsKnownToDrop = map[string]bool{
	"type": true, "url": true, "organization": true, "issn": true,
	"isbn": true, "note": true, "month": true, "eissn": true,
	"article-number": true, "address": true, "language": true,
	"affiliation": true, "document_type": true, "source": true,
	"oa": true, "keywords-plus": true, "day": true, "timestamp": true,
	"biburl": true, "bibsource": true, "unique-id": true,
}

// SourceReport summarizes one source file's import.
type SourceReport struct {
	Filename string `json:"filename"`
	Seen     int    `json:"seen"`
	Added    int    `json:"added"`
}

// Report is the per-run import summary, passed back to the orchestrator
// instead of mutating global counters.
type Report struct {
	Sources  []SourceReport `json:"sources"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Added returns the total number of records added across sources.
func (r *Report) Added() int {
	total := 0
	for _, s := range r.Sources {
		total += s.Added
	}
	return total
}

// Importer ingests raw records, assigning identities and skipping known
// fingerprints.
type Importer struct {
	Store       *dataset.Store
	HashVersion string

	// hashes maps each known fingerprint to the ID of the record claiming
	// it, so a re-encountered fingerprint can still collect a new origin.
	hashes    map[string]string
	blacklist map[string]bool
	lastAdded *record.Record
}

// New creates an importer over the given store.
func New(store *dataset.Store, hashVersion string) *Importer {
	return &Importer{Store: store, HashVersion: hashVersion}
}

// prepare loads existing fingerprints and citation keys once per run.
func (im *Importer) prepare() error {
	if im.hashes != nil {
		return nil
	}
	records, err := im.Store.LoadRecords(true)
	if err != nil {
		return err
	}
	im.hashes = make(map[string]string)
	im.blacklist = make(map[string]bool, len(records))
	for id, rec := range records {
		im.blacklist[id] = true
		for _, h := range rec.HashIDs {
			im.hashes[h] = id
		}
	}
	return nil
}

// Import ingests all given source files in the order provided. Every source
// is validated against the search descriptor before any record is written:
// an invalid source aborts the run without touching the dataset.
func (im *Importer) Import(sources []string) (*Report, error) {
	descriptors, err := dataset.LoadSearchDetails(config.SearchDetailsPath(im.Store.Root))
	if err != nil {
		return nil, err
	}
	byName := make(map[string]dataset.SourceDescriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Filename] = d
	}

	// First pass: load and validate everything.
	type loadedSource struct {
		path    string
		records []loader.RawRecord
	}
	var loaded []loadedSource
	for _, path := range sources {
		records, count, err := loader.Load(path)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		if d, ok := byName[name]; ok {
			if err := dataset.ValidateSource(config.SearchPath(im.Store.Root), d, count); err != nil {
				return nil, err
			}
		}
		loaded = append(loaded, loadedSource{path: path, records: records})
	}

	if err := im.prepare(); err != nil {
		return nil, err
	}

	report := &Report{}
	warned := make(map[string]bool)
	for _, src := range loaded {
		sr := SourceReport{Filename: filepath.Base(src.path), Seen: len(src.records)}
		for _, raw := range src.records {
			added, warnings, err := im.importRaw(raw)
			if err != nil {
				return nil, err
			}
			if added {
				sr.Added++
			}
			for _, w := range warnings {
				if !warned[w] {
					warned[w] = true
					report.Warnings = append(report.Warnings, w)
				}
			}
		}
		report.Sources = append(report.Sources, sr)
	}
	return report, nil
}

// ImportOne ingests a single raw record; used by living-run workers. Returns
// the created record, or nil when the fingerprint is already known. Known
// fingerprints still collect the row's origin.
func (im *Importer) ImportOne(raw loader.RawRecord) (*record.Record, error) {
	if err := im.prepare(); err != nil {
		return nil, err
	}
	added, _, err := im.importRaw(raw)
	if err != nil || !added {
		return nil, err
	}
	return im.lastAdded, nil
}

// importRaw adds one raw record unless its fingerprint is already present,
// in which case the claiming record collects the new origin.
func (im *Importer) importRaw(raw loader.RawRecord) (bool, []string, error) {
	hash, err := fingerprint.Compute(im.HashVersion, raw)
	if err != nil {
		return false, nil, err
	}
	origin := raw.Origin()
	if owner, known := im.hashes[hash]; known {
		return false, nil, im.attachOrigin(owner, origin)
	}

	// Build the record with a fresh citation key.
	seed, err := record.New("pending", state.MdImported)
	if err != nil {
		return false, nil, err
	}
	var warnings []string
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := raw[key]
		switch key {
		case "ID", "ENTRYTYPE", loader.SourcePathKey:
			continue
		}
		if !fieldsToKeep[key] {
			if !fieldsKnownToDrop[key] {
				warnings = append(warnings, fmt.Sprintf("dropped unrecognized field %q", key))
			}
			continue
		}
		if err := seed.UpdateField(key, value, origin, "imported"); err != nil {
			return false, nil, err
		}
	}
	seed.EntryType = raw["ENTRYTYPE"]
	seed.ID = dataset.NextCitationKey(im.blacklist, seed.FormatCitationKey())
	seed.AddOrigin(origin)
	seed.AddHashID(hash)

	if err := im.Store.AppendRecord(seed); err != nil {
		return false, nil, err
	}
	im.hashes[hash] = seed.ID
	im.blacklist[seed.ID] = true
	im.lastAdded = seed
	return true, warnings, nil
}

// attachOrigin records that another export row also produced the record. A
// repeated origin is a plain re-import and leaves the dataset untouched.
func (im *Importer) attachOrigin(id, origin string) error {
	records, err := im.Store.LoadRecords(false)
	if err != nil {
		return err
	}
	rec, ok := records[id]
	if !ok {
		return fmt.Errorf("importer: fingerprint owner %s not found in dataset", id)
	}
	before := len(rec.Origins)
	rec.AddOrigin(origin)
	if len(rec.Origins) == before {
		return nil
	}
	return im.Store.SaveRecords(records)
}
