// Package record defines the in-memory record model with status and
// provenance tracking.
package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/livrev/livrev/internal/state"
)

// Reserved field names. Everything else is a plain bibliographic field and
// must carry a provenance entry.
const (
	FieldID        = "ID"
	FieldEntryType = "ENTRYTYPE"
	FieldHashID    = "hash_id"
	FieldOrigin    = "origin"
	FieldStatus    = "status"
	FieldMdProv    = "md_prov"
	FieldDProv     = "d_prov"
	FieldScreening = "screening_criteria"
	FieldFile      = "file"
)

// CuratedMarker in md_prov flags a record whose masterdata comes from a
// curated repository.
const CuratedMarker = "CURATED"

// EntryTypes lists the accepted ENTRYTYPE values.
var EntryTypes = []string{
	"article", "inproceedings", "book", "incollection",
	"phdthesis", "techreport", "proceedings", "misc",
}

// Provenance names the source of a field value and an optional note.
type Provenance struct {
	Source string
	Note   string
}

// Record is a bibliographic record moving through the review pipeline.
// Status is unexported: all transitions go through SetStatus so that the
// state machine cannot be bypassed.
type Record struct {
	ID        string
	EntryType string

	// Origins holds <source_file>/<local_id> back-references, ordered by
	// arrival. HashIDs holds contributing content fingerprints, sorted.
	Origins []string
	HashIDs []string

	// Fields holds non-reserved bibliographic fields.
	Fields map[string]string

	// MdProv and DProv hold per-field provenance for masterdata and data
	// fields respectively.
	MdProv map[string]Provenance
	DProv  map[string]Provenance

	// ScreeningCriteria holds name=in|out pairs once screen has run.
	ScreeningCriteria string

	// File is the path to a locally stored PDF, if any.
	File string

	status state.State
}

// New creates a record in the given initial state. Initial states are limited
// to entry points of the pipeline; everything after that must transition.
func New(id string, initial state.State) (*Record, error) {
	if initial != state.MdRetrieved && initial != state.MdImported {
		return nil, fmt.Errorf("record %s: invalid initial state %s", id, initial)
	}
	return &Record{
		ID:     id,
		Fields: make(map[string]string),
		MdProv: make(map[string]Provenance),
		DProv:  make(map[string]Provenance),
		status: initial,
	}, nil
}

// Restore rebuilds a record from persisted data without transition checks.
// For use by the dataset store only.
func Restore(id string, s state.State) (*Record, error) {
	if !state.Valid(s) {
		return nil, fmt.Errorf("record %s: unknown state %q", id, s)
	}
	return &Record{
		ID:     id,
		Fields: make(map[string]string),
		MdProv: make(map[string]Provenance),
		DProv:  make(map[string]Provenance),
		status: s,
	}, nil
}

// Status returns the current pipeline state.
func (r *Record) Status() state.State {
	return r.status
}

// SetStatus transitions the record to dest. The edge must exist in the state
// machine table; anything else is an invariant violation.
func (r *Record) SetStatus(dest state.State) error {
	if !state.ValidTransition(r.status, dest) {
		return fmt.Errorf("record %s: invalid transition %s -> %s", r.ID, r.status, dest)
	}
	r.status = dest
	return nil
}

// GetField returns a non-reserved field value ("" if absent).
func (r *Record) GetField(key string) string {
	return r.Fields[key]
}

// UpdateField sets a non-reserved field and records its provenance. Masterdata
// fields (bibliographic metadata) go to md_prov, everything else to d_prov.
func (r *Record) UpdateField(key, value, source, note string) error {
	if isReserved(key) {
		return fmt.Errorf("record %s: field %s is reserved", r.ID, key)
	}
	r.Fields[key] = value
	prov := Provenance{Source: source, Note: note}
	if isMasterdata(key) {
		r.MdProv[key] = prov
	} else {
		r.DProv[key] = prov
	}
	return nil
}

// RemoveField drops a field and its provenance.
func (r *Record) RemoveField(key string) {
	delete(r.Fields, key)
	delete(r.MdProv, key)
	delete(r.DProv, key)
}

// AddOrigin appends an origin if not already present.
func (r *Record) AddOrigin(origin string) {
	for _, o := range r.Origins {
		if o == origin {
			return
		}
	}
	r.Origins = append(r.Origins, origin)
}

// AddHashID inserts a fingerprint keeping HashIDs sorted and unique.
func (r *Record) AddHashID(h string) {
	for _, existing := range r.HashIDs {
		if existing == h {
			return
		}
	}
	r.HashIDs = append(r.HashIDs, h)
	sort.Strings(r.HashIDs)
}

// HashIDString returns the comma-joined sorted fingerprint list.
func (r *Record) HashIDString() string {
	return strings.Join(r.HashIDs, ",")
}

// SetMasterdataCurated marks the record's metadata as curated.
func (r *Record) SetMasterdataCurated(source string) {
	r.MdProv[CuratedMarker] = Provenance{Source: source}
}

// MasterdataCurated reports whether the record's metadata is curated.
func (r *Record) MasterdataCurated() bool {
	_, ok := r.MdProv[CuratedMarker]
	return ok
}

// SharesOrigin reports whether r and other claim a common origin.
func (r *Record) SharesOrigin(other *Record) bool {
	for _, a := range r.Origins {
		for _, b := range other.Origins {
			if a == b {
				return true
			}
		}
	}
	return false
}

// Raw returns the record's fields plus ID and ENTRYTYPE as a flat map, the
// shape expected by the fingerprint function.
func (r *Record) Raw() map[string]string {
	raw := make(map[string]string, len(r.Fields)+2)
	for k, v := range r.Fields {
		raw[k] = v
	}
	raw[FieldID] = r.ID
	raw[FieldEntryType] = r.EntryType
	return raw
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{
		ID:                r.ID,
		EntryType:         r.EntryType,
		Origins:           append([]string(nil), r.Origins...),
		HashIDs:           append([]string(nil), r.HashIDs...),
		Fields:            make(map[string]string, len(r.Fields)),
		MdProv:            make(map[string]Provenance, len(r.MdProv)),
		DProv:             make(map[string]Provenance, len(r.DProv)),
		ScreeningCriteria: r.ScreeningCriteria,
		File:              r.File,
		status:            r.status,
	}
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	for k, v := range r.MdProv {
		c.MdProv[k] = v
	}
	for k, v := range r.DProv {
		c.DProv[k] = v
	}
	return c
}

// masterdataFields are bibliographic metadata keys tracked in md_prov.
var masterdataFields = map[string]bool{
	"author": true, "title": true, "year": true, "journal": true,
	"booktitle": true, "series": true, "volume": true, "number": true,
	"issue": true, "pages": true, "doi": true, "editor": true,
	"school": true, "institution": true, "publisher": true,
}

func isMasterdata(key string) bool {
	return masterdataFields[key]
}

func isReserved(key string) bool {
	switch key {
	case FieldID, FieldEntryType, FieldHashID, FieldOrigin, FieldStatus,
		FieldMdProv, FieldDProv, FieldScreening, FieldFile:
		return true
	}
	return false
}

// ContainerTitle returns the concatenated container fields, used by the
// fingerprint and similarity functions. School and institution stand in for
// theses and technical reports.
func (r *Record) ContainerTitle() string {
	var b strings.Builder
	b.WriteString(r.Fields["school"])
	b.WriteString(r.Fields["institution"])
	b.WriteString(r.Fields["series"])
	b.WriteString(r.Fields["booktitle"])
	b.WriteString(r.Fields["journal"])
	return b.String()
}
