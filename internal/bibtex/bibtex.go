// Package bibtex encodes and decodes the canonical record file.
//
// The canonical store is a BibTeX-style text file with one entry per record,
// ordered by ID. Reserved fields come first in a fixed order so that a
// header-only reader can stop early.
package bibtex

import (
	"fmt"
	"sort"
	"strings"

	"github.com/livrev/livrev/internal/record"
)

// headerFields are the reserved fields written before any bibliographic
// field, in serialization order.
var headerFields = []string{
	record.FieldOrigin,
	record.FieldStatus,
	record.FieldMdProv,
	record.FieldDProv,
	record.FieldHashID,
	record.FieldFile,
	record.FieldScreening,
}

func isHeaderField(name string) bool {
	for _, f := range headerFields {
		if f == name {
			return true
		}
	}
	return false
}

// Format serializes a single record as a BibTeX entry.
func Format(r *record.Record) string {
	var b strings.Builder
	entryType := r.EntryType
	if entryType == "" {
		entryType = "misc"
	}
	fmt.Fprintf(&b, "@%s{%s,\n", entryType, r.ID)

	writeField := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  %-24s = {%s},\n", name, value)
		}
	}

	writeField(record.FieldOrigin, strings.Join(r.Origins, ";"))
	writeField(record.FieldStatus, string(r.Status()))
	writeField(record.FieldMdProv, formatProvenance(r.MdProv))
	writeField(record.FieldDProv, formatProvenance(r.DProv))
	writeField(record.FieldHashID, r.HashIDString())
	writeField(record.FieldFile, r.File)
	writeField(record.FieldScreening, r.ScreeningCriteria)

	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeField(name, r.Fields[name])
	}

	b.WriteString("}\n")
	return b.String()
}

// FormatAll serializes records ordered by ID ascending.
func FormatAll(records map[string]*record.Record) string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(Format(records[id]))
	}
	return b.String()
}

// formatProvenance serializes a provenance map as "key:source;note" pairs
// separated by "; ", keys sorted.
func formatProvenance(prov map[string]record.Provenance) string {
	if len(prov) == 0 {
		return ""
	}
	keys := make([]string, 0, len(prov))
	for k := range prov {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		p := prov[k]
		parts = append(parts, fmt.Sprintf("%s:%s;%s", k, p.Source, p.Note))
	}
	return strings.Join(parts, "; ")
}

// parseProvenance is the inverse of formatProvenance.
func parseProvenance(s string) map[string]record.Provenance {
	prov := make(map[string]record.Provenance)
	for _, part := range strings.Split(s, "; ") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		colon := strings.Index(part, ":")
		if colon < 0 {
			continue
		}
		key := part[:colon]
		rest := part[colon+1:]
		source, note := rest, ""
		if semi := strings.Index(rest, ";"); semi >= 0 {
			source, note = rest[:semi], rest[semi+1:]
		}
		prov[key] = record.Provenance{Source: source, Note: note}
	}
	return prov
}
