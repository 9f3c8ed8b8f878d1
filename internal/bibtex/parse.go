package bibtex

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

// MaxLineCapacity bounds a single line of the canonical file (1MB).
const MaxLineCapacity = 1024 * 1024

var (
	entryStartRe = regexp.MustCompile(`^\s*@(\w+)\s*\{\s*([^,\s]+)\s*,\s*$`)
	fieldStartRe = regexp.MustCompile(`^\s*([\w-]+)\s*=\s*\{(.*)$`)
)

// Parse reads BibTeX entries from r. With headerOnly set, per-entry parsing
// stops at the first non-reserved field, which keeps status scans cheap on
// large stores; the resulting records carry only reserved fields.
func Parse(rd io.Reader, headerOnly bool) ([]*record.Record, error) {
	scanner := bufio.NewScanner(rd)
	buf := make([]byte, MaxLineCapacity)
	scanner.Buffer(buf, MaxLineCapacity)

	var records []*record.Record
	var cur *entryAccumulator
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")

		if m := entryStartRe.FindStringSubmatch(line); m != nil {
			if cur != nil {
				rec, err := cur.finish()
				if err != nil {
					return nil, err
				}
				records = append(records, rec)
			}
			if strings.EqualFold(m[1], "comment") {
				cur = nil
				continue
			}
			cur = &entryAccumulator{
				entryType:  strings.ToLower(m[1]),
				id:         m[2],
				fields:     make(map[string]string),
				headerOnly: headerOnly,
				startLine:  lineNum,
			}
			continue
		}

		if cur == nil || cur.done {
			continue
		}

		if strings.TrimSpace(line) == "}" && cur.pendingName == "" {
			rec, err := cur.finish()
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
			cur = nil
			continue
		}

		if err := cur.feed(line, lineNum); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	if cur != nil {
		rec, err := cur.finish()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// entryAccumulator gathers one entry's fields, tolerating values that span
// multiple lines by tracking brace balance.
type entryAccumulator struct {
	entryType  string
	id         string
	fields     map[string]string
	headerOnly bool
	startLine  int

	// done is set in header-only mode once a non-reserved field is seen.
	done bool

	pendingName  string
	pendingValue strings.Builder
	braceDepth   int
}

func (a *entryAccumulator) feed(line string, lineNum int) error {
	if a.pendingName != "" {
		a.pendingValue.WriteString(" ")
		return a.consumeValue(line)
	}

	m := fieldStartRe.FindStringSubmatch(line)
	if m == nil {
		return nil // tolerate stray lines between fields
	}
	name := strings.ToLower(m[1])
	if a.headerOnly && !isHeaderField(name) {
		a.done = true
		return nil
	}
	a.pendingName = name
	a.braceDepth = 1
	a.pendingValue.Reset()
	return a.consumeValue(m[2])
}

// consumeValue appends characters until the opening brace is balanced.
func (a *entryAccumulator) consumeValue(s string) error {
	for _, c := range s {
		switch c {
		case '{':
			a.braceDepth++
		case '}':
			a.braceDepth--
			if a.braceDepth == 0 {
				a.fields[a.pendingName] = strings.TrimSpace(a.pendingValue.String())
				a.pendingName = ""
				return nil // trailing comma ignored
			}
		}
		if a.braceDepth > 0 {
			a.pendingValue.WriteRune(c)
		}
	}
	return nil
}

// finish converts the accumulated fields into a Record.
func (a *entryAccumulator) finish() (*record.Record, error) {
	if a.pendingName != "" {
		return nil, fmt.Errorf("entry %s (line %d): unterminated field %s", a.id, a.startLine, a.pendingName)
	}

	status := state.State(a.fields[record.FieldStatus])
	if status == "" {
		status = state.MdRetrieved
	}
	rec, err := record.Restore(a.id, status)
	if err != nil {
		return nil, fmt.Errorf("entry %s (line %d): %w", a.id, a.startLine, err)
	}
	rec.EntryType = a.entryType

	for name, value := range a.fields {
		switch name {
		case record.FieldStatus:
			// already applied
		case record.FieldOrigin:
			for _, o := range strings.Split(value, ";") {
				if o = strings.TrimSpace(o); o != "" {
					rec.AddOrigin(o)
				}
			}
		case record.FieldHashID:
			for _, h := range strings.Split(value, ",") {
				if h = strings.TrimSpace(h); h != "" {
					rec.AddHashID(h)
				}
			}
		case record.FieldMdProv:
			rec.MdProv = parseProvenance(value)
		case record.FieldDProv:
			rec.DProv = parseProvenance(value)
		case record.FieldFile:
			rec.File = value
		case record.FieldScreening:
			rec.ScreeningCriteria = value
		default:
			rec.Fields[name] = value
		}
	}
	return rec, nil
}
