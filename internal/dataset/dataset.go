// Package dataset manages the canonical record store of a project.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/livrev/livrev/internal/bibtex"
	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/gitrepo"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/state"
)

// ErrDuplicateID indicates two records in the store share a citation key.
var ErrDuplicateID = errors.New("duplicate record ID")

// ErrDuplicateOrigin indicates two records claim the same origin.
var ErrDuplicateOrigin = errors.New("origin claimed by multiple records")

// Store is the canonical record file of a project.
type Store struct {
	Root string
}

// Open returns the store rooted at the given project directory.
func Open(root string) *Store {
	return &Store{Root: root}
}

// Path returns the location of the canonical record file.
func (s *Store) Path() string {
	return config.RecordsPath(s.Root)
}

// LoadRecords reads all records keyed by ID. With headerOnly set, records
// carry only reserved fields and parsing stops at the first bibliographic
// field of each entry.
func (s *Store) LoadRecords(headerOnly bool) (map[string]*record.Record, error) {
	f, err := os.Open(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*record.Record{}, nil
		}
		return nil, fmt.Errorf("opening record file: %w", err)
	}
	defer f.Close()

	parsed, err := bibtex.Parse(f, headerOnly)
	if err != nil {
		return nil, err
	}

	records := make(map[string]*record.Record, len(parsed))
	for _, rec := range parsed {
		if _, exists := records[rec.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		records[rec.ID] = rec
	}
	return records, nil
}

// SaveRecords writes the full record set, ordered by ID, replacing the file.
func (s *Store) SaveRecords(records map[string]*record.Record) error {
	if err := Validate(records); err != nil {
		return err
	}
	content := bibtex.FormatAll(records)
	if err := os.WriteFile(s.Path(), []byte(content), 0644); err != nil {
		return fmt.Errorf("writing record file: %w", err)
	}
	return nil
}

// AppendRecord appends one entry to the canonical file. Appends are the only
// write mode used by living-run workers; the OS serializes them per file.
func (s *Store) AppendRecord(rec *record.Record) error {
	return appendEntry(s.Path(), rec)
}

// AppendOverlay appends one entry to the cleansed overlay.
func (s *Store) AppendOverlay(rec *record.Record) error {
	return appendEntry(config.OverlayPath(s.Root), rec)
}

// PromoteOverlay renames the overlay atomically over the canonical file.
// Called after the prior stage has been committed.
func (s *Store) PromoteOverlay() error {
	overlay := config.OverlayPath(s.Root)
	if _, err := os.Stat(overlay); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.Rename(overlay, s.Path()); err != nil {
		return fmt.Errorf("promoting overlay: %w", err)
	}
	return nil
}

func appendEntry(path string, rec *record.Record) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening record file for append: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("\n" + bibtex.Format(rec)); err != nil {
		return fmt.Errorf("appending record %s: %w", rec.ID, err)
	}
	return nil
}

// HashIDs returns every fingerprint present in the store, expanding comma
// lists, including old_hash_-prefixed entries.
func (s *Store) HashIDs() (map[string]bool, error) {
	records, err := s.LoadRecords(true)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]bool)
	for _, rec := range records {
		for _, h := range rec.HashIDs {
			hashes[h] = true
		}
	}
	return hashes, nil
}

// NextCitationKey returns base if unused, otherwise base+"a", base+"b", ...
// extending to "aa" after "z". blacklist holds keys already taken.
func NextCitationKey(blacklist map[string]bool, base string) string {
	if base == "" {
		base = "Anonymous"
	}
	if !blacklist[base] {
		return base
	}
	for i := 0; ; i++ {
		candidate := base + letterSuffix(i)
		if !blacklist[candidate] {
			return candidate
		}
	}
}

// letterSuffix returns "a", "b", ..., "z", "aa", "ab", ...
func letterSuffix(i int) string {
	var b []byte
	for {
		b = append([]byte{byte('a' + i%26)}, b...)
		i = i/26 - 1
		if i < 0 {
			return string(b)
		}
	}
}

// CommittedOriginStates reads the record file as of the last git commit and
// returns the origin -> state map, used to report transitions. A project
// without commits (or whose record file was never committed) yields an empty
// map.
func (s *Store) CommittedOriginStates() (map[string]state.State, error) {
	repoRoot, err := gitrepo.FindRepoRoot(s.Root)
	if err != nil {
		return map[string]state.State{}, nil
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(s.Path(), repoRoot), string(os.PathSeparator))
	content, err := gitrepo.ShowFileAtHead(repoRoot, rel)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNoCommits) {
			return map[string]state.State{}, nil
		}
		return nil, err
	}
	if len(content) == 0 {
		return map[string]state.State{}, nil
	}

	parsed, err := bibtex.Parse(bytes.NewReader(content), true)
	if err != nil {
		return nil, fmt.Errorf("parsing committed record file: %w", err)
	}
	states := make(map[string]state.State)
	for _, rec := range parsed {
		for _, origin := range rec.Origins {
			states[origin] = rec.Status()
		}
	}
	return states, nil
}

// CurrentOriginStates returns the origin -> state map of the working copy.
func (s *Store) CurrentOriginStates() (map[string]state.State, error) {
	records, err := s.LoadRecords(true)
	if err != nil {
		return nil, err
	}
	states := make(map[string]state.State)
	for _, rec := range records {
		for _, origin := range rec.Origins {
			states[origin] = rec.Status()
		}
	}
	return states, nil
}

// Validate checks the store invariants: unique IDs (guaranteed by the map),
// non-empty origins, and at most one claimant per origin.
func Validate(records map[string]*record.Record) error {
	claimed := make(map[string]string)
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := records[id]
		if len(rec.Origins) == 0 {
			return fmt.Errorf("record %s has no origin", id)
		}
		for _, origin := range rec.Origins {
			if prev, ok := claimed[origin]; ok {
				return fmt.Errorf("%w: %s claimed by %s and %s", ErrDuplicateOrigin, origin, prev, id)
			}
			claimed[origin] = id
		}
	}
	return nil
}
