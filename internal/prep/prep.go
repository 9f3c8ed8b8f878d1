// Package prep homogenizes record metadata and enriches it from external
// sources, deciding whether a record is ready for processing or needs
// manual attention.
package prep

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/crossref"
	"github.com/livrev/livrev/internal/loader"
	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/similarity"
	"github.com/livrev/livrev/internal/state"
)

// Provenance source labels for fields this package touches.
const (
	sourcePrep     = "prep"
	sourceCrossref = "crossref"
)

// enrichmentThreshold is the minimum weighted similarity for accepting a
// Crossref match found by title query.
const enrichmentThreshold = 0.95

// minTitleLengthForQuery gates title-based Crossref lookups; short titles
// produce too many false matches.
const minTitleLengthForQuery = 60

// MetadataSource resolves bibliographic metadata from an external registry.
// *crossref.Client implements it.
type MetadataSource interface {
	QueryTitle(ctx context.Context, title string) (*crossref.Work, error)
	GetDOI(ctx context.Context, doi string) (*crossref.Work, error)
}

// Cleanser drives a record from md_imported to md_prepared or
// md_needs_manual_preparation.
type Cleanser struct {
	local   *RuleSet
	curated *RuleSet

	// metadata is nil when external enrichment is disabled.
	metadata MetadataSource
}

// New builds a Cleanser for the project at root. The project's lexicon
// tables are loaded from .livrev/lexicon; md is optional.
func New(root string, md MetadataSource) (*Cleanser, error) {
	local, err := LoadRules(filepath.Join(config.LivrevPath(root), LexiconDir))
	if err != nil {
		return nil, err
	}
	return &Cleanser{local: local, curated: CuratedRules(), metadata: md}, nil
}

// NewWithRules builds a Cleanser from explicit tables, for tests and for
// callers that manage lexicon loading themselves.
func NewWithRules(local, curated *RuleSet, md MetadataSource) *Cleanser {
	if local == nil {
		local = &RuleSet{
			JournalAbbreviations:    map[string]string{},
			JournalVariations:       map[string]string{},
			ConferenceAbbreviations: map[string]string{},
		}
	}
	if curated == nil {
		curated = CuratedRules()
	}
	return &Cleanser{local: local, curated: curated, metadata: md}
}

// Cleanse runs the preparation pipeline on rec in place and transitions it
// to md_prepared or md_needs_manual_preparation. Records in any other state
// are left untouched.
func (c *Cleanser) Cleanse(ctx context.Context, rec *record.Record) error {
	if rec.Status() != state.MdImported && rec.Status() != state.MdNeedsManualPrep {
		return nil
	}

	c.homogenize(rec)
	c.applyRules(rec)
	c.correctEntryType(rec)
	if err := c.enrich(ctx, rec); err != nil {
		return err
	}

	dest := outcome(rec)
	if rec.Status() == dest {
		return nil
	}
	return rec.SetStatus(dest)
}

// textFields are stripped of newlines and protective braces.
var textFields = []string{
	"author", "year", "title", "journal", "booktitle", "series",
	"volume", "number", "pages", "doi", "abstract",
}

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	dblpSuffixRe = regexp.MustCompile(`\s*[0-9]{4}`)
	pageRangeRe  = regexp.MustCompile(`^(\d+)\s*-{1,3}\s*(\d+)$`)
)

func (c *Cleanser) homogenize(rec *record.Record) {
	for _, field := range textFields {
		v := rec.GetField(field)
		if v == "" {
			continue
		}
		cleaned := strings.NewReplacer("\n", " ", "{", "", "}", "").Replace(v)
		cleaned = strings.TrimSpace(multiSpaceRe.ReplaceAllString(cleaned, " "))
		if cleaned != v {
			rec.UpdateField(field, cleaned, sourcePrep, "")
		}
	}

	if author := rec.GetField("author"); author != "" {
		// DBLP appends four-digit discriminators to non-unique names.
		fixed := dblpSuffixRe.ReplaceAllString(author, "")
		if !strings.Contains(fixed, ", ") {
			fixed = loader.FormatAuthors(fixed)
		}
		if fixed != author {
			rec.UpdateField("author", fixed, sourcePrep, "")
		}
	}

	if title := rec.GetField("title"); title != "" {
		if t := strings.TrimRight(title, "."); t != title {
			rec.UpdateField("title", t, sourcePrep, "")
		}
	}

	if pages := rec.GetField("pages"); pages != "" {
		if m := pageRangeRe.FindStringSubmatch(pages); m != nil {
			unified := m[1] + "--" + m[2]
			if unified != pages {
				rec.UpdateField("pages", unified, sourcePrep, "")
			}
		}
	}

	if doi := rec.GetField("doi"); doi != "" {
		if d := loader.CleanDOI(doi); d != doi {
			rec.UpdateField("doi", d, sourcePrep, "")
		}
	}

	if issue := rec.GetField("issue"); issue != "" && rec.GetField("number") == "" {
		rec.UpdateField("number", issue, sourcePrep, "")
		rec.RemoveField("issue")
	}
}

func (c *Cleanser) applyRules(rec *record.Record) {
	for _, rs := range []*RuleSet{c.local, c.curated} {
		for _, field := range []string{"journal", "booktitle"} {
			v := rec.GetField(field)
			if v == "" {
				continue
			}
			fields := map[string]string{field: v}
			rs.Apply(fields)
			if fields[field] != v {
				rec.UpdateField(field, fields[field], sourcePrep, "rule table")
			}
		}
	}
}

// correctEntryType fixes entry types and container fields that sources
// commonly mislabel, e.g. a conference name in the journal field.
func (c *Cleanser) correctEntryType(rec *record.Record) {
	markers := append(c.local.ConferenceMarkers(), c.curated.ConferenceMarkers()...)

	if j := rec.GetField("journal"); j != "" && containsAny(strings.ToLower(j), markers) {
		rec.UpdateField("booktitle", j, sourcePrep, "moved from journal")
		rec.RemoveField("journal")
		rec.EntryType = "inproceedings"
	}
	if bt := rec.GetField("booktitle"); bt != "" && containsAny(strings.ToLower(bt), markers) {
		rec.EntryType = "inproceedings"
	}

	if rec.EntryType == "book" {
		if s := rec.GetField("series"); s != "" && containsAny(strings.ToLower(s), markers) {
			rec.UpdateField("booktitle", s, sourcePrep, "moved from series")
			rec.RemoveField("series")
			rec.EntryType = "inproceedings"
		}
	}

	// Articles carry a journal, not a booktitle or series.
	if rec.EntryType == "article" && rec.GetField("journal") == "" {
		if bt := rec.GetField("booktitle"); bt != "" {
			rec.UpdateField("journal", bt, sourcePrep, "moved from booktitle")
			rec.RemoveField("booktitle")
		} else if s := rec.GetField("series"); s != "" {
			rec.UpdateField("journal", s, sourcePrep, "moved from series")
			rec.RemoveField("series")
		}
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// enrich looks the record up on Crossref when a long title has no DOI, and
// copies missing fields from the DOI metadata.
func (c *Cleanser) enrich(ctx context.Context, rec *record.Record) error {
	if c.metadata == nil {
		return nil
	}

	title := rec.GetField("title")
	if rec.GetField("doi") == "" && len(title) > minTitleLengthForQuery {
		work, err := c.metadata.QueryTitle(ctx, title)
		switch {
		case errors.Is(err, crossref.ErrNotFound):
		case err != nil:
			return err
		case matchScore(rec, work) > enrichmentThreshold:
			rec.UpdateField("doi", loader.CleanDOI(work.DOI), sourceCrossref, "title query")
		}
	}

	doi := rec.GetField("doi")
	if doi == "" {
		return nil
	}
	work, err := c.metadata.GetDOI(ctx, doi)
	if errors.Is(err, crossref.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.copyMissing(rec, work)
	return nil
}

// matchScore weighs title similarity against container similarity. A
// missing container field falls back on the title alone.
func matchScore(rec *record.Record, work *crossref.Work) float64 {
	titleSim := similarity.Ratio(
		strings.ToLower(rec.GetField("title")),
		strings.ToLower(work.Title),
	)
	container := rec.ContainerTitle()
	if container == "" || work.ContainerTitle == "" {
		return titleSim
	}
	containerSim := similarity.Ratio(
		strings.ToLower(container),
		strings.ToLower(work.ContainerTitle),
	)
	return 0.6*titleSim + 0.4*containerSim
}

func (c *Cleanser) copyMissing(rec *record.Record, work *crossref.Work) {
	set := func(field, value string) {
		if value != "" && rec.GetField(field) == "" {
			rec.UpdateField(field, value, sourceCrossref, "doi metadata")
		}
	}
	set("author", work.AuthorString())
	set("year", work.Year)
	set("volume", work.Volume)
	set("number", work.Issue)
	set("abstract", stripMarkup(work.Abstract))
	if work.Pages != "" && strings.Contains(work.Pages, "-") && rec.GetField("pages") == "" {
		if m := pageRangeRe.FindStringSubmatch(work.Pages); m != nil {
			rec.UpdateField("pages", m[1]+"--"+m[2], sourceCrossref, "doi metadata")
		}
	}
	if work.ContainerTitle != "" && rec.ContainerTitle() == "" {
		if rec.EntryType == "inproceedings" {
			set("booktitle", work.ContainerTitle)
		} else {
			set("journal", work.ContainerTitle)
		}
	}
}

var jatsTagRe = regexp.MustCompile(`</?jats:[^>]*>`)

func stripMarkup(s string) string {
	s = jatsTagRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

// outcome decides the destination state. Complete masterdata or a resolved
// DOI with journal metadata is enough for automated processing; anything
// less goes to manual preparation. Truncated field values always do.
func outcome(rec *record.Record) state.State {
	for _, field := range []string{"title", "journal", "booktitle", "author"} {
		v := rec.GetField(field)
		if strings.HasSuffix(v, "...") || strings.HasSuffix(v, "…") {
			return state.MdNeedsManualPrep
		}
	}

	complete := rec.GetField("title") != "" &&
		rec.GetField("author") != "" &&
		rec.GetField("year") != "" &&
		rec.ContainerTitle() != ""
	if complete {
		return state.MdPrepared
	}

	viaDOI := rec.GetField("doi") != "" &&
		rec.GetField("title") != "" &&
		rec.GetField("journal") != "" &&
		rec.GetField("year") != ""
	if viaDOI {
		return state.MdPrepared
	}

	return state.MdNeedsManualPrep
}
