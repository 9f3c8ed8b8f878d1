package dedupe

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/livrev/livrev/internal/record"
	"github.com/livrev/livrev/internal/similarity"
)

// Field weights of the similarity score. Author and year use a partial
// ratio (abbreviated names, year ranges), title and container a full ratio.
const (
	weightAuthor    = 0.15
	weightTitle     = 0.75
	weightYear      = 0.05
	weightContainer = 0.05
)

// genericTitles are non-distinctive titles that appear across many venues.
// When both records carry the same one of these, the title contributes
// nothing and the remaining fields are reweighted.
var genericTitles = map[string]bool{
	"editorial":              true,
	"editorial introduction": true,
	"editorial note":         true,
	"editorial notes":        true,
	"editors comments":       true,
	"book reviews":           true,
	"research commentary":    true,
}

var nonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9, ]+`)

// normalizeField lowercases and strips everything outside letters, digits,
// commas and spaces.
func normalizeField(s string) string {
	return strings.ToLower(nonAlnumRe.ReplaceAllString(s, ""))
}

// AbbreviateAuthors rewrites an author list for comparison: family names
// kept, given names reduced to initials, separators dropped.
// "Webster, Jane and Watson, Richard T." -> "webster j watson r t".
func AbbreviateAuthors(authors string) string {
	var b strings.Builder
	for _, author := range strings.Split(strings.ToLower(authors), " and ") {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		family, given, found := strings.Cut(author, ",")
		if !found {
			b.WriteString(strings.TrimSpace(author))
			continue
		}
		b.WriteString(strings.TrimSpace(family))
		for _, word := range strings.Fields(given) {
			b.WriteByte(' ')
			b.WriteByte(word[0])
		}
	}
	return strings.TrimSpace(nonAlnumRe.ReplaceAllString(b.String(), ""))
}

// YearSimilarity scores two publication years: adjacent years are common
// artifacts of online-first versus print publication.
func YearSimilarity(a, b string) float64 {
	ya, errA := strconv.Atoi(strings.TrimSpace(a))
	yb, errB := strconv.Atoi(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return similarity.PartialRatio(a, b)
	}
	switch d := int(math.Abs(float64(ya - yb))); d {
	case 0:
		return 1.0
	case 1:
		return 0.8
	case 2:
		return 0.5
	default:
		return similarity.PartialRatio(a, b)
	}
}

// RecordSimilarity returns the weighted similarity of two records in [0, 1],
// rounded to four decimals. A field absent from either record scores 1.0 so
// that sparse metadata does not mask a duplicate.
func RecordSimilarity(a, b *record.Record) float64 {
	authorSim := fieldSimilarity(
		AbbreviateAuthors(a.GetField("author")),
		AbbreviateAuthors(b.GetField("author")),
		similarity.PartialRatio,
	)

	titleA := normalizeField(a.GetField("title"))
	titleB := normalizeField(b.GetField("title"))
	titleSim := fieldSimilarity(titleA, titleB, similarity.Ratio)

	yearSim := fieldSimilarity(a.GetField("year"), b.GetField("year"), YearSimilarity)

	containerSim := fieldSimilarity(
		normalizeField(a.ContainerTitle()),
		normalizeField(b.ContainerTitle()),
		similarity.Ratio,
	)

	wAuthor, wTitle, wYear, wContainer := weightAuthor, weightTitle, weightYear, weightContainer
	if titleA == titleB && genericTitles[titleA] {
		// Identical generic titles carry no signal; lean on the rest.
		wAuthor, wTitle, wYear, wContainer = 0.5, 0, 0.2, 0.3
	}

	score := wAuthor*authorSim + wTitle*titleSim + wYear*yearSim + wContainer*containerSim
	return math.Round(score*10000) / 10000
}

func fieldSimilarity(a, b string, fn func(string, string) float64) float64 {
	if a == "" || b == "" {
		return 1.0
	}
	return fn(a, b)
}
