package loader

import (
	"html"
	"strings"
)

// knownEntryTypes is the canonical ENTRYTYPE set; anything else maps to misc.
var knownEntryTypes = map[string]bool{
	"article": true, "inproceedings": true, "book": true, "incollection": true,
	"phdthesis": true, "techreport": true, "proceedings": true, "misc": true,
}

// entryTypeAliases maps loader-specific type names onto the canonical set.
var entryTypeAliases = map[string]string{
	"conference":       "inproceedings",
	"conference_paper": "inproceedings",
	"journal-article":  "article",
	"journal_article":  "article",
	"masterthesis":     "phdthesis",
	"mastersthesis":    "phdthesis",
	"report":           "techreport",
	"bookchapter":      "incollection",
	"inbook":           "incollection",
}

// homogenize maps a raw record into the canonical schema in place.
func homogenize(raw RawRecord) {
	// Entry type.
	et := strings.ToLower(strings.TrimSpace(raw["ENTRYTYPE"]))
	if alias, ok := entryTypeAliases[et]; ok {
		et = alias
	}
	if !knownEntryTypes[et] {
		et = "misc"
	}
	raw["ENTRYTYPE"] = et

	// issue -> number.
	if raw["number"] == "" && raw["issue"] != "" {
		raw["number"] = raw["issue"]
	}
	delete(raw, "issue")

	// Author names into "Family, Given and Family, Given" form.
	if raw["author"] != "" {
		raw["author"] = FormatAuthors(raw["author"])
	}

	// DOI cleanup.
	if raw["doi"] != "" {
		raw["doi"] = CleanDOI(raw["doi"])
	}
	if raw["url"] != "" {
		raw["url"] = strings.TrimSpace(raw["url"])
	}

	// Unescape LaTeX and HTML artifacts in text fields.
	for _, field := range []string{"title", "journal", "booktitle", "series", "abstract"} {
		if raw[field] != "" {
			raw[field] = Unescape(raw[field])
		}
	}
}

// FormatAuthors normalizes an author string to
// "Family, Given and Family, Given ..." handling "van/von/de" particles as
// part of the family name.
func FormatAuthors(authors string) string {
	parts := strings.Split(authors, " and ")
	formatted := make([]string, 0, len(parts))
	for _, name := range parts {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		formatted = append(formatted, formatAuthor(name))
	}
	return strings.Join(formatted, " and ")
}

// formatAuthor converts one name to "Family, Given" form.
func formatAuthor(name string) string {
	// Already in "Family, Given" form.
	if strings.Contains(name, ",") {
		parts := strings.SplitN(name, ",", 2)
		family := strings.TrimSpace(parts[0])
		given := strings.TrimSpace(parts[1])
		if given == "" {
			return family
		}
		return family + ", " + given
	}

	words := strings.Fields(name)
	if len(words) < 2 {
		return name
	}

	// Walk back from the end: the family name starts at the last word,
	// extended leftwards over any particle run, so "Wil van der Aalst"
	// becomes "van der Aalst, Wil".
	famStart := len(words) - 1
	for famStart > 1 && isParticle(words[famStart-1]) {
		famStart--
	}
	family := strings.Join(words[famStart:], " ")
	given := strings.Join(words[:famStart], " ")
	return family + ", " + given
}

var nameParticles = map[string]bool{
	"van": true, "von": true, "de": true, "der": true, "den": true,
	"del": true, "da": true, "di": true, "la": true, "le": true,
	"ter": true, "ten": true,
}

func isParticle(word string) bool {
	return nameParticles[strings.ToLower(word)]
}

// CleanDOI strips resolver prefixes and uppercases a DOI.
func CleanDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{
		"https://doi.org/", "http://doi.org/", "https://dx.doi.org/",
		"http://dx.doi.org/", "doi.org/", "DOI:", "doi:",
	} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.ToUpper(strings.TrimSpace(doi))
}

// latexReplacer undoes the common LaTeX escapes found in search exports.
var latexReplacer = strings.NewReplacer(
	`\&`, "&",
	`\%`, "%",
	`\$`, "$",
	`\#`, "#",
	`\_`, "_",
	`\textasciitilde{}`, "~",
	`\textasciicircum{}`, "^",
	"``", `"`,
	"''", `"`,
	`\"a`, "ä", `\"o`, "ö", `\"u`, "ü",
	`\'e`, "é", "\\`e", "è",
	`\ss`, "ß",
	"{", "", "}", "",
)

// Unescape removes LaTeX escapes, brace protection and HTML entities.
func Unescape(s string) string {
	s = latexReplacer.Replace(s)
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}
