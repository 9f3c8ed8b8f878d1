package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/livrev/livrev/internal/bibtex"
)

// parseBib reads a BibTeX search export.
func parseBib(data []byte) ([]RawRecord, error) {
	parsed, err := bibtex.Parse(bytes.NewReader(data), false)
	if err != nil {
		return nil, err
	}
	var records []RawRecord
	for _, rec := range parsed {
		raw := RawRecord{"ID": rec.ID, "ENTRYTYPE": rec.EntryType}
		for k, v := range rec.Fields {
			raw[k] = v
		}
		records = append(records, raw)
	}
	return records, nil
}

// risTagMap maps RIS tags to canonical field names. AU accumulates.
var risTagMap = map[string]string{
	"TI": "title", "T1": "title",
	"JO": "journal", "JF": "journal", "T2": "journal",
	"BT": "booktitle",
	"PY": "year", "Y1": "year",
	"VL": "volume", "IS": "number",
	"DO": "doi", "AB": "abstract", "N2": "abstract",
	"UR": "url", "SN": "issn", "PB": "publisher",
	"AN": "ID", "U1": "ID",
}

// risTypeMap maps RIS TY values to ENTRYTYPE.
var risTypeMap = map[string]string{
	"JOUR":   "article",
	"CONF":   "inproceedings",
	"CPAPER": "inproceedings",
	"BOOK":   "book",
	"CHAP":   "incollection",
	"THES":   "phdthesis",
	"RPRT":   "techreport",
}

// parseRIS reads an RIS export: "TAG  - value" lines, entries delimited by
// "TY" / "ER" tags.
func parseRIS(data []byte) ([]RawRecord, error) {
	var records []RawRecord
	var cur RawRecord
	var authors []string
	var startPage, endPage string

	flush := func() {
		if cur == nil {
			return
		}
		if len(authors) > 0 {
			cur["author"] = strings.Join(authors, " and ")
		}
		if startPage != "" {
			pages := startPage
			if endPage != "" {
				pages += "--" + endPage
			}
			cur["pages"] = pages
		}
		records = append(records, cur)
		cur, authors, startPage, endPage = nil, nil, "", ""
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 2 {
			continue
		}
		tag := strings.TrimSpace(line[:2])
		value := ""
		if idx := strings.Index(line, "- "); idx >= 0 {
			value = strings.TrimSpace(line[idx+2:])
		}

		switch tag {
		case "TY":
			flush()
			cur = RawRecord{}
			if et, ok := risTypeMap[value]; ok {
				cur["ENTRYTYPE"] = et
			} else {
				cur["ENTRYTYPE"] = "misc"
			}
		case "ER":
			flush()
		case "AU", "A1":
			if cur != nil {
				authors = append(authors, value)
			}
		case "SP":
			startPage = value
		case "EP":
			endPage = value
		default:
			if cur == nil {
				continue
			}
			if field, ok := risTagMap[tag]; ok {
				// Year tags may carry "2020/01/01"; keep the year.
				if field == "year" {
					value = strings.SplitN(value, "/", 2)[0]
				}
				if cur[field] == "" {
					cur[field] = value
				}
			}
		}
	}
	flush()
	return records, scanner.Err()
}

// enlTagMap maps EndNote tags to canonical field names.
var enlTagMap = map[byte]string{
	'T': "title", 'J': "journal", 'B': "booktitle", 'D': "year",
	'V': "volume", 'N': "number", 'P': "pages", 'R': "doi",
	'X': "abstract", 'I': "publisher",
}

// parseENL reads an EndNote export: "%X value" lines, entries separated by
// blank lines. %0 starts an entry, %A accumulates authors.
func parseENL(data []byte) ([]RawRecord, error) {
	var records []RawRecord
	var cur RawRecord
	var authors []string

	flush := func() {
		if cur == nil {
			return
		}
		if len(authors) > 0 {
			cur["author"] = strings.Join(authors, " and ")
		}
		records = append(records, cur)
		cur, authors = nil, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if len(line) < 2 || line[0] != '%' {
			continue
		}
		tag := line[1]
		value := strings.TrimSpace(line[2:])

		switch tag {
		case '0':
			flush()
			cur = RawRecord{}
			switch {
			case strings.Contains(value, "Conference"):
				cur["ENTRYTYPE"] = "inproceedings"
			case strings.Contains(value, "Book"):
				cur["ENTRYTYPE"] = "book"
			case strings.Contains(value, "Thesis"):
				cur["ENTRYTYPE"] = "phdthesis"
			default:
				cur["ENTRYTYPE"] = "article"
			}
		case 'A':
			if cur != nil {
				authors = append(authors, value)
			}
		default:
			if cur == nil {
				continue
			}
			if field, ok := enlTagMap[tag]; ok && cur[field] == "" {
				cur[field] = value
			}
		}
	}
	flush()
	return records, scanner.Err()
}

// nbibTagMap maps PubMed nbib tags to canonical field names.
var nbibTagMap = map[string]string{
	"TI":   "title",
	"JT":   "journal",
	"VI":   "volume",
	"IP":   "number",
	"PG":   "pages",
	"AB":   "abstract",
	"PMID": "ID",
}

// parseNBIB reads a PubMed nbib export: "TAG - value" lines with 4-character
// tag columns and indented continuation lines.
func parseNBIB(data []byte) ([]RawRecord, error) {
	var records []RawRecord
	var cur RawRecord
	var authors []string
	var lastField string

	flush := func() {
		if cur == nil {
			return
		}
		if len(authors) > 0 {
			cur["author"] = strings.Join(authors, " and ")
		}
		records = append(records, cur)
		cur, authors, lastField = nil, nil, ""
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		// Continuation lines are indented.
		if strings.HasPrefix(line, "      ") && cur != nil && lastField != "" {
			cur[lastField] += " " + strings.TrimSpace(line)
			continue
		}
		if len(line) < 4 {
			continue
		}
		tag := strings.TrimSpace(line[:4])
		value := ""
		if idx := strings.Index(line, "- "); idx >= 0 {
			value = strings.TrimSpace(line[idx+2:])
		}

		switch tag {
		case "PMID":
			if cur == nil {
				cur = RawRecord{"ENTRYTYPE": "article"}
			}
			cur["ID"] = value
			lastField = "ID"
		case "FAU":
			if cur != nil {
				authors = append(authors, value)
			}
			lastField = ""
		case "DP":
			if cur != nil {
				cur["year"] = strings.SplitN(value, " ", 2)[0]
			}
			lastField = "year"
		case "AID":
			if cur != nil && strings.HasSuffix(value, "[doi]") {
				cur["doi"] = strings.TrimSpace(strings.TrimSuffix(value, "[doi]"))
				lastField = "doi"
			}
		default:
			if cur == nil {
				continue
			}
			if field, ok := nbibTagMap[tag]; ok {
				if cur[field] == "" {
					cur[field] = value
				}
				lastField = field
			} else {
				lastField = ""
			}
		}
	}
	flush()
	return records, scanner.Err()
}

// parseCSV reads a CSV export whose header names canonical fields.
func parseCSV(data []byte) ([]RawRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	var records []RawRecord
	for _, row := range rows[1:] {
		raw := RawRecord{"ENTRYTYPE": "article"}
		for i, value := range row {
			if i >= len(header) || strings.TrimSpace(value) == "" {
				continue
			}
			name := header[i]
			if name == "id" {
				name = "ID"
			}
			if name == "entrytype" || name == "type" {
				name = "ENTRYTYPE"
			}
			raw[name] = strings.TrimSpace(value)
		}
		records = append(records, raw)
	}
	return records, nil
}
