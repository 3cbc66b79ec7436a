package wikitext

import (
	"log/slog"
	"regexp"
	"strings"
)

const (
	// standardPrefix marks a standard record line.
	standardPrefix = "* <sm2>"

	// alternatePrefix marks the first physical line of an alternate record.
	// The record continues on exactly one following line.
	alternatePrefix = `| align="left" | "`
)

// lineBreak matches real line terminators as well as the two-character
// escapes some transports leave in the page body.
var lineBreak = regexp.MustCompile(`\n|\\n|\r|\\r`)

// SplitPage extracts every record from a raw page body. Lines that are not
// records (headings, templates, prose) are ignored. Records that fail to
// parse are logged and skipped; skipped reports how many.
func SplitPage(raw string) (records []Record, skipped int) {
	lines := lineBreak.Split(raw, -1)
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, standardPrefix):
		case strings.HasPrefix(line, alternatePrefix):
			if i+1 < len(lines) {
				i++
				line += lines[i]
			}
		default:
			continue
		}

		recs, err := ParseLine(line)
		if err != nil {
			slog.Warn("wikitext: skipping unparseable record", "line", line, "err", err)
			skipped++
			continue
		}
		records = append(records, recs...)
	}
	return records, skipped
}
