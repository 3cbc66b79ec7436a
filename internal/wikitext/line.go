// Package wikitext extracts (audio file, utterance) records from the raw
// wikitext of a voice-line page.
//
// Two line dialects are understood. Standard lines are bullet items:
//
//	* <sm2>vo_abaddon_abad_spawn_01.mp3</sm2> Abaddon.
//
// Alternate ("VGS") lines are table rows carrying the utterance before the
// file tag, optionally as two alternates split by a <br> tag:
//
//	| align="left" | "Attack!" | <sm2>attack.ogg</sm2>
//	| align="left" | "Yes" <br> "Yeah" | <sm2>yes.ogg</sm2><br><sm2>yeah.ogg</sm2>
//
// Anything the grammar does not cover yields a [SyntaxError]; callers skip
// the record and keep going.
package wikitext

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Record is one (file reference, utterance) pair as found in the markup,
// before canonicalization or URL resolution.
type Record struct {
	File string
	Text string
}

// dialect is the line grammar a record is written in.
type dialect int

const (
	dialectUnknown dialect = iota
	dialectStandard
	dialectAlternate
)

func (d dialect) String() string {
	switch d {
	case dialectStandard:
		return "standard"
	case dialectAlternate:
		return "alternate"
	default:
		return "unknown"
	}
}

// classify picks the dialect from the leading byte of line.
func classify(line string) dialect {
	switch {
	case strings.HasPrefix(line, "*"):
		return dialectStandard
	case strings.HasPrefix(line, "|"):
		return dialectAlternate
	default:
		return dialectUnknown
	}
}

// ParseLine parses a single record in either dialect. Standard lines yield
// one record; alternate lines yield one, or two when the row holds a pair of
// alternates.
func ParseLine(line string) ([]Record, error) {
	c := newCursor(line)
	switch classify(line) {
	case dialectStandard:
		rec, err := parseStandard(c)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	case dialectAlternate:
		return parseAlternate(c)
	default:
		return nil, c.fail("'*' or '|' line marker")
	}
}

// parseStandard handles "* prose <tag>file</tag> utterance".
func parseStandard(c *cursor) (Record, error) {
	if _, err := c.takeUntil("<", "file tag"); err != nil {
		return Record{}, err
	}
	file, err := completeAngleTag(c)
	if err != nil {
		return Record{}, err
	}
	if file == "" {
		return Record{}, c.fail("non-empty file name")
	}
	c.skipSpaces()
	text, err := utterance(c)
	if err != nil {
		return Record{}, err
	}
	return Record{File: FileTitle(file), Text: text}, nil
}

// parseAlternate handles "| cell | utterance | <tag>file</tag>" and its
// two-alternate form.
func parseAlternate(c *cursor) ([]Record, error) {
	if err := c.literal("|", "'|'"); err != nil {
		return nil, err
	}
	if _, err := c.takeUntil("|", "'|'"); err != nil {
		return nil, err
	}
	if err := c.literal("|", "'|'"); err != nil {
		return nil, err
	}
	c.skipSpaces()

	if !hasBreakBeforeBar(c.rest()) {
		text, err := c.takeUntil("|", "'|' after utterance")
		if err != nil {
			return nil, err
		}
		c.pos++
		c.skipSpaces()
		file, err := completeAngleTag(c)
		if err != nil {
			return nil, err
		}
		return []Record{{File: file, Text: text}}, nil
	}

	first, err := c.takeUntil("<", "line break tag")
	if err != nil {
		return nil, err
	}
	if err := angleTag(c); err != nil {
		return nil, err
	}
	c.skipSpaces()
	second, err := c.takeUntil("|", "'|' after utterance")
	if err != nil {
		return nil, err
	}
	c.pos++
	c.skipSpaces()
	firstFile, err := completeAngleTag(c)
	if err != nil {
		return nil, err
	}
	if err := angleTag(c); err != nil {
		return nil, err
	}
	secondFile, err := completeAngleTag(c)
	if err != nil {
		return nil, err
	}
	return []Record{
		{File: firstFile, Text: first},
		{File: secondFile, Text: second},
	}, nil
}

// hasBreakBeforeBar reports whether a <br>, <br/> or <br /> tag appears in s
// before the next '|'.
func hasBreakBeforeBar(s string) bool {
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	return strings.Contains(strings.ToLower(s), "<br")
}

// FileTitle turns a raw file token into the form the wiki reports file
// titles in: underscores become spaces and the first rune is uppercased.
// It is idempotent.
func FileTitle(token string) string {
	token = strings.ReplaceAll(token, "_", " ")
	r, size := utf8.DecodeRuneInString(token)
	if r == utf8.RuneError {
		return token
	}
	return string(unicode.ToUpper(r)) + token[size:]
}
