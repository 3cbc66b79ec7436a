package wikitext

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is the sentinel wrapped by every [SyntaxError].
var ErrSyntax = errors.New("wikitext: syntax error")

// SyntaxError reports the construct the parser expected and the byte offset
// into the record where it gave up.
type SyntaxError struct {
	Expected string
	Offset   int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("wikitext: expected %s at offset %d", e.Expected, e.Offset)
}

// Unwrap lets callers match with errors.Is(err, ErrSyntax).
func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// cursor is a read position into a single record. Every method either
// consumes input and succeeds, or leaves pos untouched and fails.
type cursor struct {
	input string
	pos   int
}

func newCursor(s string) *cursor { return &cursor{input: s} }

func (c *cursor) rest() string { return c.input[c.pos:] }

func (c *cursor) done() bool { return c.pos >= len(c.input) }

func (c *cursor) hasPrefix(p string) bool { return strings.HasPrefix(c.rest(), p) }

func (c *cursor) fail(expected string) error {
	return &SyntaxError{Expected: expected, Offset: c.pos}
}

// literal consumes lit.
func (c *cursor) literal(lit, label string) error {
	if !c.hasPrefix(lit) {
		return c.fail(label)
	}
	c.pos += len(lit)
	return nil
}

// takeUntil consumes and returns everything before the next occurrence of
// lit. lit itself is not consumed.
func (c *cursor) takeUntil(lit, label string) (string, error) {
	i := strings.Index(c.rest(), lit)
	if i < 0 {
		return "", c.fail(label)
	}
	out := c.input[c.pos : c.pos+i]
	c.pos += i
	return out, nil
}

// delimited consumes open, then everything up to close, then close, and
// returns the inner text.
func (c *cursor) delimited(open, close, label string) (string, error) {
	start := c.pos
	if err := c.literal(open, label); err != nil {
		return "", err
	}
	inner, err := c.takeUntil(close, label)
	if err != nil {
		c.pos = start
		return "", err
	}
	c.pos += len(close)
	return inner, nil
}

// skipSpaces consumes one run of ASCII spaces (tabs are not skipped).
func (c *cursor) skipSpaces() {
	for c.pos < len(c.input) && c.input[c.pos] == ' ' {
		c.pos++
	}
}

// takeWhileNot consumes the longest prefix containing none of the bytes in
// stop.
func (c *cursor) takeWhileNot(stop string) string {
	i := strings.IndexAny(c.rest(), stop)
	if i < 0 {
		i = len(c.input) - c.pos
	}
	out := c.input[c.pos : c.pos+i]
	c.pos += i
	return out
}
