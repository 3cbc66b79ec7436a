package wikitext

import "strings"

// textStop lists the bytes that end a plain-text run inside an utterance.
const textStop = "{[<\n\r"

// curlyTag consumes a {{template}} and the spaces after it. Templates never
// contribute text.
func curlyTag(c *cursor) error {
	if _, err := c.delimited("{{", "}}", "{{...}}"); err != nil {
		return err
	}
	c.skipSpaces()
	return nil
}

// squareTag consumes a [[link]]. Piped links ([[File:x.png|16px]]) are file
// or icon markup and are dropped together with the spaces after them; plain
// links ([[fog of war]]) keep their text.
func squareTag(c *cursor) (text string, keep bool, err error) {
	inner, err := c.delimited("[[", "]]", "[[...]]")
	if err != nil {
		return "", false, err
	}
	if strings.Contains(inner, "|") {
		c.skipSpaces()
		return "", false, nil
	}
	return inner, true, nil
}

// singleSquareTag consumes an editorial [insertion] and returns its text.
func singleSquareTag(c *cursor) (string, error) {
	return c.delimited("[", "]", "[...]")
}

// openAngleTag consumes <name attrs> and the spaces after it.
func openAngleTag(c *cursor) (string, error) {
	inner, err := c.delimited("<", ">", "<tag>")
	if err != nil {
		return "", err
	}
	c.skipSpaces()
	return inner, nil
}

// closeAngleTag consumes </name> and the spaces after it.
func closeAngleTag(c *cursor) (string, error) {
	inner, err := c.delimited("</", ">", "</tag>")
	if err != nil {
		return "", err
	}
	c.skipSpaces()
	return inner, nil
}

// completeAngleTag consumes <t>content</t> and returns content. The content
// runs to the next '<', so nested markup is not supported.
func completeAngleTag(c *cursor) (string, error) {
	start := c.pos
	if _, err := openAngleTag(c); err != nil {
		return "", err
	}
	content, err := c.takeUntil("<", "tag content")
	if err != nil {
		c.pos = start
		return "", err
	}
	if _, err := closeAngleTag(c); err != nil {
		c.pos = start
		return "", err
	}
	return content, nil
}

// angleTag consumes either <t>ignored</t> or a lone <t>.
func angleTag(c *cursor) error {
	if _, err := completeAngleTag(c); err == nil {
		return nil
	}
	_, err := openAngleTag(c)
	return err
}

// ParseUtterance assembles the spoken text of a standard record body.
// Templates, piped links and angle-bracket markup are removed; plain links
// and [bracketed] insertions keep their text.
//
//	ParseUtterance("{{resp|u}} [[Shitty Wizard]]!") == "Shitty Wizard!"
func ParseUtterance(text string) (string, error) {
	return utterance(newCursor(text))
}

func utterance(c *cursor) (string, error) {
	c.skipSpaces()
	var b strings.Builder
	for !c.done() {
		switch {
		case c.hasPrefix("{{"):
			if err := curlyTag(c); err != nil {
				return "", err
			}
		case c.hasPrefix("[["):
			text, keep, err := squareTag(c)
			if err != nil {
				return "", err
			}
			if keep {
				b.WriteString(text)
			}
		case c.hasPrefix("["):
			text, err := singleSquareTag(c)
			if err != nil {
				return "", err
			}
			b.WriteString(text)
		case c.hasPrefix("<"):
			if err := angleTag(c); err != nil {
				return "", err
			}
		case c.hasPrefix("\n"), c.hasPrefix("\r"):
			// A record never spans a line terminator.
			return b.String(), nil
		default:
			run := c.takeWhileNot(textStop)
			if run == "" {
				// A lone '{' is literal text.
				run = c.input[c.pos : c.pos+1]
				c.pos++
			}
			b.WriteString(run)
		}
	}
	return b.String(), nil
}
