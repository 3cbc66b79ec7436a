// Package patch tracks the game's current patch version so the response store
// can be rebuilt whenever a new patch ships.
package patch

import (
	"cmp"
	"strconv"
	"strings"
)

// Version is a parsed patch identifier such as "7_35c" or "7.35c".
type Version struct {
	Major  int
	Minor  int
	Letter string
	Raw    string
}

// Parse splits raw into its numeric parts and trailing letter suffix.
// ok is false when raw does not look like major_minor[letter].
func Parse(raw string) (v Version, ok bool) {
	v.Raw = raw
	major, rest, found := strings.Cut(raw, "_")
	if !found {
		major, rest, found = strings.Cut(raw, ".")
	}
	if !found {
		return v, false
	}
	var err error
	if v.Major, err = strconv.Atoi(major); err != nil {
		return v, false
	}
	digits := strings.TrimRightFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if digits == "" {
		return v, false
	}
	if v.Minor, err = strconv.Atoi(digits); err != nil {
		return v, false
	}
	v.Letter = rest[len(digits):]
	return v, true
}

// Compare orders patch identifiers numerically: "7_9" < "7_10" < "7_10b".
// Identifiers that do not parse sort before those that do and are compared
// as plain strings among themselves.
func Compare(a, b string) int {
	va, okA := Parse(a)
	vb, okB := Parse(b)
	switch {
	case !okA && !okB:
		return strings.Compare(a, b)
	case !okA:
		return -1
	case !okB:
		return 1
	}
	if c := cmp.Compare(va.Major, vb.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(va.Minor, vb.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(len(va.Letter), len(vb.Letter)); c != 0 {
		return c
	}
	return strings.Compare(va.Letter, vb.Letter)
}

// Latest returns the highest identifier in versions, or "" when empty.
func Latest(versions []string) string {
	var best string
	for i, v := range versions {
		if i == 0 || Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}
