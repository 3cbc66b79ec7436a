// Package rank finds the stored voice line that best matches a free-form
// phrase. It backs the /response command; automatic replies use exact
// lookups instead.
package rank

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/herald/internal/voiceline"
	"github.com/MrWong99/herald/pkg/canon"
)

// Match is a scored response.
type Match struct {
	Response voiceline.Response
	Score    float64
}

// Top returns up to n responses ordered by descending score. Ties go to the
// shorter line, then the lower id. Responses scoring below minScore are left
// out.
func Top(phrase string, responses []voiceline.Response, n int, minScore float64) []Match {
	query := canon.Canonicalize(phrase)
	if query == "" || n <= 0 {
		return nil
	}
	queryTokens := strings.Fields(query)

	matches := make([]Match, 0, len(responses))
	for _, r := range responses {
		s := Score(query, queryTokens, r.CanonicalText)
		if s < minScore {
			continue
		}
		matches = append(matches, Match{Response: r, Score: s})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if la, lb := len(a.Response.CanonicalText), len(b.Response.CanonicalText); la != lb {
			return la < lb
		}
		return a.Response.ID < b.Response.ID
	})
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

// Best returns the highest scoring response. ok is false when the phrase is
// empty after canonicalization or there are no responses.
func Best(phrase string, responses []voiceline.Response) (Match, bool) {
	top := Top(phrase, responses, 1, 0)
	if len(top) == 0 {
		return Match{}, false
	}
	return top[0], true
}

// Score compares a canonical query against a canonical line. It is the
// larger of the Jaro-Winkler similarity of the whole strings and the best
// similarity of the query against any run of the line's words as long as
// the query, so a phrase quoting part of a long line still scores high.
func Score(query string, queryTokens []string, line string) float64 {
	if line == "" {
		return 0
	}
	score := matchr.JaroWinkler(query, line, false)

	lineTokens := strings.Fields(line)
	width := len(queryTokens)
	if width == 0 || width >= len(lineTokens) {
		return score
	}
	for i := 0; i+width <= len(lineTokens); i++ {
		window := strings.Join(lineTokens[i:i+width], " ")
		// Partial matches never beat an equally good whole-line match.
		if s := matchr.JaroWinkler(query, window, false) * 0.95; s > score {
			score = s
		}
	}
	return score
}
