package rank_test

import (
	"testing"

	"github.com/MrWong99/herald/internal/rank"
	"github.com/MrWong99/herald/internal/voiceline"
	"github.com/MrWong99/herald/pkg/canon"
)

func responses(texts ...string) []voiceline.Response {
	out := make([]voiceline.Response, 0, len(texts))
	for i, t := range texts {
		out = append(out, voiceline.Response{ID: i, OriginalText: t, CanonicalText: canon.Canonicalize(t)})
	}
	return out
}

var corpus = responses(
	"Come to Axe!",
	"Reclaimed for Avernus.",
	"The mist of Avernus protects you.",
	"Fire in the hole!",
	"My concentration—shattered!",
)

func TestBest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phrase string
		want   string
	}{
		{"come to axe", "Come to Axe!"},
		{"COME TO AXE!!", "Come to Axe!"},
		{"reclamed for avernus", "Reclaimed for Avernus."},
		{"concentration shattered", "My concentration—shattered!"},
		{"fire in the hole", "Fire in the hole!"},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			t.Parallel()
			m, ok := rank.Best(tt.phrase, corpus)
			if !ok {
				t.Fatalf("Best(%q) found nothing", tt.phrase)
			}
			if m.Response.OriginalText != tt.want {
				t.Errorf("Best(%q) = %q (score %.3f), want %q", tt.phrase, m.Response.OriginalText, m.Score, tt.want)
			}
		})
	}
}

func TestBest_ExactScoresOne(t *testing.T) {
	t.Parallel()

	m, ok := rank.Best("Come to Axe", corpus)
	if !ok || m.Score != 1 {
		t.Errorf("exact phrase scored %v (ok=%v), want 1", m.Score, ok)
	}
}

func TestBest_Empty(t *testing.T) {
	t.Parallel()

	if _, ok := rank.Best("?!", corpus); ok {
		t.Error("Best on punctuation-only phrase matched")
	}
	if _, ok := rank.Best("axe", nil); ok {
		t.Error("Best on empty corpus matched")
	}
}

func TestTop(t *testing.T) {
	t.Parallel()

	top := rank.Top("avernus", corpus, 2, 0)
	if len(top) != 2 {
		t.Fatalf("Top returned %d matches, want 2", len(top))
	}
	if top[0].Score < top[1].Score {
		t.Errorf("Top not sorted: %v then %v", top[0].Score, top[1].Score)
	}
	for _, m := range top {
		if m.Response.ID != 1 && m.Response.ID != 2 {
			t.Errorf("Top(avernus) returned %q", m.Response.OriginalText)
		}
	}

	if got := rank.Top("avernus", corpus, 5, 1.01); len(got) != 0 {
		t.Errorf("Top with unreachable minimum returned %d matches", len(got))
	}
}
