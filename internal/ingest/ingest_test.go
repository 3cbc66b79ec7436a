package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"

	"github.com/MrWong99/herald/internal/ingest"
	"github.com/MrWong99/herald/internal/observe"
	"github.com/MrWong99/herald/internal/voiceline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeWiki serves pages and links from memory.
type fakeWiki struct {
	categories map[string][]string
	pages      map[string]string
	links      map[string]string
	listErr    error
	pageErr    map[string]error

	mu       sync.Mutex
	resolved [][]string
	nested   bool
}

func (f *fakeWiki) CategoryMembers(_ context.Context, category string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.categories[category], nil
}

func (f *fakeWiki) NestedCategoryMembers(ctx context.Context, category string) ([]string, error) {
	f.mu.Lock()
	f.nested = true
	f.mu.Unlock()
	var out []string
	for _, sub := range f.categories[category] {
		if strings.HasPrefix(sub, "Category") {
			out = append(out, f.categories[sub]...)
		}
	}
	return out, nil
}

func (f *fakeWiki) RawPage(_ context.Context, title string) (string, error) {
	if err := f.pageErr[title]; err != nil {
		return "", err
	}
	raw, ok := f.pages[title]
	if !ok {
		return "", fmt.Errorf("no page %q", title)
	}
	return raw, nil
}

func (f *fakeWiki) ResolveLinks(_ context.Context, files []string) map[string]string {
	f.mu.Lock()
	f.resolved = append(f.resolved, files)
	f.mu.Unlock()
	out := make(map[string]string)
	for _, file := range files {
		if u, ok := f.links[file]; ok {
			out[file] = u
		}
	}
	return out
}

const axePage = `{{VoiceNavSidebar}}
== Spawn ==
* <sm2>Vo_axe_axe_spawn_01.mp3</sm2> Axe is ready!
* <sm2>Vo_axe_axe_spawn_02.mp3</sm2> Let the carnage begin.
== Kill ==
* <sm2>Vo_axe_axe_kill_01.mp3</sm2> Come to Axe!
* <sm2>Vo_axe_axe_laugh_01.mp3</sm2> ...!?
* <sm2>broken
`

const lunaPage = `* <sm2>Vo_luna_luna_spawn_01.mp3</sm2> Luna’s light guides me.`

func dotaWiki() *fakeWiki {
	return &fakeWiki{
		categories: map[string][]string{
			"Category:Responses": {"Axe/Responses", "Luna/Responses"},
		},
		pages: map[string]string{
			"Axe/Responses":  axePage,
			"Luna/Responses": lunaPage,
		},
		links: map[string]string{
			"Vo axe axe spawn 01.mp3":   "https://cdn.example/axe_spawn_01.mp3",
			"Vo axe axe kill 01.mp3":    "https://cdn.example/axe_kill_01.mp3",
			"Vo axe axe laugh 01.mp3":   "https://cdn.example/axe_laugh_01.mp3",
			"Vo luna luna spawn 01.mp3": "https://cdn.example/luna_spawn_01.mp3",
		},
	}
}

func dotaSource(w ingest.Wiki) ingest.Source {
	return ingest.Source{
		Name:     "dota",
		Wiki:     w,
		Category: "Category:Responses",
		ImageDir: "/media/dota2/images",
	}
}

func TestIngest_StoresResolvedRecords(t *testing.T) {
	t.Parallel()

	ing := ingest.New([]ingest.Source{dotaSource(dotaWiki())})
	store, err := ing.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if diff := cmp.Diff([]string{"Axe", "Luna"}, store.OwnerNames()); diff != "" {
		t.Errorf("owners mismatch (-want +got):\n%s", diff)
	}

	axeID, ok := store.OwnerID("Axe")
	if !ok {
		t.Fatal("Axe not stored")
	}
	axe, _ := store.Owner(axeID)
	if axe.ImagePath != "/media/dota2/images/Axe.png" {
		t.Errorf("Axe image path = %q", axe.ImagePath)
	}

	r, ok := store.Lookup("axe is ready")
	if !ok {
		t.Fatal(`Lookup("axe is ready") found nothing`)
	}
	if r.AudioURL != "https://cdn.example/axe_spawn_01.mp3" || r.OwnerID != axeID || r.OriginalText != "Axe is ready!" {
		t.Errorf("unexpected response %+v", r)
	}

	r, ok = store.Lookup("luna s light guides me")
	if !ok {
		t.Fatal("smart quote was not canonicalized")
	}
	if name, _ := store.OwnerName(r.OwnerID); name != "Luna" {
		t.Errorf("owner of luna line = %q", name)
	}

	// spawn_02 has no link, laugh_01 canonicalizes to nothing, one line is broken.
	if store.Len() != 3 {
		t.Errorf("store.Len() = %d, want 3", store.Len())
	}
	if _, ok := store.Lookup("let the carnage begin"); ok {
		t.Error("record without link must not be stored")
	}
}

func TestIngestSource_Stats(t *testing.T) {
	t.Parallel()

	w := dotaWiki()
	w.pageErr = map[string]error{"Luna/Responses": errors.New("timeout")}
	ing := ingest.New(nil)
	store := voiceline.NewStore(nil)

	stats, err := ing.IngestSource(context.Background(), dotaSource(w), store)
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	want := ingest.Stats{
		Source:       "dota",
		Pages:        2,
		PagesFailed:  1,
		Owners:       1,
		Stored:       2,
		SkippedParse: 1,
		SkippedLink:  1,
		SkippedEmpty: 1,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if _, ok := store.OwnerID("Luna"); ok {
		t.Error("failed page must not create an owner")
	}
}

func TestIngest_ListingFailureAbortsOnlyThatSource(t *testing.T) {
	t.Parallel()

	broken := &fakeWiki{listErr: errors.New("403 forbidden")}
	ing := ingest.New([]ingest.Source{
		{Name: "smite", Wiki: broken, Category: "Category:Voicelines"},
		dotaSource(dotaWiki()),
	})

	store, err := ing.Ingest(context.Background())
	if err == nil {
		t.Fatal("expected error from failed source")
	}
	if !strings.Contains(err.Error(), "smite") {
		t.Errorf("error should name the failed source, got %v", err)
	}
	if store == nil || store.Len() != 3 {
		t.Fatalf("healthy source should still be ingested, got %v", store)
	}
}

func TestIngest_NoSources(t *testing.T) {
	t.Parallel()
	if _, err := ingest.New(nil).Ingest(context.Background()); !errors.Is(err, ingest.ErrNoSources) {
		t.Fatalf("err = %v, want ErrNoSources", err)
	}
}

func TestIngest_NestedSource(t *testing.T) {
	t.Parallel()

	w := &fakeWiki{
		categories: map[string][]string{
			"Category:Voicelines":        {"Category:Ymir voicelines", "Voicelines overview"},
			"Category:Ymir voicelines":   {"Ymir voicelines"},
			"Category:Unused voicelines": {"Should not be listed"},
		},
		pages: map[string]string{
			"Ymir voicelines": `| align="left" | "Ice to meet you." |` + "\n" + ` <sm2>ymir_ice.ogg</sm2>`,
		},
		links: map[string]string{"Ymir ice.ogg": "https://cdn.example/ymir_ice.ogg"},
	}
	ing := ingest.New([]ingest.Source{{Name: "smite", Wiki: w, Category: "Category:Voicelines", Nested: true}})

	store, err := ing.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !w.nested {
		t.Error("nested source should use NestedCategoryMembers")
	}
	r, ok := store.Lookup("ice to meet you")
	if !ok {
		t.Fatal("alternate record was not stored")
	}
	if name, _ := store.OwnerName(r.OwnerID); name != "Ymir voicelines" {
		t.Errorf("owner = %q, want page title", name)
	}
	owner, _ := store.Owner(r.OwnerID)
	if owner.ImagePath != "" {
		t.Errorf("image path = %q, want empty without image dir", owner.ImagePath)
	}
}

func TestIngest_ConcurrentPagesKeepIDsUnique(t *testing.T) {
	t.Parallel()

	w := &fakeWiki{
		categories: map[string][]string{},
		pages:      map[string]string{},
		links:      map[string]string{},
	}
	var titles []string
	for p := range 40 {
		title := fmt.Sprintf("Hero%02d/Responses", p)
		titles = append(titles, title)
		var lines []string
		for l := range 5 {
			file := fmt.Sprintf("Vo_hero%02d_line_%d.mp3", p, l)
			lines = append(lines, fmt.Sprintf("* <sm2>%s</sm2> Hero %d says line %d.", file, p, l))
			w.links[fmt.Sprintf("Vo hero%02d line %d.mp3", p, l)] = "https://cdn.example/" + file
		}
		w.pages[title] = strings.Join(lines, "\n")
	}
	w.categories["Category:Responses"] = titles

	alloc := voiceline.NewAllocator()
	ing := ingest.New([]ingest.Source{dotaSource(w)}, ingest.WithConcurrency(6), ingest.WithAllocator(alloc))
	store, err := ing.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if store.Allocator() != alloc {
		t.Error("store should draw ids from the injected allocator")
	}

	responses := store.Responses()
	if len(responses) != 200 {
		t.Fatalf("stored %d responses, want 200", len(responses))
	}
	ids := make(map[int]bool, len(responses))
	for _, r := range responses {
		if ids[r.ID] {
			t.Fatalf("duplicate response id %d", r.ID)
		}
		ids[r.ID] = true
		name, ok := store.OwnerName(r.OwnerID)
		if !ok {
			t.Fatalf("response %d refers to unknown owner %d", r.ID, r.OwnerID)
		}
		if !strings.HasPrefix(r.CanonicalText, "hero ") || !strings.HasPrefix(name, "Hero") {
			t.Errorf("unexpected response %+v of %q", r, name)
		}
	}
	// Every owner's responses come from its own page.
	for _, r := range responses {
		name, _ := store.OwnerName(r.OwnerID)
		var n int
		if _, err := fmt.Sscanf(name, "Hero%02d", &n); err != nil {
			t.Fatalf("owner name %q: %v", name, err)
		}
		if !strings.HasPrefix(r.CanonicalText, fmt.Sprintf("hero %d says", n)) {
			t.Errorf("response %q stored under %q", r.CanonicalText, name)
		}
	}
}

func TestIngest_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := metric.NewManualReader()
	m, err := observe.NewMetrics(metric.NewMeterProvider(metric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ing := ingest.New([]ingest.Source{dotaSource(dotaWiki())}, ingest.WithMetrics(m))
	if _, err := ing.Ingest(context.Background()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := map[string]int64{
		"herald.pages":           2,
		"herald.records":         3,
		"herald.records.skipped": 3,
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			if _, tracked := want[mm.Name]; !tracked {
				continue
			}
			sum, ok := mm.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data type %T", mm.Name, mm.Data)
			}
			for _, dp := range sum.DataPoints {
				got[mm.Name] += dp.Value
			}
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
}

func TestOwnerName(t *testing.T) {
	t.Parallel()

	tests := []struct{ title, want string }{
		{"Axe/Responses", "Axe"},
		{"Io/Responses", "Io"},
		{"Announcer packs/Bastion/Responses", "Announcer packs"},
		{"Ymir voicelines", "Ymir voicelines"},
		{"Responses", "Responses"},
	}
	for _, tt := range tests {
		if got := ingest.OwnerName(tt.title); got != tt.want {
			t.Errorf("OwnerName(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestImagePath(t *testing.T) {
	t.Parallel()
	if got := ingest.ImagePath("/media/dota2/images", "Anti-Mage"); got != "/media/dota2/images/Anti-Mage.png" {
		t.Errorf("ImagePath = %q", got)
	}
	if got := ingest.ImagePath("", "Axe"); got != "" {
		t.Errorf("ImagePath without dir = %q, want empty", got)
	}
}

func TestIngest_ResolvesEachPageOnce(t *testing.T) {
	t.Parallel()

	w := dotaWiki()
	if _, err := ingest.New([]ingest.Source{dotaSource(w)}).Ingest(context.Background()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.resolved) != 2 {
		t.Fatalf("ResolveLinks called %d times, want once per page", len(w.resolved))
	}
	var sizes []int
	for _, files := range w.resolved {
		sizes = append(sizes, len(files))
	}
	sort.Ints(sizes)
	if diff := cmp.Diff([]int{1, 4}, sizes); diff != "" {
		t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
	}
}
