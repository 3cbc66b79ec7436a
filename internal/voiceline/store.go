package voiceline

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
)

// Store holds owners, their responses and the owner icon table.
//
// Lookups take a shared lock and may run concurrently. Inserts, icon updates
// and [Store.ReplaceWith] are exclusive. A rebuild fills a separate staging
// store and swaps it in with ReplaceWith, so lookups never see a half-built
// store.
type Store struct {
	alloc *Allocator

	mu        sync.RWMutex
	version   string
	owners    map[int]Owner
	responses []Response
	byText    map[string][]int // canonical text -> indices into responses
	icons     map[string]string
}

// NewStore returns an empty store drawing ids from alloc. A nil alloc gets a
// private allocator.
func NewStore(alloc *Allocator) *Store {
	if alloc == nil {
		alloc = NewAllocator()
	}
	return &Store{
		alloc:  alloc,
		owners: make(map[int]Owner),
		byText: make(map[string][]int),
		icons:  make(map[string]string),
	}
}

// Allocator returns the allocator the store draws ids from.
func (s *Store) Allocator() *Allocator { return s.alloc }

// InsertOwnerAndResponses creates an owner and one response per item. The
// owner id is allocated before any response id, and the whole insertion
// runs under the store's write lock. If any item lacks canonical text
// nothing is inserted and [ErrEmptyCanonical] is returned.
func (s *Store) InsertOwnerAndResponses(name, imagePath string, items []Item) (Owner, error) {
	for i, it := range items {
		if it.CanonicalText == "" {
			return Owner{}, fmt.Errorf("voiceline: item %d of %q: %w", i, name, ErrEmptyCanonical)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner := Owner{ID: s.alloc.NextOwnerID(), Name: name, ImagePath: imagePath}
	s.owners[owner.ID] = owner
	for _, it := range items {
		s.appendLocked(Response{
			ID:            s.alloc.NextResponseID(),
			CanonicalText: it.CanonicalText,
			OriginalText:  it.OriginalText,
			AudioURL:      it.AudioURL,
			OwnerID:       owner.ID,
		})
	}
	return owner, nil
}

// appendLocked stores r and indexes it. Must be called with s.mu held.
func (s *Store) appendLocked(r Response) {
	s.byText[r.CanonicalText] = append(s.byText[r.CanonicalText], len(s.responses))
	s.responses = append(s.responses, r)
}

// Lookup returns a response whose canonical text equals canonical, chosen
// uniformly at random when several match.
func (s *Store) Lookup(canonical string) (Response, bool) {
	return s.pick(canonical, func(Response) bool { return true })
}

// LookupOwner is [Store.Lookup] restricted to the responses of ownerID.
func (s *Store) LookupOwner(canonical string, ownerID int) (Response, bool) {
	return s.pick(canonical, func(r Response) bool { return r.OwnerID == ownerID })
}

func (s *Store) pick(canonical string, keep func(Response) bool) (Response, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []int
	for _, i := range s.byText[canonical] {
		if keep(s.responses[i]) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return Response{}, false
	}
	return s.responses[candidates[rand.IntN(len(candidates))]], true
}

// IsResponse reports whether any stored response has the canonical text.
func (s *Store) IsResponse(canonical string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byText[canonical]) > 0
}

// Owner returns the owner with the given id.
func (s *Store) Owner(id int) (Owner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[id]
	return o, ok
}

// OwnerName returns the name of the owner with the given id.
func (s *Store) OwnerName(id int) (string, bool) {
	o, ok := s.Owner(id)
	return o.Name, ok
}

// OwnerID returns the id of the owner called name. Names are matched
// exactly. When several sources share a name the lowest id wins.
func (s *Store) OwnerID(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best, found := 0, false
	for id, o := range s.owners {
		if o.Name == name && (!found || id < best) {
			best, found = id, true
		}
	}
	return best, found
}

// OwnerNames returns every distinct owner name in sorted order.
func (s *Store) OwnerNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.owners))
	for _, o := range s.owners {
		names = append(names, o.Name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Responses returns a copy of all stored responses in insertion order.
func (s *Store) Responses() []Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.responses)
}

// Len returns the number of stored responses.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.responses)
}

// Version returns the upstream version the store was built from.
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetVersion records the upstream version the store was built from.
func (s *Store) SetVersion(v string) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

// NormalizeOwnerName is the key form of the icon table: lowercase with all
// spaces removed.
func NormalizeOwnerName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "")
}

// OwnerIcon returns the icon URL for an owner name. Announcer packs are
// listed without their "announcerpack" prefix, so that is tried second.
func (s *Store) OwnerIcon(name string) (string, bool) {
	key := NormalizeOwnerName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.icons[key]; ok {
		return u, true
	}
	if trimmed := strings.ReplaceAll(key, "announcerpack", ""); trimmed != key {
		u, ok := s.icons[trimmed]
		return u, ok
	}
	return "", false
}

// SetIcons replaces the icon table. Keys are normalized.
func (s *Store) SetIcons(icons map[string]string) {
	normalized := make(map[string]string, len(icons))
	for k, v := range icons {
		normalized[NormalizeOwnerName(k)] = v
	}
	s.mu.Lock()
	s.icons = normalized
	s.mu.Unlock()
}

// LoadIcons reads a JSON object of owner name to icon URL and installs it
// as the icon table.
func (s *Store) LoadIcons(r io.Reader) error {
	var icons map[string]string
	if err := json.NewDecoder(r).Decode(&icons); err != nil {
		return fmt.Errorf("voiceline: decode icons: %w", err)
	}
	s.SetIcons(icons)
	return nil
}

// ReplaceWith swaps the content of staging into s under the write lock.
// The icon table is carried over when staging has none. staging must not be
// used afterwards.
func (s *Store) ReplaceWith(staging *Store) {
	staging.mu.Lock()
	defer staging.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version = staging.version
	s.owners = staging.owners
	s.responses = staging.responses
	s.byText = staging.byText
	if len(staging.icons) > 0 {
		s.icons = staging.icons
	}
}

// Snapshot returns a copy of the store content.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version:   s.version,
		Owners:    make([]Owner, 0, len(s.owners)),
		Responses: slices.Clone(s.responses),
		Icons:     make(map[string]string, len(s.icons)),
	}
	for _, o := range s.owners {
		snap.Owners = append(snap.Owners, o)
	}
	slices.SortFunc(snap.Owners, func(a, b Owner) int { return a.ID - b.ID })
	for k, v := range s.icons {
		snap.Icons[k] = v
	}
	return snap
}

// Restore builds a store from snap that draws new ids from alloc. alloc is
// moved past every id in the snapshot. Responses that reference a missing
// owner or lack canonical text are rejected.
func Restore(snap Snapshot, alloc *Allocator) (*Store, error) {
	s := NewStore(alloc)
	s.version = snap.Version

	maxOwner, maxResponse := -1, -1
	for _, o := range snap.Owners {
		if _, dup := s.owners[o.ID]; dup {
			return nil, fmt.Errorf("voiceline: restore: duplicate owner id %d", o.ID)
		}
		s.owners[o.ID] = o
		maxOwner = max(maxOwner, o.ID)
	}
	seen := make(map[int]struct{}, len(snap.Responses))
	for _, r := range snap.Responses {
		if _, ok := s.owners[r.OwnerID]; !ok {
			return nil, fmt.Errorf("voiceline: restore: response %d has unknown owner %d", r.ID, r.OwnerID)
		}
		if r.CanonicalText == "" {
			return nil, fmt.Errorf("voiceline: restore: response %d: %w", r.ID, ErrEmptyCanonical)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("voiceline: restore: duplicate response id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
		s.appendLocked(r)
		maxResponse = max(maxResponse, r.ID)
	}
	for k, v := range snap.Icons {
		s.icons[NormalizeOwnerName(k)] = v
	}
	s.alloc.Reserve(maxOwner, maxResponse)
	return s, nil
}
