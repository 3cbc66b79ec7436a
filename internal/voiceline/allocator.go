package voiceline

import "sync"

// Allocator hands out owner and response ids. Each counter has its own lock
// and is only held to increment and read. One allocator is shared by every
// store built during the process lifetime so ids stay unique across
// rebuilds.
type Allocator struct {
	ownerMu   sync.Mutex
	nextOwner int

	responseMu   sync.Mutex
	nextResponse int
}

// NewAllocator returns an allocator whose first ids are 0.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// NextOwnerID returns a fresh owner id.
func (a *Allocator) NextOwnerID() int {
	a.ownerMu.Lock()
	defer a.ownerMu.Unlock()
	id := a.nextOwner
	a.nextOwner++
	return id
}

// NextResponseID returns a fresh response id.
func (a *Allocator) NextResponseID() int {
	a.responseMu.Lock()
	defer a.responseMu.Unlock()
	id := a.nextResponse
	a.nextResponse++
	return id
}

// Reserve moves the counters past ownerID and responseID so that ids loaded
// from a snapshot are never handed out again. Counters never move backwards.
func (a *Allocator) Reserve(ownerID, responseID int) {
	a.ownerMu.Lock()
	if ownerID >= a.nextOwner {
		a.nextOwner = ownerID + 1
	}
	a.ownerMu.Unlock()

	a.responseMu.Lock()
	if responseID >= a.nextResponse {
		a.nextResponse = responseID + 1
	}
	a.responseMu.Unlock()
}
