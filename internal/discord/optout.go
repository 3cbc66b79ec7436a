package discord

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// OptOutStore persists opt-out changes. The postgres store implements it.
type OptOutStore interface {
	SetOptOut(ctx context.Context, userID string, out bool) error
}

// OptOuts is the set of users who asked not to receive automatic replies.
type OptOuts struct {
	mu      sync.RWMutex
	users   map[string]struct{}
	persist OptOutStore
}

// NewOptOuts returns a set seeded with users. persist may be nil to keep
// the set in memory only.
func NewOptOuts(users []string, persist OptOutStore) *OptOuts {
	o := &OptOuts{
		users:   make(map[string]struct{}, len(users)),
		persist: persist,
	}
	for _, u := range users {
		o.users[u] = struct{}{}
	}
	return o
}

// Disabled reports whether userID opted out.
func (o *OptOuts) Disabled(userID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.users[userID]
	return ok
}

// Disable opts userID out of automatic replies.
func (o *OptOuts) Disable(ctx context.Context, userID string) error {
	return o.set(ctx, userID, true)
}

// Enable opts userID back in.
func (o *OptOuts) Enable(ctx context.Context, userID string) error {
	return o.set(ctx, userID, false)
}

// set persists first so memory never claims a state the store lost.
func (o *OptOuts) set(ctx context.Context, userID string, out bool) error {
	if o.persist != nil {
		if err := o.persist.SetOptOut(ctx, userID, out); err != nil {
			return fmt.Errorf("discord: persist opt-out for %s: %w", userID, err)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if out {
		o.users[userID] = struct{}{}
	} else {
		delete(o.users, userID)
	}
	return nil
}

// List returns the opted-out user ids in sorted order.
func (o *OptOuts) List() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.users))
	for u := range o.users {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}
