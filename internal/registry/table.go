// Package registry is the in-memory store for live media resources.
//
// Each resource kind gets its own Table holding the resource, its ownership
// metadata and two index families (owner-by-user, owner-by-room). One lock
// per table covers all three structures, so a resource never exists without
// its metadata or index entries, and removal is atomic.
package registry

import (
	"fmt"
	"sync"

	"github.com/dkeye/mediactl/internal/domain"
)

type Table[R any] struct {
	mu     sync.RWMutex
	res    map[string]R
	meta   map[string]domain.Metadata
	byUser map[domain.UserID]map[string]struct{}
	byRoom map[domain.RoomID]map[string]struct{}
}

func NewTable[R any]() *Table[R] {
	return &Table[R]{
		res:    make(map[string]R),
		meta:   make(map[string]domain.Metadata),
		byUser: make(map[domain.UserID]map[string]struct{}),
		byRoom: make(map[domain.RoomID]map[string]struct{}),
	}
}

// Put stores the resource together with its metadata and updates both owner
// indices in one critical section.
func (t *Table[R]) Put(id string, r R, md domain.Metadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.res[id] = r
	t.meta[id] = md
	addToSet(t.byUser, md.UserID, id)
	addToSet(t.byRoom, md.RoomID, id)
}

func (t *Table[R]) Get(id string) (R, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.res[id]
	return r, ok
}

func (t *Table[R]) Meta(id string) (domain.Metadata, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	md, ok := t.meta[id]
	return md, ok
}

// ValidateOwnership is the sole authorization primitive: true iff a metadata
// record exists for id and both owner fields match exactly.
func (t *Table[R]) ValidateOwnership(id string, user domain.UserID, room domain.RoomID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	md, ok := t.meta[id]
	return ok && md.Owns(user, room)
}

// Remove deletes the resource, its metadata and both index memberships.
// Removing an absent id is a no-op; the bool reports whether anything was
// removed, which is what makes concurrent double-teardown safe.
func (t *Table[R]) Remove(id string) (R, domain.Metadata, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.res[id]
	if !ok {
		var zero R
		return zero, domain.Metadata{}, false
	}
	md := t.meta[id]
	delete(t.res, id)
	delete(t.meta, id)
	dropFromSet(t.byUser, md.UserID, id)
	dropFromSet(t.byRoom, md.RoomID, id)
	return r, md, true
}

// MembersByUser returns a snapshot of ids owned by user. Used only for
// scoped cascading cleanup.
func (t *Table[R]) MembersByUser(user domain.UserID) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return setSnapshot(t.byUser[user])
}

// MembersByRoom returns a snapshot of ids owned by room.
func (t *Table[R]) MembersByRoom(room domain.RoomID) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return setSnapshot(t.byRoom[room])
}

func (t *Table[R]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.res)
}

// CheckIntegrity scans the whole table and reports the first structural
// violation: a resource without metadata, metadata without a resource, a
// dangling index entry, an index entry missing for a live resource, or an
// empty index set that should have been pruned. Test scenarios call it after
// every teardown.
func (t *Table[R]) CheckIntegrity() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id := range t.res {
		if _, ok := t.meta[id]; !ok {
			return fmt.Errorf("resource %s has no metadata", id)
		}
	}
	for id, md := range t.meta {
		if _, ok := t.res[id]; !ok {
			return fmt.Errorf("metadata %s has no resource", id)
		}
		if _, ok := t.byUser[md.UserID][id]; !ok {
			return fmt.Errorf("resource %s missing from user index %s", id, md.UserID)
		}
		if _, ok := t.byRoom[md.RoomID][id]; !ok {
			return fmt.Errorf("resource %s missing from room index %s", id, md.RoomID)
		}
	}
	for user, set := range t.byUser {
		if len(set) == 0 {
			return fmt.Errorf("empty user index set left behind for %s", user)
		}
		for id := range set {
			if _, ok := t.res[id]; !ok {
				return fmt.Errorf("user index %s references dead resource %s", user, id)
			}
		}
	}
	for room, set := range t.byRoom {
		if len(set) == 0 {
			return fmt.Errorf("empty room index set left behind for %s", room)
		}
		for id := range set {
			if _, ok := t.res[id]; !ok {
				return fmt.Errorf("room index %s references dead resource %s", room, id)
			}
		}
	}
	return nil
}

func addToSet[K comparable](m map[K]map[string]struct{}, key K, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

// dropFromSet removes the whole set once its last member is gone so index
// maps do not accumulate empty containers under churn.
func dropFromSet[K comparable](m map[K]map[string]struct{}, key K, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

func setSnapshot(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
