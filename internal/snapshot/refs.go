package snapshot

import (
	"errors"
	"sync"
)

// ErrStaleRef is returned when a ref is absent from the table: either
// no snapshot has been taken yet, or a newer snapshot invalidated it.
var ErrStaleRef = errors.New("snapshot: stale or unknown ref")

// Ref describes one interactive element found by a snapshot. The ref
// number is valid only until the next snapshot.
type Ref struct {
	Ref      int    `json:"ref"`
	Tag      string `json:"tag"`
	Role     string `json:"role,omitempty"`
	Text     string `json:"text"`
	Selector string `json:"selector"`
	Type     string `json:"type,omitempty"`
	Name     string `json:"name,omitempty"`
	Href     string `json:"href,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// RefTable maps ref numbers to element descriptors. Each snapshot
// replaces the table wholesale; callers never observe a half-replaced
// state because the swap happens under the lock.
type RefTable struct {
	mu   sync.RWMutex
	refs map[int]Ref
}

// NewRefTable creates an empty table.
func NewRefTable() *RefTable {
	return &RefTable{refs: make(map[int]Ref)}
}

// Replace installs a new generation of refs, invalidating all previous
// ones.
func (t *RefTable) Replace(refs []Ref) {
	next := make(map[int]Ref, len(refs))
	for _, r := range refs {
		next[r.Ref] = r
	}

	t.mu.Lock()
	t.refs = next
	t.mu.Unlock()
}

// Resolve returns the selector stored for ref, or ErrStaleRef.
func (t *RefTable) Resolve(ref int) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.refs[ref]
	if !ok {
		return "", ErrStaleRef
	}
	return r.Selector, nil
}

// Len reports how many refs the current generation holds.
func (t *RefTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.refs)
}
