package handle

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("handle table closed")

// table is the in-memory ownership slab behind a Registry. Each entry is
// a single ownership slot: either it holds a live value or it is marked
// empty and queued for reuse. An emptied slot is never read again until
// a new create repopulates it, so a handle can never observe a dangling
// value.
type table struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	kind  Kind
	live  bool
}

func newTable() *table {
	return &table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// create stores a value and returns its handle. Handles are recycled
// from the free list before the slab grows.
func (t *table) create(kind Kind, value any) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}

	e := entry{
		kind:  kind,
		value: value,
		live:  true,
	}

	if len(t.freeList) > 0 {
		h := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.entries[h-1] = e
		return h, nil
	}

	t.entries = append(t.entries, e)
	return Handle(len(t.entries)), nil
}

// get retrieves a value by handle.
func (t *table) get(h Handle) (any, bool) {
	if h == 0 {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := h - 1
	if int(idx) >= len(t.entries) {
		return nil, false
	}

	e := t.entries[idx]
	if !e.live {
		return nil, false
	}
	return e.value, true
}

// kind returns the resource kind for a handle.
func (t *table) kind(h Handle) (Kind, bool) {
	if h == 0 {
		return 0, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := h - 1
	if int(idx) >= len(t.entries) {
		return 0, false
	}

	e := t.entries[idx]
	if !e.live {
		return 0, false
	}
	return e.kind, true
}

// take empties the slot and returns its value. The second return is
// false when the slot is already empty, which makes repeated destroys
// of the same handle a no-op rather than a fault.
func (t *table) take(h Handle) (any, bool) {
	if h == 0 {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h - 1
	if int(idx) >= len(t.entries) {
		return nil, false
	}

	e := &t.entries[idx]
	if !e.live {
		return nil, false
	}

	value := e.value
	e.live = false
	e.value = nil
	t.freeList = append(t.freeList, h)

	return value, true
}

// len returns the number of live slots.
func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.live {
			count++
		}
	}
	return count
}

// each iterates over all live slots.
func (t *table) each(fn func(Handle, Kind, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.live {
			if !fn(Handle(i+1), e.kind, e.value) {
				break
			}
		}
	}
}

// close empties every slot and rejects further creates. Values still
// live are returned so the caller can run their destructors outside
// the table lock. Returned in reverse creation order: subordinate
// resources are typically created after the resource they depend on
// and must be released first.
func (t *table) close() []any {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var values []any
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].live {
			values = append(values, t.entries[i].value)
			t.entries[i].live = false
			t.entries[i].value = nil
		}
	}

	t.entries = nil
	t.freeList = nil
	return values
}
