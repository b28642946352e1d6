package handle

import (
	"sync"
)

// Registry owns the mapping from opaque handles to native resource
// wrappers. It enforces the lifecycle contract: create is atomic (a
// handle is returned only once the wrapper fully exists), destroy runs
// a wrapper's destructor exactly once, and destroying an already-empty
// handle is a no-op.
type Registry struct {
	table     *table
	observers []Observer
	obsMu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		table: newTable(),
	}
}

// Create stores a wrapper value and returns its handle. The value is
// expected to already own its native resource; nothing is allocated
// here besides the ownership slot. Fails only when the registry is
// closed, in which case the caller keeps ownership of value.
func (r *Registry) Create(kind Kind, value any) (Handle, error) {
	h, err := r.table.create(kind, value)
	if err != nil {
		return 0, err
	}

	r.notify(Event{
		Type:   EventCreated,
		Handle: h,
		Kind:   kind,
		Value:  value,
	})

	return h, nil
}

// Get retrieves a value by handle.
func (r *Registry) Get(h Handle) (any, bool) {
	return r.table.get(h)
}

// GetKind retrieves a value only if the handle was minted for the given
// kind. A live handle of another kind is not visible through it.
func (r *Registry) GetKind(h Handle, kind Kind) (any, bool) {
	actual, ok := r.table.kind(h)
	if !ok || actual != kind {
		return nil, false
	}
	return r.table.get(h)
}

// Kind reports the resource kind a live handle was minted for.
func (r *Registry) Kind(h Handle) (Kind, bool) {
	return r.table.kind(h)
}

// Destroy empties the handle's slot and runs the wrapper's destructor
// if it has one. Returns true if the handle was live. Destroying an
// already-destroyed or unknown handle returns false and has no effect.
// Destructor failures are swallowed: destroy is terminal and
// best-effort by contract.
func (r *Registry) Destroy(h Handle) bool {
	kind, _ := r.table.kind(h)
	value, ok := r.table.take(h)
	if !ok {
		return false
	}

	if d, ok := value.(Destroyer); ok {
		_ = d.Destroy()
	}

	r.notify(Event{
		Type:   EventDestroyed,
		Handle: h,
		Kind:   kind,
		Value:  value,
	})

	return true
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	return r.table.len()
}

// Each iterates over all live handles.
func (r *Registry) Each(fn func(Handle, Kind, any) bool) {
	r.table.each(fn)
}

// Clear destroys all live handles, running destructors.
func (r *Registry) Clear() {
	// Collect handles first to avoid holding the table lock during Destroy
	var handles []Handle
	r.table.each(func(h Handle, kind Kind, value any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		r.Destroy(h)
	}
}

// Close destroys all live handles and rejects further creates.
func (r *Registry) Close() error {
	for _, value := range r.table.close() {
		if d, ok := value.(Destroyer); ok {
			_ = d.Destroy()
		}
	}
	return nil
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnHandleEvent(e)
	}
}
