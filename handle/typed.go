package handle

// Typed is a kind-scoped view of a Registry. It gives the per-resource
// shims compile-time typing over the shared slab, so the create/destroy
// pairing is written once here instead of once per resource kind.
type Typed[T any] struct {
	registry *Registry
	kind     Kind
}

// View creates a typed view over reg for one resource kind.
func View[T any](reg *Registry, kind Kind) *Typed[T] {
	return &Typed[T]{
		registry: reg,
		kind:     kind,
	}
}

// Create stores a wrapper and returns its handle.
func (t *Typed[T]) Create(value T) (Handle, error) {
	return t.registry.Create(t.kind, value)
}

// Get retrieves a wrapper by handle. Handles of other kinds, destroyed
// handles, and handle 0 all report false.
func (t *Typed[T]) Get(h Handle) (T, bool) {
	var zero T
	value, ok := t.registry.GetKind(h, t.kind)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Destroy empties the slot and runs the wrapper's destructor. No-op on
// empty or foreign-kind handles.
func (t *Typed[T]) Destroy(h Handle) bool {
	if actual, ok := t.registry.Kind(h); !ok || actual != t.kind {
		return false
	}
	return t.registry.Destroy(h)
}

// Len returns the number of live handles of this kind.
func (t *Typed[T]) Len() int {
	count := 0
	t.registry.Each(func(_ Handle, kind Kind, _ any) bool {
		if kind == t.kind {
			count++
		}
		return true
	})
	return count
}

// Each iterates over all live handles of this kind.
func (t *Typed[T]) Each(fn func(Handle, T) bool) {
	t.registry.Each(func(h Handle, kind Kind, value any) bool {
		if kind != t.kind {
			return true
		}
		typed, ok := value.(T)
		if !ok {
			return true
		}
		return fn(h, typed)
	})
}
