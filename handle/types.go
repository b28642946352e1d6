package handle

// Handle is an opaque reference to a native resource in a registry.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind identifies the resource kind a handle refers to. Each wrapped
// engine object gets its own kind so a handle minted for one kind can
// never be presented as another.
type Kind uint32

const (
	KindRateLimiter Kind = iota + 1
	KindDB
	KindIterator
	KindWriteBatch
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindRateLimiter:
		return "ratelimiter"
	case KindDB:
		return "db"
	case KindIterator:
		return "iterator"
	case KindWriteBatch:
		return "writebatch"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Destroyer is implemented by resource values that own a native object.
// Destroy releases the native object; the registry guarantees it runs
// at most once per resource.
type Destroyer interface {
	Destroy() error
}

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDestroyed
)

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}
