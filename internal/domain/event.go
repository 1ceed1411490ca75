package domain

import "time"

// EventKind is the change type of a pushed event.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Entity is anything held in a synchronized collection.
type Entity interface {
	EntityID() string
}

// Expirable is an entity that may carry an expiry.
type Expirable interface {
	Entity
	ExpiryTime() *time.Time
}

// Event is a typed change event. Entity holds the full new state for inserts and updates;
// deletes only guarantee ID.
type Event[T Entity] struct {
	Kind   EventKind
	Entity T
	ID     string
}

// Key returns the id the event targets.
func (e Event[T]) Key() string {
	if e.Kind == EventDelete {
		return e.ID
	}
	return e.Entity.EntityID()
}

func Inserted[T Entity](v T) Event[T] { return Event[T]{Kind: EventInsert, Entity: v, ID: v.EntityID()} }
func Updated[T Entity](v T) Event[T]  { return Event[T]{Kind: EventUpdate, Entity: v, ID: v.EntityID()} }
func Deleted[T Entity](id string) Event[T] {
	return Event[T]{Kind: EventDelete, ID: id}
}
