// Package profiles provides the insertion-ordered, name-keyed stores used for
// TLS profiles and authentication service plugins.
package profiles

// Named is implemented by anything stored in a Registry.
type Named interface {
	ProfileName() string
}

// Registry keeps items in declaration order. Names are not required to be
// unique; Find returns the earliest declared match.
//
// A Registry is not safe for concurrent mutation. Management operations that
// declare or remove profiles are expected to be serialized by the caller.
type Registry[T interface {
	comparable
	Named
}] struct {
	items []T
}

// NewRegistry creates an empty registry
func NewRegistry[T interface {
	comparable
	Named
}]() *Registry[T] {
	return &Registry[T]{}
}

// Declare appends item to the registry
func (r *Registry[T]) Declare(item T) {
	r.items = append(r.items, item)
}

// Find returns the first item whose name equals name
func (r *Registry[T]) Find(name string) (T, bool) {
	for _, item := range r.items {
		if item.ProfileName() == name {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Remove detaches item from the registry. It reports whether item was present.
func (r *Registry[T]) Remove(item T) bool {
	for i, existing := range r.items {
		if existing == item {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of declared items
func (r *Registry[T]) Len() int {
	return len(r.items)
}

// Items returns a snapshot of the items in declaration order
func (r *Registry[T]) Items() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Clear removes every item
func (r *Registry[T]) Clear() {
	r.items = nil
}
