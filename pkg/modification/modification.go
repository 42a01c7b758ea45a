// Package modification provides small value types for describing how a field
// changed across an operation (Modification) and for expressing optional
// partial updates (Patch).
package modification

import "slices"

// Modification pairs the value a field had before an operation with the
// value it has afterwards.
type Modification[T comparable] struct {
	Previous T `json:"previous"`
	Current  T `json:"current"`
}

// New returns a Modification from previous to current.
func New[T comparable](previous, current T) Modification[T] {
	return Modification[T]{Previous: previous, Current: current}
}

// HasChanged reports whether Previous and Current differ.
func (m Modification[T]) HasChanged() bool {
	return m.Previous != m.Current
}

// IfChanged runs fn only when the value changed.
func (m Modification[T]) IfChanged(fn func(m Modification[T])) {
	if m.HasChanged() {
		fn(m)
	}
}

// Map converts both sides of a modification with fn.
func Map[T, R comparable](m Modification[T], fn func(T) R) Modification[R] {
	return Modification[R]{Previous: fn(m.Previous), Current: fn(m.Current)}
}

// Patch is an optional update of a single value. The zero Patch leaves the
// target untouched.
type Patch[T any] struct {
	value T
	set   bool
}

// Set returns a patch that replaces the target with v.
func Set[T any](v T) Patch[T] {
	return Patch[T]{value: v, set: true}
}

// Unset returns a patch that leaves the target untouched.
func Unset[T any]() Patch[T] {
	return Patch[T]{}
}

// IsSet reports whether the patch carries a value.
func (p Patch[T]) IsSet() bool { return p.set }

// Value returns the carried value and whether it is present.
func (p Patch[T]) Value() (T, bool) { return p.value, p.set }

// Apply returns the patched value, or current when the patch is unset.
func (p Patch[T]) Apply(current T) T {
	if p.set {
		return p.value
	}
	return current
}

// FromPointer builds a patch from a nullable value, treating nil as unset.
func FromPointer[T any](v *T) Patch[T] {
	if v == nil {
		return Patch[T]{}
	}
	return Set(*v)
}

// List is a before/after pair of ordered slices. Slices are compared element
// by element, so reordering counts as a change.
type List[T comparable] struct {
	Previous []T `json:"previous"`
	Current  []T `json:"current"`
}

func NewList[T comparable](previous, current []T) List[T] {
	return List[T]{Previous: previous, Current: current}
}

func (l List[T]) HasChanged() bool {
	return !slices.Equal(l.Previous, l.Current)
}
