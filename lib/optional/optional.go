// Package optional provides an explicit absent-vs-present value.
//
// Best-effort data sources terminate in one of two states that must stay
// distinguishable: "the source is unavailable" (None) and "the source
// returned an empty result" (Some of an empty value). Collapsing both into a
// nil or zero value is exactly the bug this type exists to prevent.
package optional

type Option[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

func (o Option[T]) IsSome() bool {
	return o.ok
}

// Get returns the contained value and whether one is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

// OrZero returns the contained value, or the zero value when absent.
func (o Option[T]) OrZero() T {
	return o.value
}
