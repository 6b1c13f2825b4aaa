package model

// Opt representa um valor opcional explícito (claimer, resultado da liquidação).
type Opt[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Opt[T] { return Opt[T]{value: v, ok: true} }

func None[T any]() Opt[T] { return Opt[T]{} }

// Get retorna o valor e se ele está presente
func (o Opt[T]) Get() (T, bool) { return o.value, o.ok }

func (o Opt[T]) IsSet() bool { return o.ok }
