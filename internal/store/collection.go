package store

import (
	"context"
)

// Collection is a typed handle on a list-valued document.
type Collection[T any] struct {
	Name string
}

func NewCollection[T any](name string) Collection[T] {
	return Collection[T]{Name: name}
}

// All reads the whole collection outside of a unit of work.
func (c Collection[T]) All(ctx context.Context, ds DocumentStore) ([]T, error) {
	raw, err := ds.Get(ctx, c.Name)
	if err != nil {
		return nil, asPersistence(err, "get "+c.Name)
	}
	var items []T
	if err := decode(c.Name, raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Load reads the collection inside u.
func (c Collection[T]) Load(ctx context.Context, u *Unit) ([]T, error) {
	var items []T
	if err := u.Load(ctx, c.Name, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Stage replaces the collection wholesale when u commits.
func (c Collection[T]) Stage(u *Unit, items []T) error {
	if items == nil {
		items = []T{}
	}
	return u.Stage(c.Name, items)
}
