package fixcache

import "context"

// Tiered reads through a bounded in-memory front to a durable back store.
// The back store is authoritative; the front only saves round trips.
type Tiered struct {
	Front *MemoryStore
	Back  Store
}

// NewTiered layers front over back.
func NewTiered(front *MemoryStore, back Store) *Tiered {
	return &Tiered{Front: front, Back: back}
}

func (t *Tiered) Get(ctx context.Context, workKey string) (*Entry, error) {
	if e, err := t.Front.Get(ctx, workKey); err != nil || e != nil {
		return e, err
	}
	e, err := t.Back.Get(ctx, workKey)
	if err != nil || e == nil {
		return e, err
	}
	_ = t.Front.Put(ctx, e)
	return e, nil
}

func (t *Tiered) Put(ctx context.Context, e *Entry) error {
	if err := t.Back.Put(ctx, e); err != nil {
		return err
	}
	return t.Front.Put(ctx, e)
}

func (t *Tiered) MarkReused(ctx context.Context, workKey string) error {
	_ = t.Front.MarkReused(ctx, workKey)
	return t.Back.MarkReused(ctx, workKey)
}
