package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"

	"github.com/PKBEATS21/compat-study-find/matching"
)

// BatchSource is a record store that can also load many users at once.
type BatchSource interface {
	matching.RecordStore
	BatchReader
}

// lookup is one batched point lookup result; found is false when the user has
// no row.
type lookup[T any] struct {
	value T
	found bool
}

// Batched is a short-lived RecordStore for one refresh cycle. Point lookups from
// concurrent ranking passes are collapsed into batch queries and the pool lists
// are read once. Results are cached for the lifetime of the value, so create a
// new one per cycle.
type Batched struct {
	src      BatchSource
	profiles *dataloader.Loader[uuid.UUID, lookup[matching.Profile]]
	prefs    *dataloader.Loader[uuid.UUID, lookup[matching.Preferences]]
	subjects *dataloader.Loader[uuid.UUID, lookup[[]matching.Subject]]

	allProfiles cached[[]matching.Profile]
	allPrefs    cached[[]matching.Preferences]
	allSubjects cached[[]matching.Subject]
}

// NewBatched wraps src for one refresh cycle. The pool lists run under the
// context of their first caller, so every caller in the cycle should share one
// context.
func NewBatched(src BatchSource, wait time.Duration) *Batched {
	return &Batched{
		src: src,
		profiles: dataloader.NewBatchedLoader(batchFn(src.ProfilesByUserIDs),
			dataloader.WithWait[uuid.UUID, lookup[matching.Profile]](wait)),
		prefs: dataloader.NewBatchedLoader(batchFn(src.PreferencesByUserIDs),
			dataloader.WithWait[uuid.UUID, lookup[matching.Preferences]](wait)),
		subjects: dataloader.NewBatchedLoader(batchFn(src.SubjectsByUserIDs),
			dataloader.WithWait[uuid.UUID, lookup[[]matching.Subject]](wait)),
	}
}

// batchFn adapts a by-ids reader to a dataloader batch function. A failed query
// fails every key in the batch.
func batchFn[T any](fetch func(context.Context, []uuid.UUID) (map[uuid.UUID]T, error)) dataloader.BatchFunc[uuid.UUID, lookup[T]] {
	return func(ctx context.Context, keys []uuid.UUID) []*dataloader.Result[lookup[T]] {
		results := make([]*dataloader.Result[lookup[T]], len(keys))
		found, err := fetch(ctx, keys)
		for i, key := range keys {
			if err != nil {
				results[i] = &dataloader.Result[lookup[T]]{Error: err}
				continue
			}
			v, ok := found[key]
			results[i] = &dataloader.Result[lookup[T]]{Data: lookup[T]{value: v, found: ok}}
		}
		return results
	}
}

func (b *Batched) GetProfile(ctx context.Context, userID uuid.UUID) (*matching.Profile, error) {
	res, err := b.profiles.Load(ctx, userID)()
	if err != nil || !res.found {
		return nil, err
	}
	p := res.value
	return &p, nil
}

func (b *Batched) GetPreferences(ctx context.Context, userID uuid.UUID) (*matching.Preferences, error) {
	res, err := b.prefs.Load(ctx, userID)()
	if err != nil || !res.found {
		return nil, err
	}
	p := res.value
	return &p, nil
}

func (b *Batched) GetSubjects(ctx context.Context, userID uuid.UUID) ([]matching.Subject, error) {
	res, err := b.subjects.Load(ctx, userID)()
	if err != nil {
		return nil, err
	}
	return append([]matching.Subject(nil), res.value...), nil
}

func (b *Batched) ListOtherProfiles(ctx context.Context, excluding uuid.UUID) ([]matching.Profile, error) {
	all, err := b.allProfiles.get(func() ([]matching.Profile, error) {
		return b.src.ListOtherProfiles(ctx, uuid.Nil)
	})
	if err != nil {
		return nil, err
	}
	out := make([]matching.Profile, 0, len(all))
	for _, p := range all {
		if p.UserID != excluding {
			out = append(out, p)
		}
	}
	return out, nil
}

func (b *Batched) ListAllPreferences(ctx context.Context) ([]matching.Preferences, error) {
	return b.allPrefs.get(func() ([]matching.Preferences, error) {
		return b.src.ListAllPreferences(ctx)
	})
}

func (b *Batched) ListAllSubjects(ctx context.Context) ([]matching.Subject, error) {
	return b.allSubjects.get(func() ([]matching.Subject, error) {
		return b.src.ListAllSubjects(ctx)
	})
}

// cached runs its loader once; later callers share the result, error included.
type cached[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (c *cached[T]) get(load func() (T, error)) (T, error) {
	c.once.Do(func() { c.val, c.err = load() })
	return c.val, c.err
}
