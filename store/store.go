// Package store persists profiles, preferences and subjects and serves them to
// the matching engine.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PKBEATS21/compat-study-find/matching"
)

// ErrNotFound is returned by DeleteSubject when the user owns no such subject.
var ErrNotFound = errors.New("not found")

// BatchReader loads records for many users in one round trip. Users without a
// row are simply missing from the returned maps.
type BatchReader interface {
	ProfilesByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]matching.Profile, error)
	PreferencesByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]matching.Preferences, error)
	SubjectsByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]matching.Subject, error)
}

// Writer changes a user's own records. Every write is validated first. Postgres
// and Gorm implement it next to Store.
type Writer interface {
	SaveProfile(ctx context.Context, p matching.Profile) error
	SavePreferences(ctx context.Context, p matching.Preferences) error
	AddSubject(ctx context.Context, s matching.Subject) (matching.Subject, error)
	DeleteSubject(ctx context.Context, userID, subjectID uuid.UUID) error
}

// Store is the read side the service ranks over.
type Store interface {
	matching.RecordStore
	BatchReader
}

// Option configures a backend.
type Option func(*options)

type options struct {
	log zerolog.Logger
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
