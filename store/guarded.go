package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/PKBEATS21/compat-study-find/matching"
)

// BreakerSettings tunes the circuit breaker in front of the store.
type BreakerSettings struct {
	MaxRequests  uint32        `koanf:"max_requests" validate:"min=1"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout" validate:"min=1ms"`
	MinRequests  uint32        `koanf:"min_requests" validate:"min=1"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
}

// StateListener is told about every breaker state change.
type StateListener func(name string, from, to gobreaker.State)

// Guarded puts a circuit breaker in front of a Store. While the circuit is open,
// calls fail fast with a retryable *matching.StoreError.
type Guarded struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
	log   zerolog.Logger
}

func NewGuarded(inner Store, settings BreakerSettings, onChange StateListener, opts ...Option) *Guarded {
	o := buildOptions(opts)
	g := &Guarded{inner: inner, log: o.log.With().Str("component", "store_breaker").Logger()}
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "record-store",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Record store circuit breaker state changed")
			if onChange != nil {
				onChange(name, from, to)
			}
		},
		IsSuccessful: isHealthy,
	})
	return g
}

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}

// isHealthy decides which errors leave the store's health untouched: caller
// cancellations and problems with the data itself.
func isHealthy(err error) bool {
	if err == nil {
		return true
	}
	var ve *matching.ValidationError
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, matching.ErrMalformedRecord) ||
		errors.As(err, &ve)
}

func guard[T any](g *Guarded, op string, fn func() (T, error)) (T, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, &matching.StoreError{Op: op, Err: err}
	}
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

func (g *Guarded) GetProfile(ctx context.Context, userID uuid.UUID) (*matching.Profile, error) {
	return guard(g, "get_profile", func() (*matching.Profile, error) { return g.inner.GetProfile(ctx, userID) })
}

func (g *Guarded) GetPreferences(ctx context.Context, userID uuid.UUID) (*matching.Preferences, error) {
	return guard(g, "get_preferences", func() (*matching.Preferences, error) { return g.inner.GetPreferences(ctx, userID) })
}

func (g *Guarded) GetSubjects(ctx context.Context, userID uuid.UUID) ([]matching.Subject, error) {
	return guard(g, "get_subjects", func() ([]matching.Subject, error) { return g.inner.GetSubjects(ctx, userID) })
}

func (g *Guarded) ListOtherProfiles(ctx context.Context, excluding uuid.UUID) ([]matching.Profile, error) {
	return guard(g, "list_other_profiles", func() ([]matching.Profile, error) { return g.inner.ListOtherProfiles(ctx, excluding) })
}

func (g *Guarded) ListAllPreferences(ctx context.Context) ([]matching.Preferences, error) {
	return guard(g, "list_all_preferences", func() ([]matching.Preferences, error) { return g.inner.ListAllPreferences(ctx) })
}

func (g *Guarded) ListAllSubjects(ctx context.Context) ([]matching.Subject, error) {
	return guard(g, "list_all_subjects", func() ([]matching.Subject, error) { return g.inner.ListAllSubjects(ctx) })
}

func (g *Guarded) ProfilesByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]matching.Profile, error) {
	return guard(g, "profiles_by_user_ids", func() (map[uuid.UUID]matching.Profile, error) { return g.inner.ProfilesByUserIDs(ctx, ids) })
}

func (g *Guarded) PreferencesByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]matching.Preferences, error) {
	return guard(g, "preferences_by_user_ids", func() (map[uuid.UUID]matching.Preferences, error) {
		return g.inner.PreferencesByUserIDs(ctx, ids)
	})
}

func (g *Guarded) SubjectsByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]matching.Subject, error) {
	return guard(g, "subjects_by_user_ids", func() (map[uuid.UUID][]matching.Subject, error) {
		return g.inner.SubjectsByUserIDs(ctx, ids)
	})
}
