package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PKBEATS21/compat-study-find/matching"
)

// failingStore answers GetProfile with a fixed error. Other methods are not
// used by these tests.
type failingStore struct {
	Store
	err   error
	calls atomic.Int32
}

func (f *failingStore) GetProfile(context.Context, uuid.UUID) (*matching.Profile, error) {
	f.calls.Add(1)
	return nil, f.err
}

func testBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}
}

func TestGuarded(t *testing.T) {
	ctx := context.Background()

	t.Run("Opens after repeated failures and fails fast", func(t *testing.T) {
		inner := &failingStore{err: errors.New("connection refused")}
		var transitions []gobreaker.State
		g := NewGuarded(inner, testBreakerSettings(), func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		})

		for i := 0; i < 2; i++ {
			_, err := g.GetProfile(ctx, uuid.New())
			assert.ErrorIs(t, err, inner.err)
		}
		assert.Equal(t, gobreaker.StateOpen, g.State())
		assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

		_, err := g.GetProfile(ctx, uuid.New())
		var se *matching.StoreError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "get_profile", se.Op)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.True(t, se.Retryable())
		assert.EqualValues(t, 2, inner.calls.Load())
	})

	t.Run("Data problems do not trip the breaker", func(t *testing.T) {
		for _, cause := range []error{matching.ErrUnknownTag, context.Canceled, &matching.ValidationError{}} {
			inner := &failingStore{err: cause}
			g := NewGuarded(inner, testBreakerSettings(), nil)
			for i := 0; i < 5; i++ {
				_, err := g.GetProfile(ctx, uuid.New())
				assert.ErrorIs(t, err, cause)
			}
			assert.Equal(t, gobreaker.StateClosed, g.State())
		}
	})

	t.Run("Successful calls pass values through", func(t *testing.T) {
		s := newTestGorm(t)
		id := uuid.New()
		require.NoError(t, s.SaveProfile(ctx, matching.Profile{UserID: id, Name: "Mia"}))

		g := NewGuarded(s, testBreakerSettings(), nil)
		p, err := g.GetProfile(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Mia", p.Name)

		absent, err := g.GetProfile(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, absent)
	})
}
