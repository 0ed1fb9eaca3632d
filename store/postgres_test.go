package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/PKBEATS21/compat-study-find/matching"
)

// startPostgres runs a throwaway Postgres container. The test is skipped with
// -short or when no container runtime is reachable.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "studymatch",
				"POSTGRES_PASSWORD": "studymatch",
				"POSTGRES_DB":       "studymatch",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=studymatch password=studymatch dbname=studymatch sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func insertUser(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, 'x')`, id, id.String()+"@example.com")
	require.NoError(t, err)
	return id
}

func TestPostgresStore(t *testing.T) {
	db := startPostgres(t)
	s := NewPostgres(db)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	// Migrate is idempotent.
	require.NoError(t, s.Migrate(ctx))

	seed := func(city string, style matching.LearningStyle, online, inPerson bool, slots []matching.TimeSlot, subjects ...matching.Subject) uuid.UUID {
		id := insertUser(t, db)
		require.NoError(t, s.SaveProfile(ctx, matching.Profile{UserID: id, Name: "student", City: city}))
		require.NoError(t, s.SavePreferences(ctx, matching.Preferences{
			UserID: id, LearningStyle: style, Availability: slots, PrefersOnline: online, PrefersInPerson: inPerson,
		}))
		for _, sub := range subjects {
			sub.UserID = id
			_, err := s.AddSubject(ctx, sub)
			require.NoError(t, err)
		}
		return id
	}

	requester := seed("Berlin", matching.StyleDiscussion, true, true,
		[]matching.TimeSlot{matching.SlotEvening, matching.SlotWeekend},
		matching.Subject{Name: "Linear Algebra II", ExamDate: exam(2025, time.February, 15)},
		matching.Subject{Name: "Databases"},
	)
	candidate := seed("berlin", matching.StyleDiscussion, true, false,
		[]matching.TimeSlot{matching.SlotEvening},
		matching.Subject{Name: "linear algebra ii", ExamDate: exam(2025, time.February, 20)},
	)

	t.Run("Point lookups", func(t *testing.T) {
		prefs, err := s.GetPreferences(ctx, requester)
		require.NoError(t, err)
		require.NotNil(t, prefs)
		assert.Equal(t, []matching.TimeSlot{matching.SlotEvening, matching.SlotWeekend}, prefs.Availability)

		subjects, err := s.GetSubjects(ctx, requester)
		require.NoError(t, err)
		require.Len(t, subjects, 2)
		assert.Equal(t, "Linear Algebra II", subjects[0].Name)
		require.NotNil(t, subjects[0].ExamDate)
		assert.Equal(t, matching.Date(2025, time.February, 15), *subjects[0].ExamDate)

		missing, err := s.GetProfile(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("Batch lookups", func(t *testing.T) {
		profiles, err := s.ProfilesByUserIDs(ctx, []uuid.UUID{requester, candidate, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, profiles, 2)

		subjects, err := s.SubjectsByUserIDs(ctx, []uuid.UUID{requester, candidate})
		require.NoError(t, err)
		assert.Len(t, subjects[requester], 2)
		assert.Len(t, subjects[candidate], 1)
	})

	t.Run("Malformed rows are skipped in lists", func(t *testing.T) {
		bad := insertUser(t, db)
		_, err := db.Exec(`INSERT INTO preferences (user_id, learning_style, availability, prefers_online) VALUES ($1, 'loud', '["evening"]', true)`, bad)
		require.NoError(t, err)
		t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM preferences WHERE user_id = $1`, bad) })

		all, err := s.ListAllPreferences(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("Ranking end to end", func(t *testing.T) {
		got, err := matching.NewRanker(s).Rank(ctx, requester)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, candidate, got[0].UserID)
		assert.Equal(t, 91, got[0].Score)
	})

	t.Run("Delete subject", func(t *testing.T) {
		sub, err := s.AddSubject(ctx, matching.Subject{UserID: candidate, Name: "Statistics", Difficulty: 2})
		require.NoError(t, err)
		assert.ErrorIs(t, s.DeleteSubject(ctx, requester, sub.ID), ErrNotFound)
		assert.NoError(t, s.DeleteSubject(ctx, candidate, sub.ID))
	})
}
