package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/PKBEATS21/compat-study-find/matching"
	"github.com/PKBEATS21/compat-study-find/store"
)

const testSecret = "test-secret-key-for-testing"

// testApp is a router backed by an in-memory sqlite store.
type testApp struct {
	srv     *server
	handler http.Handler
	store   *store.Gorm
}

func newTestApp(t *testing.T, tweak ...func(*Config)) *testApp {
	t.Helper()
	db, err := store.OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := store.NewGorm(db)
	require.NoError(t, s.Migrate(context.Background()))
	return newTestAppWith(t, s, s, tweak...)
}

// newTestAppWith serves backend while still seeding through g.
func newTestAppWith(t *testing.T, g *store.Gorm, backend store.Store, tweak ...func(*Config)) *testApp {
	t.Helper()
	cfg := defaultConfig()
	cfg.Auth.JWTSecret = testSecret
	cfg.Server.Environment = "test"
	cfg.Live.RefreshInterval = time.Hour
	for _, fn := range tweak {
		fn(cfg)
	}
	srv := newServer(cfg, zerolog.Nop(), backend, newMetrics())
	return &testApp{srv: srv, handler: srv.routes(), store: g}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func tokenFor(t *testing.T, id uuid.UUID) string {
	return signToken(t, jwt.MapClaims{
		"sub": id.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func (a *testApp) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// testStudent describes a user to seed. Zero values leave parts out.
type testStudent struct {
	name     string
	city     string
	style    matching.LearningStyle
	online   bool
	inPerson bool
	slots    []matching.TimeSlot
	subjects []matching.Subject
	noPrefs  bool
}

func (a *testApp) seed(t *testing.T, s testStudent) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, a.store.SaveProfile(ctx, matching.Profile{UserID: id, Name: s.name, City: s.city}))
	if !s.noPrefs {
		style := s.style
		if style == "" {
			style = matching.StyleCalm
		}
		slots := s.slots
		if len(slots) == 0 {
			slots = []matching.TimeSlot{matching.SlotEvening}
		}
		require.NoError(t, a.store.SavePreferences(ctx, matching.Preferences{
			UserID: id, LearningStyle: style, Availability: slots,
			PrefersOnline: s.online || !s.inPerson, PrefersInPerson: s.inPerson,
		}))
	}
	for _, sub := range s.subjects {
		sub.UserID = id
		_, err := a.store.AddSubject(ctx, sub)
		require.NoError(t, err)
	}
	return id
}

func examOn(y int, m time.Month, d int) *time.Time {
	t := matching.Date(y, m, d)
	return &t
}

// seedScenario stores the requester and candidate whose pair scores 91, plus a
// Databases student with no common time slot.
func (a *testApp) seedScenario(t *testing.T) (requester, candidate uuid.UUID) {
	t.Helper()
	requester = a.seed(t, testStudent{
		name: "Mia", city: "Berlin", style: matching.StyleDiscussion, online: true, inPerson: true,
		slots: []matching.TimeSlot{matching.SlotEvening, matching.SlotWeekend},
		subjects: []matching.Subject{
			{Name: "Linear Algebra II", ExamDate: examOn(2025, time.February, 15)},
			{Name: "Databases"},
		},
	})
	candidate = a.seed(t, testStudent{
		name: "Jonas", city: "Berlin", style: matching.StyleDiscussion, online: true,
		slots:    []matching.TimeSlot{matching.SlotEvening},
		subjects: []matching.Subject{{Name: "linear algebra ii", ExamDate: examOn(2025, time.February, 20)}},
	})
	a.seed(t, testStudent{
		name: "Lea", city: "Berlin", style: matching.StyleDiscussion, online: true,
		slots:    []matching.TimeSlot{matching.SlotMorning},
		subjects: []matching.Subject{{Name: "Databases"}},
	})
	return requester, candidate
}
