package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/PKBEATS21/compat-study-find/matching"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
	user_id       UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	name          TEXT NOT NULL DEFAULT '',
	university    TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	study_program TEXT NOT NULL DEFAULT '',
	semester      INT CHECK (semester > 0),
	contact_link  TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS preferences (
	user_id           UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	learning_style    TEXT NOT NULL DEFAULT '',
	availability      JSONB NOT NULL DEFAULT '[]',
	prefers_online    BOOLEAN NOT NULL DEFAULT FALSE,
	prefers_in_person BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subjects (
	id           UUID PRIMARY KEY,
	user_id      UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	subject_name TEXT NOT NULL,
	exam_date    DATE,
	difficulty   INT NOT NULL DEFAULT 3 CHECK (difficulty BETWEEN 1 AND 5),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS subjects_user_id_idx ON subjects (user_id);
`

// Postgres is the production record store.
type Postgres struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewPostgres(db *sql.DB, opts ...Option) *Postgres {
	o := buildOptions(opts)
	return &Postgres{db: db, log: o.log.With().Str("store", "postgres").Logger()}
}

// Migrate creates any missing tables.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const profileColumns = `user_id, name, university, city, study_program, semester, contact_link`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (matching.Profile, error) {
	var (
		p        matching.Profile
		semester sql.NullInt32
		link     sql.NullString
	)
	if err := row.Scan(&p.UserID, &p.Name, &p.University, &p.City, &p.StudyProgram, &semester, &link); err != nil {
		return p, err
	}
	if semester.Valid {
		v := int(semester.Int32)
		p.Semester = &v
	}
	if link.Valid {
		p.ContactLink = &link.String
	}
	return p, nil
}

func (s *Postgres) GetProfile(ctx context.Context, userID uuid.UUID) (*matching.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &p, nil
}

const preferencesColumns = `user_id, learning_style, availability, prefers_online, prefers_in_person`

func scanPreferences(row rowScanner) (matching.Preferences, error) {
	var (
		id               uuid.UUID
		style            string
		availability     []byte
		online, inPerson bool
	)
	if err := row.Scan(&id, &style, &availability, &online, &inPerson); err != nil {
		return matching.Preferences{}, err
	}
	return decodePreferences(id, style, availability, online, inPerson)
}

func (s *Postgres) GetPreferences(ctx context.Context, userID uuid.UUID) (*matching.Preferences, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+preferencesColumns+` FROM preferences WHERE user_id = $1`, userID)
	p, err := scanPreferences(row)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &p, nil
}

const subjectColumns = `id, user_id, subject_name, exam_date, difficulty`

func scanSubject(row rowScanner) (matching.Subject, error) {
	var (
		sub  matching.Subject
		exam sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Name, &exam, &sub.Difficulty); err != nil {
		return sub, err
	}
	if exam.Valid {
		sub.ExamDate = examDate(&exam.Time)
	}
	return sub, nil
}

func (s *Postgres) GetSubjects(ctx context.Context, userID uuid.UUID) ([]matching.Subject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subjects := make([]matching.Subject, 0)
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

func (s *Postgres) ListOtherProfiles(ctx context.Context, excluding uuid.UUID) ([]matching.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id <> $1 ORDER BY created_at, user_id`, excluding)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]matching.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Postgres) ListAllPreferences(ctx context.Context) ([]matching.Preferences, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+preferencesColumns+` FROM preferences`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectPreferences(rows)
}

// collectPreferences skips rows that do not decode so one bad record never
// fails a whole pass.
func (s *Postgres) collectPreferences(rows *sql.Rows) ([]matching.Preferences, error) {
	out := make([]matching.Preferences, 0)
	for rows.Next() {
		p, err := scanPreferences(rows)
		if errors.Is(err, matching.ErrMalformedRecord) {
			s.log.Warn().Err(err).Str("user_id", p.UserID.String()).Msg("Skipping malformed preferences row")
			continue
		} else if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) ListAllSubjects(ctx context.Context) ([]matching.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subjects := make([]matching.Subject, 0)
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

func (s *Postgres) ProfilesByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]matching.Profile, error) {
	out := make(map[uuid.UUID]matching.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = ANY($1::uuid[])`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

func (s *Postgres) PreferencesByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]matching.Preferences, error) {
	out := make(map[uuid.UUID]matching.Preferences, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+preferencesColumns+` FROM preferences WHERE user_id = ANY($1::uuid[])`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs, err := s.collectPreferences(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range prefs {
		out[p.UserID] = p
	}
	return out, nil
}

func (s *Postgres) SubjectsByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]matching.Subject, error) {
	out := make(map[uuid.UUID][]matching.Subject, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE user_id = ANY($1::uuid[]) ORDER BY created_at, id`,
		pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out[sub.UserID] = append(out[sub.UserID], sub)
	}
	return out, rows.Err()
}

func (s *Postgres) SaveProfile(ctx context.Context, p matching.Profile) error {
	if err := matching.Validate(p); err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (user_id, name, university, city, study_program, semester, contact_link)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id) DO UPDATE SET
				name = EXCLUDED.name,
				university = EXCLUDED.university,
				city = EXCLUDED.city,
				study_program = EXCLUDED.study_program,
				semester = EXCLUDED.semester,
				contact_link = EXCLUDED.contact_link,
				updated_at = now()`,
			p.UserID, p.Name, p.University, p.City, p.StudyProgram, p.Semester, p.ContactLink)
		return err
	})
}

func (s *Postgres) SavePreferences(ctx context.Context, p matching.Preferences) error {
	p, err := normalizePreferences(p)
	if err != nil {
		return err
	}
	if err := matching.Validate(p); err != nil {
		return err
	}
	availability, err := encodeAvailability(p.Availability)
	if err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO preferences (user_id, learning_style, availability, prefers_online, prefers_in_person)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE SET
				learning_style = EXCLUDED.learning_style,
				availability = EXCLUDED.availability,
				prefers_online = EXCLUDED.prefers_online,
				prefers_in_person = EXCLUDED.prefers_in_person,
				updated_at = now()`,
			p.UserID, string(p.LearningStyle), string(availability), p.PrefersOnline, p.PrefersInPerson)
		return err
	})
}

func (s *Postgres) AddSubject(ctx context.Context, sub matching.Subject) (matching.Subject, error) {
	sub = normalizeSubject(sub)
	if err := matching.Validate(sub); err != nil {
		return matching.Subject{}, err
	}
	var exam any
	if sub.ExamDate != nil {
		exam = matching.FormatDate(*sub.ExamDate)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, user_id, subject_name, exam_date, difficulty) VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.UserID, sub.Name, exam, sub.Difficulty)
	if err != nil {
		return matching.Subject{}, err
	}
	return sub, nil
}

func (s *Postgres) DeleteSubject(ctx context.Context, userID, subjectID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1 AND user_id = $2`, subjectID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// withTx runs fn inside a read-committed transaction and rolls back on error
// or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
