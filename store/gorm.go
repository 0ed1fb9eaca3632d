package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PKBEATS21/compat-study-find/matching"
)

type profileRow struct {
	UserID       uuid.UUID `gorm:"primaryKey;type:text"`
	Name         string    `gorm:"not null"`
	University   string    `gorm:"not null"`
	City         string    `gorm:"not null"`
	StudyProgram string    `gorm:"not null"`
	Semester     *int
	ContactLink  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (profileRow) TableName() string { return "profiles" }

type preferencesRow struct {
	UserID          uuid.UUID      `gorm:"primaryKey;type:text"`
	LearningStyle   string         `gorm:"not null"`
	Availability    datatypes.JSON `gorm:"not null"`
	PrefersOnline   bool           `gorm:"not null"`
	PrefersInPerson bool           `gorm:"not null"`
	UpdatedAt       time.Time
}

func (preferencesRow) TableName() string { return "preferences" }

type subjectRow struct {
	ID          uuid.UUID `gorm:"primaryKey;type:text"`
	UserID      uuid.UUID `gorm:"type:text;not null;index"`
	SubjectName string    `gorm:"not null"`
	ExamDate    *datatypes.Date
	Difficulty  int `gorm:"not null"`
	CreatedAt   time.Time
}

func (subjectRow) TableName() string { return "subjects" }

func (r profileRow) toProfile() matching.Profile {
	return matching.Profile{
		UserID:       r.UserID,
		Name:         r.Name,
		University:   r.University,
		City:         r.City,
		StudyProgram: r.StudyProgram,
		Semester:     r.Semester,
		ContactLink:  r.ContactLink,
	}
}

func (r subjectRow) toSubject() matching.Subject {
	s := matching.Subject{ID: r.ID, UserID: r.UserID, Name: r.SubjectName, Difficulty: r.Difficulty}
	if r.ExamDate != nil {
		t := time.Time(*r.ExamDate)
		s.ExamDate = examDate(&t)
	}
	return s
}

// Gorm is the record store used with SQLite for local development and tests.
type Gorm struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewGorm(db *gorm.DB, opts ...Option) *Gorm {
	o := buildOptions(opts)
	return &Gorm{db: db, log: o.log.With().Str("store", "gorm").Logger()}
}

// OpenSQLite opens (or creates) a SQLite database file with gorm queries logged
// through log.
func OpenSQLite(path string, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: NewGormLogger(log)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func (s *Gorm) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&profileRow{}, &preferencesRow{}, &subjectRow{})
}

func (s *Gorm) GetProfile(ctx context.Context, userID uuid.UUID) (*matching.Profile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	p := row.toProfile()
	return &p, nil
}

func (s *Gorm) GetPreferences(ctx context.Context, userID uuid.UUID) (*matching.Preferences, error) {
	var row preferencesRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	p, err := decodePreferences(row.UserID, row.LearningStyle, row.Availability, row.PrefersOnline, row.PrefersInPerson)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Gorm) GetSubjects(ctx context.Context, userID uuid.UUID) ([]matching.Subject, error) {
	var rows []subjectRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Order("rowid").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toSubjects(rows), nil
}

func (s *Gorm) ListOtherProfiles(ctx context.Context, excluding uuid.UUID) ([]matching.Profile, error) {
	var rows []profileRow
	err := s.db.WithContext(ctx).Where("user_id <> ?", excluding).Order("created_at").Order("rowid").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	profiles := make([]matching.Profile, len(rows))
	for i, r := range rows {
		profiles[i] = r.toProfile()
	}
	return profiles, nil
}

func (s *Gorm) ListAllPreferences(ctx context.Context) ([]matching.Preferences, error) {
	var rows []preferencesRow
	if err := s.db.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.decodePreferenceRows(rows), nil
}

func (s *Gorm) decodePreferenceRows(rows []preferencesRow) []matching.Preferences {
	out := make([]matching.Preferences, 0, len(rows))
	for _, r := range rows {
		p, err := decodePreferences(r.UserID, r.LearningStyle, r.Availability, r.PrefersOnline, r.PrefersInPerson)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", r.UserID.String()).Msg("Skipping malformed preferences row")
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Gorm) ListAllSubjects(ctx context.Context) ([]matching.Subject, error) {
	var rows []subjectRow
	if err := s.db.WithContext(ctx).Order("created_at").Order("rowid").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSubjects(rows), nil
}

func toSubjects(rows []subjectRow) []matching.Subject {
	out := make([]matching.Subject, len(rows))
	for i, r := range rows {
		out[i] = r.toSubject()
	}
	return out
}

func (s *Gorm) ProfilesByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]matching.Profile, error) {
	out := make(map[uuid.UUID]matching.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []profileRow
	if err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.UserID] = r.toProfile()
	}
	return out, nil
}

func (s *Gorm) PreferencesByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]matching.Preferences, error) {
	out := make(map[uuid.UUID]matching.Preferences, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []preferencesRow
	if err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range s.decodePreferenceRows(rows) {
		out[p.UserID] = p
	}
	return out, nil
}

func (s *Gorm) SubjectsByUserIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]matching.Subject, error) {
	out := make(map[uuid.UUID][]matching.Subject, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []subjectRow
	err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Order("created_at").Order("rowid").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.UserID] = append(out[r.UserID], r.toSubject())
	}
	return out, nil
}

func (s *Gorm) SaveProfile(ctx context.Context, p matching.Profile) error {
	if err := matching.Validate(p); err != nil {
		return err
	}
	row := profileRow{
		UserID:       p.UserID,
		Name:         p.Name,
		University:   p.University,
		City:         p.City,
		StudyProgram: p.StudyProgram,
		Semester:     p.Semester,
		ContactLink:  p.ContactLink,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *Gorm) SavePreferences(ctx context.Context, p matching.Preferences) error {
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
	row := preferencesRow{
		UserID:          p.UserID,
		LearningStyle:   string(p.LearningStyle),
		Availability:    datatypes.JSON(availability),
		PrefersOnline:   p.PrefersOnline,
		PrefersInPerson: p.PrefersInPerson,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).Create(&row).Error
	})
}

func (s *Gorm) AddSubject(ctx context.Context, sub matching.Subject) (matching.Subject, error) {
	sub = normalizeSubject(sub)
	if err := matching.Validate(sub); err != nil {
		return matching.Subject{}, err
	}
	row := subjectRow{ID: sub.ID, UserID: sub.UserID, SubjectName: sub.Name, Difficulty: sub.Difficulty}
	if sub.ExamDate != nil {
		d := datatypes.Date(*sub.ExamDate)
		row.ExamDate = &d
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return matching.Subject{}, err
	}
	return sub, nil
}

func (s *Gorm) DeleteSubject(ctx context.Context, userID, subjectID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", subjectID, userID).Delete(&subjectRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
