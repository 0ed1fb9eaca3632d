// Package matching ranks study partners for a requester: it filters the candidate
// pool for eligibility, scores each eligible pair and orders the result.
package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LearningStyle is the closed vocabulary a student picks their study vibe from.
type LearningStyle string

const (
	StyleCalm       LearningStyle = "calm"
	StyleDiscussion LearningStyle = "discussion"
	StyleIntense    LearningStyle = "intense"
	StyleCasual     LearningStyle = "casual"
)

// ParseLearningStyle maps a stored tag to its canonical form. An empty tag stays
// empty (the user never picked one).
func ParseLearningStyle(s string) (LearningStyle, error) {
	switch LearningStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case StyleCalm:
		return StyleCalm, nil
	case StyleDiscussion:
		return StyleDiscussion, nil
	case StyleIntense:
		return StyleIntense, nil
	case StyleCasual:
		return StyleCasual, nil
	}
	return "", fmt.Errorf("%w: learning style %q", ErrUnknownTag, s)
}

// TimeSlot is one availability tag.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"
	SlotAfternoon TimeSlot = "afternoon"
	SlotEvening   TimeSlot = "evening"
	SlotWeekend   TimeSlot = "weekend"
)

// ParseTimeSlot is case-insensitive and accepts the plural "weekends" label.
func ParseTimeSlot(s string) (TimeSlot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "morning":
		return SlotMorning, nil
	case "afternoon":
		return SlotAfternoon, nil
	case "evening":
		return SlotEvening, nil
	case "weekend", "weekends":
		return SlotWeekend, nil
	}
	return "", fmt.Errorf("%w: time slot %q", ErrUnknownTag, s)
}

// ParseAvailability turns raw tags into a duplicate-free slot list, keeping the
// order in which each slot first appears.
func ParseAvailability(tags []string) ([]TimeSlot, error) {
	slots := make([]TimeSlot, 0, len(tags))
	seen := make(map[TimeSlot]struct{}, len(tags))
	for _, tag := range tags {
		slot, err := ParseTimeSlot(tag)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		slots = append(slots, slot)
	}
	return slots, nil
}

// Profile is the academic context a user fills in during onboarding.
type Profile struct {
	UserID       uuid.UUID `json:"user_id" validate:"required"`
	Name         string    `json:"name" validate:"max=100"`
	University   string    `json:"university" validate:"max=200"`
	City         string    `json:"city" validate:"max=100"`
	StudyProgram string    `json:"study_program" validate:"max=200"`
	Semester     *int      `json:"semester" validate:"omitempty,min=1,max=30"`
	ContactLink  *string   `json:"contact_link" validate:"omitempty,url"`
}

// Preferences holds how and when a user wants to study.
type Preferences struct {
	UserID          uuid.UUID     `json:"user_id" validate:"required"`
	LearningStyle   LearningStyle `json:"learning_style" validate:"required,oneof=calm discussion intense casual"`
	Availability    []TimeSlot    `json:"availability" validate:"min=1,dive,oneof=morning afternoon evening weekend"`
	PrefersOnline   bool          `json:"prefers_online"`
	PrefersInPerson bool          `json:"prefers_in_person"`
}

// Subject is one course a user is studying for.
type Subject struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id" validate:"required"`
	Name       string     `json:"subject_name" validate:"notblank,max=200"`
	ExamDate   *time.Time `json:"exam_date"`
	Difficulty int        `json:"difficulty" validate:"min=1,max=5"`
}

// Record is everything the engine knows about one user. Preferences is nil when
// the user has not saved any yet.
type Record struct {
	Profile     Profile
	Preferences *Preferences
	Subjects    []Subject
}

// MatchCandidate is one entry of a ranked result. It is built per request and
// never persisted.
type MatchCandidate struct {
	UserID          uuid.UUID     `json:"user_id"`
	Name            string        `json:"name"`
	University      string        `json:"university"`
	City            string        `json:"city"`
	StudyProgram    string        `json:"study_program"`
	Semester        *int          `json:"semester"`
	ContactLink     *string       `json:"contact_link"`
	LearningStyle   LearningStyle `json:"learning_style"`
	Availability    []TimeSlot    `json:"availability"`
	PrefersOnline   bool          `json:"prefers_online"`
	PrefersInPerson bool          `json:"prefers_in_person"`
	SharedSubjects  []string      `json:"shared_subjects"`
	Score           int           `json:"score"`
}

const dateLayout = "2006-01-02"

// Date returns midnight UTC of the given calendar day. Exam dates are always
// normalized this way so day differences come out whole.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD exam date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: exam date %q", ErrMalformedRecord, s)
	}
	return t, nil
}

// CalendarDay drops the clock and zone of t, keeping the calendar day it names.
func CalendarDay(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// FormatDate is the inverse of ParseDate.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
