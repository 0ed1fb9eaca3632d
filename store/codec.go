package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/PKBEATS21/compat-study-find/matching"
)

// decodeAvailability reads the JSON array stored for a user's time slots.
func decodeAvailability(raw []byte) ([]matching.TimeSlot, error) {
	if len(raw) == 0 {
		return []matching.TimeSlot{}, nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("%w: availability: %v", matching.ErrMalformedRecord, err)
	}
	return matching.ParseAvailability(tags)
}

func encodeAvailability(slots []matching.TimeSlot) ([]byte, error) {
	if slots == nil {
		slots = []matching.TimeSlot{}
	}
	return json.Marshal(slots)
}

func decodePreferences(userID uuid.UUID, style string, availability []byte, online, inPerson bool) (matching.Preferences, error) {
	ls, err := matching.ParseLearningStyle(style)
	if err != nil {
		return matching.Preferences{UserID: userID}, err
	}
	slots, err := decodeAvailability(availability)
	if err != nil {
		return matching.Preferences{UserID: userID}, err
	}
	return matching.Preferences{
		UserID:          userID,
		LearningStyle:   ls,
		Availability:    slots,
		PrefersOnline:   online,
		PrefersInPerson: inPerson,
	}, nil
}

// normalizePreferences canonicalizes tags before validation and storage.
func normalizePreferences(p matching.Preferences) (matching.Preferences, error) {
	style, err := matching.ParseLearningStyle(string(p.LearningStyle))
	if err != nil {
		return p, err
	}
	tags := make([]string, len(p.Availability))
	for i, s := range p.Availability {
		tags[i] = string(s)
	}
	slots, err := matching.ParseAvailability(tags)
	if err != nil {
		return p, err
	}
	p.LearningStyle = style
	p.Availability = slots
	return p, nil
}

func normalizeSubject(s matching.Subject) matching.Subject {
	s.Name = strings.TrimSpace(s.Name)
	if s.Difficulty == 0 {
		s.Difficulty = 3
	}
	if s.ExamDate != nil {
		day := matching.CalendarDay(*s.ExamDate)
		s.ExamDate = &day
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return s
}

func examDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	day := matching.CalendarDay(*t)
	return &day
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
