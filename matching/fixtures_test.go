package matching

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory RecordStore that keeps insertion order and counts
// calls per operation.
type memStore struct {
	mu       sync.Mutex
	records  []Record
	failOn   map[string]error
	calls    map[string]int
	beforeOp func(op string)
}

func newMemStore(records ...Record) *memStore {
	return &memStore{records: records, failOn: map[string]error{}, calls: map[string]int{}}
}

func (s *memStore) enter(op string) error {
	s.mu.Lock()
	s.calls[op]++
	err := s.failOn[op]
	hook := s.beforeOp
	s.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return err
}

func (s *memStore) find(id uuid.UUID) *Record {
	for i := range s.records {
		if s.records[i].Profile.UserID == id {
			return &s.records[i]
		}
	}
	return nil
}

func (s *memStore) GetProfile(_ context.Context, id uuid.UUID) (*Profile, error) {
	if err := s.enter("get_profile"); err != nil {
		return nil, err
	}
	rec := s.find(id)
	if rec == nil {
		return nil, nil
	}
	p := rec.Profile
	return &p, nil
}

func (s *memStore) GetPreferences(_ context.Context, id uuid.UUID) (*Preferences, error) {
	if err := s.enter("get_preferences"); err != nil {
		return nil, err
	}
	rec := s.find(id)
	if rec == nil || rec.Preferences == nil {
		return nil, nil
	}
	p := *rec.Preferences
	return &p, nil
}

func (s *memStore) GetSubjects(_ context.Context, id uuid.UUID) ([]Subject, error) {
	if err := s.enter("get_subjects"); err != nil {
		return nil, err
	}
	rec := s.find(id)
	if rec == nil {
		return nil, nil
	}
	return append([]Subject(nil), rec.Subjects...), nil
}

func (s *memStore) ListOtherProfiles(_ context.Context, excluding uuid.UUID) ([]Profile, error) {
	if err := s.enter("list_other_profiles"); err != nil {
		return nil, err
	}
	var out []Profile
	for _, r := range s.records {
		if r.Profile.UserID != excluding {
			out = append(out, r.Profile)
		}
	}
	return out, nil
}

func (s *memStore) ListAllPreferences(context.Context) ([]Preferences, error) {
	if err := s.enter("list_all_preferences"); err != nil {
		return nil, err
	}
	var out []Preferences
	for _, r := range s.records {
		if r.Preferences != nil {
			out = append(out, *r.Preferences)
		}
	}
	return out, nil
}

func (s *memStore) ListAllSubjects(context.Context) ([]Subject, error) {
	if err := s.enter("list_all_subjects"); err != nil {
		return nil, err
	}
	var out []Subject
	for _, r := range s.records {
		out = append(out, r.Subjects...)
	}
	return out, nil
}

// student builds a Record with sensible defaults that tests override.
type student struct {
	name     string
	city     string
	style    LearningStyle
	online   bool
	inPerson bool
	slots    []TimeSlot
	subjects []Subject
	noPrefs  bool
}

func (s student) record() Record {
	id := uuid.New()
	rec := Record{Profile: Profile{UserID: id, Name: s.name, City: s.city}}
	if !s.noPrefs {
		rec.Preferences = &Preferences{
			UserID:          id,
			LearningStyle:   s.style,
			Availability:    s.slots,
			PrefersOnline:   s.online,
			PrefersInPerson: s.inPerson,
		}
	}
	for _, sub := range s.subjects {
		sub.ID = uuid.New()
		sub.UserID = id
		if sub.Difficulty == 0 {
			sub.Difficulty = 3
		}
		rec.Subjects = append(rec.Subjects, sub)
	}
	return rec
}

func subject(name string) Subject {
	return Subject{Name: name}
}

func examSubject(name string, exam time.Time) Subject {
	return Subject{Name: name, ExamDate: &exam}
}

func slots(s ...TimeSlot) []TimeSlot {
	return s
}

type recordingObserver struct {
	mu        sync.Mutex
	excluded  map[ExclusionReason]int
	outcomes  []string
	evaluated int
	eligible  int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{excluded: map[ExclusionReason]int{}}
}

func (o *recordingObserver) CandidateExcluded(reason ExclusionReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.excluded[reason]++
}

func (o *recordingObserver) PassFinished(outcome string, evaluated, eligible int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	o.evaluated += evaluated
	o.eligible += eligible
}
