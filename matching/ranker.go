package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RecordStore is the read surface the ranker needs. Point lookups return
// (nil, nil) for a user that has no such row.
type RecordStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	GetPreferences(ctx context.Context, userID uuid.UUID) (*Preferences, error)
	GetSubjects(ctx context.Context, userID uuid.UUID) ([]Subject, error)
	ListOtherProfiles(ctx context.Context, excluding uuid.UUID) ([]Profile, error)
	ListAllPreferences(ctx context.Context) ([]Preferences, error)
	ListAllSubjects(ctx context.Context) ([]Subject, error)
}

// Pass outcomes reported to an Observer.
const (
	OutcomeOK                = "ok"
	OutcomeNoSubjects        = "no_subjects"
	OutcomeIncompleteProfile = "incomplete_profile"
	OutcomeStoreError        = "store_error"
	OutcomeCanceled          = "canceled"
)

// Observer receives ranking statistics.
type Observer interface {
	CandidateExcluded(reason ExclusionReason)
	PassFinished(outcome string, evaluated, eligible int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) CandidateExcluded(ExclusionReason) {}
func (nopObserver) PassFinished(string, int, int, time.Duration) {}

// Option configures a Ranker.
type Option func(*Ranker)

func WithLogger(log zerolog.Logger) Option {
	return func(r *Ranker) { r.log = log }
}

func WithObserver(o Observer) Option {
	return func(r *Ranker) {
		if o != nil {
			r.observer = o
		}
	}
}

// Ranker runs ranking passes against a RecordStore. It holds no per-pass state
// and is safe for concurrent use.
type Ranker struct {
	store    RecordStore
	log      zerolog.Logger
	observer Observer
}

func NewRanker(store RecordStore, opts ...Option) *Ranker {
	r := &Ranker{store: store, log: zerolog.Nop(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank returns the requester's eligible candidates ordered by score, highest
// first. It returns ErrNoSubjects (without reading the pool) when the requester
// has no subjects and ErrIncompleteProfile when their profile or preferences
// are missing. Store failures come back as *StoreError.
func (r *Ranker) Rank(ctx context.Context, requesterID uuid.UUID) ([]MatchCandidate, error) {
	start := time.Now()
	log := r.log.With().Str("requester_id", requesterID.String()).Logger()

	requester, err := r.loadRequester(ctx, requesterID)
	if err != nil {
		r.finish(log, err, 0, 0, start)
		return nil, err
	}

	pool, err := r.loadPool(ctx, requesterID)
	if err != nil {
		r.finish(log, err, 0, 0, start)
		return nil, err
	}

	results := make([]MatchCandidate, 0)
	evaluated := 0
	for _, candidate := range pool {
		if err := ctx.Err(); err != nil {
			r.finish(log, err, evaluated, len(results), start)
			return nil, err
		}
		evaluated++
		el := Evaluate(requester, candidate)
		if !el.Eligible {
			r.observer.CandidateExcluded(el.Reason)
			log.Trace().
				Str("candidate_id", candidate.Profile.UserID.String()).
				Str("reason", string(el.Reason)).
				Msg("Candidate excluded")
			continue
		}
		score := Score(ScoreInput{
			SharedSubjects:    len(el.SharedSubjects),
			OverlapSlots:      len(el.Overlap),
			RequesterStyle:    requester.Preferences.LearningStyle,
			CandidateStyle:    candidate.Preferences.LearningStyle,
			RequesterCity:     requester.Profile.City,
			CandidateCity:     candidate.Profile.City,
			RequesterSubjects: requester.Subjects,
			CandidateSubjects: candidate.Subjects,
		})
		results = append(results, newMatchCandidate(candidate, el, score))
	}

	// Equal scores keep pool order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	r.finish(log, nil, evaluated, len(results), start)
	return results, nil
}

func (r *Ranker) loadRequester(ctx context.Context, id uuid.UUID) (Record, error) {
	profile, err := r.store.GetProfile(ctx, id)
	if err != nil {
		return Record{}, requesterError("get_profile", err)
	}
	prefs, err := r.store.GetPreferences(ctx, id)
	if err != nil {
		return Record{}, requesterError("get_preferences", err)
	}
	subjects, err := r.store.GetSubjects(ctx, id)
	if err != nil {
		return Record{}, requesterError("get_subjects", err)
	}
	if len(subjects) == 0 {
		return Record{}, ErrNoSubjects
	}
	if profile == nil || prefs == nil {
		return Record{}, ErrIncompleteProfile
	}
	return Record{Profile: *profile, Preferences: prefs, Subjects: subjects}, nil
}

// requesterError turns an undecodable requester row into the incomplete profile
// signal; anything else is a store failure.
func requesterError(op string, err error) error {
	if isMalformed(err) {
		return ErrIncompleteProfile
	}
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	return AsStoreError(op, err)
}

func (r *Ranker) loadPool(ctx context.Context, requesterID uuid.UUID) ([]Record, error) {
	profiles, err := r.store.ListOtherProfiles(ctx, requesterID)
	if err != nil {
		return nil, poolError("list_other_profiles", err)
	}
	prefs, err := r.store.ListAllPreferences(ctx)
	if err != nil {
		return nil, poolError("list_all_preferences", err)
	}
	subjects, err := r.store.ListAllSubjects(ctx)
	if err != nil {
		return nil, poolError("list_all_subjects", err)
	}

	prefsByUser := make(map[uuid.UUID]*Preferences, len(prefs))
	for i := range prefs {
		// First row wins.
		if _, ok := prefsByUser[prefs[i].UserID]; !ok {
			prefsByUser[prefs[i].UserID] = &prefs[i]
		}
	}
	subjectsByUser := make(map[uuid.UUID][]Subject)
	for _, s := range subjects {
		subjectsByUser[s.UserID] = append(subjectsByUser[s.UserID], s)
	}

	pool := make([]Record, 0, len(profiles))
	for _, p := range profiles {
		if p.UserID == requesterID {
			continue
		}
		pool = append(pool, Record{
			Profile:     p,
			Preferences: prefsByUser[p.UserID],
			Subjects:    subjectsByUser[p.UserID],
		})
	}
	return pool, nil
}

func poolError(op string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	return AsStoreError(op, err)
}

func (r *Ranker) finish(log zerolog.Logger, err error, evaluated, eligible int, start time.Time) {
	elapsed := time.Since(start)
	outcome := outcomeOf(err)
	r.observer.PassFinished(outcome, evaluated, eligible, elapsed)

	switch outcome {
	case OutcomeStoreError:
		log.Warn().Err(err).Dur("elapsed", elapsed).Msg("Ranking pass failed")
	case OutcomeOK:
		log.Debug().
			Int("evaluated", evaluated).
			Int("eligible", eligible).
			Dur("elapsed", elapsed).
			Msg("Ranking pass finished")
	default:
		log.Debug().Str("outcome", outcome).Msg("Ranking pass stopped")
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case isErr(err, ErrNoSubjects):
		return OutcomeNoSubjects
	case isErr(err, ErrIncompleteProfile):
		return OutcomeIncompleteProfile
	case contextError(err) != nil:
		return OutcomeCanceled
	default:
		return OutcomeStoreError
	}
}

func newMatchCandidate(c Record, el Eligibility, score int) MatchCandidate {
	p, prefs := c.Profile, c.Preferences
	style := prefs.LearningStyle
	if style == "" {
		style = StyleCalm
	}
	return MatchCandidate{
		UserID:          p.UserID,
		Name:            orDefault(p.Name, "Anonymous"),
		University:      orDefault(p.University, "Unknown"),
		City:            orDefault(p.City, "Unknown"),
		StudyProgram:    orDefault(p.StudyProgram, "Unknown"),
		Semester:        p.Semester,
		ContactLink:     p.ContactLink,
		LearningStyle:   style,
		Availability:    prefs.Availability,
		PrefersOnline:   prefs.PrefersOnline,
		PrefersInPerson: prefs.PrefersInPerson,
		SharedSubjects:  el.SharedSubjects,
		Score:           score,
	}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
