package matching

import "strings"

// ExclusionReason names the first filter check a candidate failed.
type ExclusionReason string

const (
	ExcludedIncomplete       ExclusionReason = "incomplete_profile"
	ExcludedModeMismatch     ExclusionReason = "mode_mismatch"
	ExcludedCityMismatch     ExclusionReason = "city_mismatch"
	ExcludedNoSharedSubjects ExclusionReason = "no_shared_subjects"
	ExcludedNoOverlap        ExclusionReason = "no_availability_overlap"
)

// Eligibility is the outcome of Evaluate. SharedSubjects and Overlap are only
// set for eligible candidates.
type Eligibility struct {
	Eligible       bool
	Reason         ExclusionReason
	SharedSubjects []string
	Overlap        []TimeSlot
}

func excluded(reason ExclusionReason) Eligibility {
	return Eligibility{Reason: reason}
}

// Evaluate decides whether candidate may appear in requester's results. Checks
// run in a fixed order and the first failing one wins.
func Evaluate(requester, candidate Record) Eligibility {
	rp, cp := requester.Preferences, candidate.Preferences
	if rp == nil || cp == nil || len(candidate.Subjects) == 0 {
		return excluded(ExcludedIncomplete)
	}

	onlineMatch := rp.PrefersOnline && cp.PrefersOnline
	inPersonMatch := rp.PrefersInPerson && cp.PrefersInPerson
	// In-person-only requesters never meet someone from another city.
	if rp.PrefersInPerson && !rp.PrefersOnline && cp.PrefersInPerson &&
		!sameCity(requester.Profile.City, candidate.Profile.City) {
		return excluded(ExcludedCityMismatch)
	}
	if !onlineMatch && !inPersonMatch {
		return excluded(ExcludedModeMismatch)
	}

	shared := SharedSubjects(requester.Subjects, candidate.Subjects)
	if len(shared) == 0 {
		return excluded(ExcludedNoSharedSubjects)
	}

	overlap := AvailabilityOverlap(rp.Availability, cp.Availability)
	if len(overlap) == 0 {
		return excluded(ExcludedNoOverlap)
	}

	return Eligibility{Eligible: true, SharedSubjects: shared, Overlap: overlap}
}

// SharedSubjects returns the names of theirs, in order, that match at least one
// of mine. Duplicates in theirs are kept.
func SharedSubjects(mine, theirs []Subject) []string {
	names := make([]string, 0, len(mine))
	for _, s := range mine {
		if strings.TrimSpace(s.Name) != "" {
			names = append(names, normalizeSubject(s.Name))
		}
	}

	shared := make([]string, 0)
	for _, s := range theirs {
		if strings.TrimSpace(s.Name) == "" {
			continue
		}
		candidate := normalizeSubject(s.Name)
		for _, n := range names {
			if subjectsMatch(n, candidate) {
				shared = append(shared, s.Name)
				break
			}
		}
	}
	return shared
}

// subjectsMatch expects both names already normalized.
func subjectsMatch(a, b string) bool {
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// normalizeSubject only folds case. Stored names are trimmed on write.
func normalizeSubject(name string) string {
	return strings.ToLower(name)
}

// AvailabilityOverlap keeps mine's order and drops slots theirs does not have.
func AvailabilityOverlap(mine, theirs []TimeSlot) []TimeSlot {
	set := make(map[TimeSlot]struct{}, len(theirs))
	for _, slot := range theirs {
		set[slot] = struct{}{}
	}
	overlap := make([]TimeSlot, 0, len(mine))
	seen := make(map[TimeSlot]struct{}, len(mine))
	for _, slot := range mine {
		if _, ok := set[slot]; !ok {
			continue
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		overlap = append(overlap, slot)
	}
	return overlap
}

func sameCity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
