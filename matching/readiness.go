package matching

import (
	"math"
	"strings"
)

// Readiness tells a user whether they can be matched yet and what to do if not.
type Readiness struct {
	Ready    bool   `json:"ready"`
	Reason   string `json:"reason,omitempty"`
	Guidance string `json:"guidance,omitempty"`
}

const (
	ReasonNoSubjects        = "no_subjects"
	ReasonIncompleteProfile = "incomplete_profile"
)

// CheckReadiness mirrors the preconditions of Rank. Missing subjects are
// reported first.
func CheckReadiness(profile *Profile, prefs *Preferences, subjectCount int) Readiness {
	switch {
	case subjectCount == 0:
		return Readiness{Reason: ReasonNoSubjects, Guidance: "Add subjects to match"}
	case profile == nil || prefs == nil:
		return Readiness{Reason: ReasonIncompleteProfile, Guidance: "Complete your profile"}
	}
	return Readiness{Ready: true}
}

// ProfileCompletion is the onboarding progress indicator.
type ProfileCompletion struct {
	Percent int      `json:"percent"`
	Message string   `json:"message"`
	Missing []string `json:"missing"`
}

const completionItems = 10

// Completion counts how many of the ten profile items are filled in.
func Completion(profile *Profile, prefs *Preferences, subjectCount int) ProfileCompletion {
	var p Profile
	if profile != nil {
		p = *profile
	}
	var pr Preferences
	if prefs != nil {
		pr = *prefs
	}

	items := []bool{
		filled(p.Name),
		filled(p.University),
		filled(p.City),
		filled(p.StudyProgram),
		p.Semester != nil,
		p.ContactLink != nil && filled(*p.ContactLink),
		pr.LearningStyle != "",
		len(pr.Availability) > 0,
		pr.PrefersOnline || pr.PrefersInPerson,
		subjectCount > 0,
	}
	done := 0
	for _, ok := range items {
		if ok {
			done++
		}
	}
	percent := int(math.Round(float64(done) / completionItems * 100))

	missing := make([]string, 0, 4)
	if !items[0] {
		missing = append(missing, "name")
	}
	if !items[5] {
		missing = append(missing, "contact link")
	}
	if !items[9] {
		missing = append(missing, "subjects")
	}
	if !items[7] {
		missing = append(missing, "availability")
	}

	return ProfileCompletion{Percent: percent, Message: completionMessage(percent), Missing: missing}
}

func completionMessage(percent int) string {
	switch {
	case percent == 100:
		return "Profile complete!"
	case percent >= 80:
		return "Almost there!"
	case percent >= 50:
		return "Making progress"
	default:
		return "Let's get started"
	}
}

func filled(s string) bool {
	return strings.TrimSpace(s) != ""
}
