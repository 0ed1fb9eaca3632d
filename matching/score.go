package matching

import "math"

// Score weights.
const (
	SharedSubjectPoints = 30
	OverlapSlotPoints   = 10
	SameStyleBonus      = 20
	SameCityBonus       = 15
	ExamWindowDays      = 21
)

// ScoreInput carries what the calculator needs for one eligible pair.
type ScoreInput struct {
	SharedSubjects    int
	OverlapSlots      int
	RequesterStyle    LearningStyle
	CandidateStyle    LearningStyle
	RequesterCity     string
	CandidateCity     string
	RequesterSubjects []Subject
	CandidateSubjects []Subject
}

// Score adds up the weighted factors for a pair. The exam bonus is real-valued
// so the total is rounded once at the end.
func Score(in ScoreInput) int {
	total := float64(in.SharedSubjects*SharedSubjectPoints + in.OverlapSlots*OverlapSlotPoints)
	if in.RequesterStyle == in.CandidateStyle {
		total += SameStyleBonus
	}
	if sameCity(in.RequesterCity, in.CandidateCity) {
		total += SameCityBonus
	}
	total += ExamProximityBonus(in.RequesterSubjects, in.CandidateSubjects)
	return int(math.Round(total))
}

// ExamProximityBonus sums max(0, 21-d) over every pair of dated subjects, one
// from each side, whose exams are at most 21 days apart. All subjects count, not
// only the shared ones.
func ExamProximityBonus(mine, theirs []Subject) float64 {
	var bonus float64
	for _, a := range mine {
		if a.ExamDate == nil {
			continue
		}
		for _, b := range theirs {
			if b.ExamDate == nil {
				continue
			}
			days := math.Abs(a.ExamDate.Sub(*b.ExamDate).Hours() / 24)
			if days <= ExamWindowDays {
				bonus += math.Max(0, ExamWindowDays-days)
			}
		}
	}
	return bonus
}
