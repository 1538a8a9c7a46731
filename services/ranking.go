package services

import (
	"sort"

	"quiz-elimination-engine/models"
)

// RescueCandidate is one ranked eliminated contestant. Rank starts at 1.
type RescueCandidate struct {
	Rank                      int   `json:"rank"`
	ContestantID              uint  `json:"contestant_id"`
	RegistrationNumber        int   `json:"registration_number"`
	GroupID                   *uint `json:"group_id,omitempty"`
	CorrectAnswers            int   `json:"correct_answers"`
	EliminatedAtQuestionOrder int   `json:"eliminated_at_question_order"`
	IsPriority                bool  `json:"is_priority"`
}

type RankingMeta struct {
	Limit            *int `json:"limit"`
	Returned         int  `json:"returned"`
	TotalEligible    int  `json:"total_eligible"`
	PriorityIncluded bool `json:"priority_included"`
}

type RankResult struct {
	MatchID    uint              `json:"match_id"`
	Candidates []RescueCandidate `json:"candidates"`
	Meta       RankingMeta       `json:"meta"`
}

// RankCandidates orders eliminated contestants for rescue: most correct answers first,
// then latest elimination, then registration number and contestant id. The priority
// contestant, when eliminated, is moved to the top and survives the limit. Inputs are not
// modified.
func RankCandidates(records []models.Participation, correct map[uint]int, priorityID *uint, limit *int) ([]RescueCandidate, RankingMeta) {
	candidates := make([]RescueCandidate, 0, len(records))
	for _, r := range records {
		if r.Status != models.StatusEliminated {
			continue
		}
		eliminatedAt := -1
		if r.EliminatedAtQuestionOrder != nil {
			eliminatedAt = *r.EliminatedAtQuestionOrder
		}
		candidates = append(candidates, RescueCandidate{
			ContestantID:              r.ContestantID,
			RegistrationNumber:        r.RegistrationNumber,
			GroupID:                   r.GroupID,
			CorrectAnswers:            correct[r.ContestantID],
			EliminatedAtQuestionOrder: eliminatedAt,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CorrectAnswers != b.CorrectAnswers {
			return a.CorrectAnswers > b.CorrectAnswers
		}
		if a.EliminatedAtQuestionOrder != b.EliminatedAtQuestionOrder {
			return a.EliminatedAtQuestionOrder > b.EliminatedAtQuestionOrder
		}
		if a.RegistrationNumber != b.RegistrationNumber {
			return a.RegistrationNumber < b.RegistrationNumber
		}
		return a.ContestantID < b.ContestantID
	})

	if priorityID != nil {
		for i := range candidates {
			if candidates[i].ContestantID != *priorityID {
				continue
			}
			p := candidates[i]
			p.IsPriority = true
			copy(candidates[1:i+1], candidates[:i])
			candidates[0] = p
			break
		}
	}

	meta := RankingMeta{TotalEligible: len(candidates)}
	if limit != nil {
		l := *limit
		meta.Limit = &l
		if l < len(candidates) {
			candidates = candidates[:l]
		}
	}

	for i := range candidates {
		candidates[i].Rank = i + 1
		if candidates[i].IsPriority {
			meta.PriorityIncluded = true
		}
	}
	meta.Returned = len(candidates)
	return candidates, meta
}
