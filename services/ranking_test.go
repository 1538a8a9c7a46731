package services

import (
	"encoding/json"
	"testing"

	"quiz-elimination-engine/models"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fiveEliminated: correct [3,3,2,1,0], eliminated at [10,8,9,7,6].
func fiveEliminated() ([]models.Participation, map[uint]int) {
	elim := []int{10, 8, 9, 7, 6}
	correct := []int{3, 3, 2, 1, 0}
	records := make([]models.Participation, 0, 5)
	counts := make(map[uint]int, 5)
	for i := 0; i < 5; i++ {
		id := uint(i + 1)
		at := elim[i]
		records = append(records, models.Participation{
			ContestantID:              id,
			RegistrationNumber:        i + 1,
			Status:                    models.StatusEliminated,
			EliminatedAtQuestionOrder: &at,
		})
		counts[id] = correct[i]
	}
	return records, counts
}

func contestantIDs(cs []RescueCandidate) []uint {
	out := make([]uint, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ContestantID)
	}
	return out
}

func TestRankCandidates_Order(t *testing.T) {
	records, counts := fiveEliminated()

	got, meta := RankCandidates(records, counts, nil, nil)

	assert.Equal(t, []uint{1, 2, 3, 4, 5}, contestantIDs(got))
	for i, c := range got {
		assert.Equal(t, i+1, c.Rank)
		assert.False(t, c.IsPriority)
	}
	assert.Nil(t, meta.Limit)
	assert.Equal(t, 5, meta.Returned)
	assert.Equal(t, 5, meta.TotalEligible)
	assert.False(t, meta.PriorityIncluded)
}

func TestRankCandidates_LaterEliminationBreaksTie(t *testing.T) {
	records, counts := fiveEliminated()
	// contestant 2 now eliminated after contestant 1
	later := 11
	records[1].EliminatedAtQuestionOrder = &later

	got, _ := RankCandidates(records, counts, nil, nil)
	assert.Equal(t, []uint{2, 1, 3, 4, 5}, contestantIDs(got))
}

func TestRankCandidates_RegistrationBreaksFullTie(t *testing.T) {
	at := 4
	records := []models.Participation{
		{ContestantID: 30, RegistrationNumber: 9, Status: models.StatusEliminated, EliminatedAtQuestionOrder: &at},
		{ContestantID: 10, RegistrationNumber: 2, Status: models.StatusEliminated, EliminatedAtQuestionOrder: &at},
		{ContestantID: 20, RegistrationNumber: 2, Status: models.StatusEliminated, EliminatedAtQuestionOrder: &at},
	}
	got, _ := RankCandidates(records, map[uint]int{}, nil, nil)
	assert.Equal(t, []uint{10, 20, 30}, contestantIDs(got))
}

func TestRankCandidates_SkipsNonEliminated(t *testing.T) {
	records, counts := fiveEliminated()
	records[0].Status = models.StatusRescued
	records[2].Status = models.StatusCompleted

	got, meta := RankCandidates(records, counts, nil, nil)
	assert.Equal(t, []uint{2, 4, 5}, contestantIDs(got))
	assert.Equal(t, 3, meta.TotalEligible)
}

func TestRankCandidates_MissingEliminationOrderSortsLast(t *testing.T) {
	records, counts := fiveEliminated()
	records[0].EliminatedAtQuestionOrder = nil

	got, _ := RankCandidates(records, counts, nil, nil)
	assert.Equal(t, []uint{2, 1, 3, 4, 5}, contestantIDs(got))
	assert.Equal(t, -1, got[1].EliminatedAtQuestionOrder)
}

func TestRankCandidates_PrioritySurvivesLimit(t *testing.T) {
	records, counts := fiveEliminated()

	got, meta := RankCandidates(records, counts, uintPtr(5), intPtr(3))

	assert.Equal(t, []uint{5, 1, 2}, contestantIDs(got))
	assert.True(t, got[0].IsPriority)
	assert.Equal(t, 1, got[0].Rank)
	assert.True(t, meta.PriorityIncluded)
	require.NotNil(t, meta.Limit)
	assert.Equal(t, 3, *meta.Limit)
	assert.Equal(t, 3, meta.Returned)
	assert.Equal(t, 5, meta.TotalEligible)
}

func TestRankCandidates_PriorityAtLimitBoundary(t *testing.T) {
	records, counts := fiveEliminated()

	got, meta := RankCandidates(records, counts, uintPtr(3), intPtr(3))

	assert.Equal(t, []uint{3, 1, 2}, contestantIDs(got))
	assert.True(t, meta.PriorityIncluded)
}

func TestRankCandidates_PriorityNotEliminated(t *testing.T) {
	records, counts := fiveEliminated()
	records[4].Status = models.StatusInProgress

	got, meta := RankCandidates(records, counts, uintPtr(5), intPtr(2))

	assert.Equal(t, []uint{1, 2}, contestantIDs(got))
	assert.False(t, meta.PriorityIncluded)
}

func TestRankCandidates_LimitLargerThanPool(t *testing.T) {
	records, counts := fiveEliminated()
	got, meta := RankCandidates(records, counts, nil, intPtr(50))
	assert.Len(t, got, 5)
	assert.Equal(t, 50, *meta.Limit)
}

func TestRankCandidates_Pure(t *testing.T) {
	records, counts := fiveEliminated()
	before, err := json.Marshal(records)
	require.NoError(t, err)

	first, _ := RankCandidates(records, counts, uintPtr(4), intPtr(2))
	second, _ := RankCandidates(records, counts, uintPtr(4), intPtr(2))

	after, err := json.Marshal(records)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Equal(t, first, second)
	assert.Equal(t, map[uint]int{1: 3, 2: 3, 3: 2, 4: 1, 5: 0}, counts)
}

func TestRankCandidates_Golden(t *testing.T) {
	records, counts := fiveEliminated()
	candidates, meta := RankCandidates(records, counts, uintPtr(5), intPtr(3))

	out, err := json.MarshalIndent(RankResult{MatchID: 7, Candidates: candidates, Meta: meta}, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "rank_priority_limit", out)
}
