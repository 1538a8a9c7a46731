package services

import (
	"context"

	"quiz-elimination-engine/models"

	"gorm.io/gorm"
)

// ResultLedger supplies per-contestant correct-answer counts for a match.
type ResultLedger interface {
	CorrectCounts(ctx context.Context, matchID uint, contestantIDs []uint) (map[uint]int, error)
}

// GormResultLedger aggregates the results table directly.
type GormResultLedger struct {
	DB *gorm.DB
}

func NewGormResultLedger(db *gorm.DB) *GormResultLedger {
	return &GormResultLedger{DB: db}
}

func (l *GormResultLedger) CorrectCounts(ctx context.Context, matchID uint, contestantIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(contestantIDs))
	if len(contestantIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ContestantID uint
		Correct      int
	}
	err := l.DB.WithContext(ctx).Model(&models.Result{}).
		Select("contestant_id, COUNT(*) AS correct").
		Where("match_id = ? AND is_correct = ? AND contestant_id IN ?", matchID, true, contestantIDs).
		Group("contestant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.ContestantID] = r.Correct
	}
	return counts, nil
}
