package services

import (
	"context"
	"errors"
	"log"

	"quiz-elimination-engine/models"

	"gorm.io/gorm"
)

const DefaultMaxBatchSize = 500

type BatchOutcome string

const (
	OutcomeSucceeded BatchOutcome = "succeeded"
	OutcomePartial   BatchOutcome = "partial"
	OutcomeFailed    BatchOutcome = "failed"
)

// BatchSummary accounts for every id of a batch transition. Ids already in the target
// status land in UnchangedIDs and count as successes.
type BatchSummary struct {
	MatchID       uint                       `json:"match_id"`
	TargetStatus  models.ParticipationStatus `json:"target_status"`
	Outcome       BatchOutcome               `json:"outcome"`
	RequestedIDs  []uint                     `json:"requested_ids"`
	UpdatedIDs    []uint                     `json:"updated_ids"`
	UnchangedIDs  []uint                     `json:"unchanged_ids"`
	NotFoundIDs   []uint                     `json:"not_found_ids"`
	RejectedIDs   []uint                     `json:"rejected_ids"`
	UpdatedCount  int                        `json:"updated_count"`
	NotFoundCount int                        `json:"not_found_count"`
	RejectedCount int                        `json:"rejected_count"`
}

func newBatchSummary(matchID uint, target models.ParticipationStatus, requested []uint) *BatchSummary {
	return &BatchSummary{
		MatchID:      matchID,
		TargetStatus: target,
		RequestedIDs: append([]uint{}, requested...),
		UpdatedIDs:   []uint{},
		UnchangedIDs: []uint{},
		NotFoundIDs:  []uint{},
		RejectedIDs:  []uint{},
	}
}

func (b *BatchSummary) finalize() {
	b.UpdatedCount = len(b.UpdatedIDs)
	b.NotFoundCount = len(b.NotFoundIDs)
	b.RejectedCount = len(b.RejectedIDs)

	failures := b.NotFoundCount + b.RejectedCount
	switch {
	case failures == 0:
		b.Outcome = OutcomeSucceeded
	case b.UpdatedCount+len(b.UnchangedIDs) > 0:
		b.Outcome = OutcomePartial
	default:
		b.Outcome = OutcomeFailed
	}
}

var batchTargets = map[models.ParticipationStatus]bool{
	models.StatusCompleted:  true,
	models.StatusEliminated: true,
	models.StatusRescued:    true,
}

// ParticipationService owns every write to participation records.
type ParticipationService struct {
	*MatchScope
	Notifier     Notifier
	MaxBatchSize int
}

func NewParticipationService(scope *MatchScope, notifier Notifier, maxBatchSize int) *ParticipationService {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &ParticipationService{MatchScope: scope, Notifier: notifier, MaxBatchSize: maxBatchSize}
}

// TransitionContestant applies one state-machine transition at the match's current pointer.
func (s *ParticipationService) TransitionContestant(ctx context.Context, matchID, contestantID uint, target models.ParticipationStatus) (*models.Participation, error) {
	if contestantID == 0 {
		return nil, validationError("contestant id must be positive")
	}
	if !ValidStatus(target) {
		return nil, validationError("unknown status %q", target)
	}

	var rec models.Participation
	var changed bool
	var order int
	err := s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		if err := tx.Where("match_id = ? AND contestant_id = ?", match.ID, contestantID).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("contestant %d is not part of match %d", contestantID, match.ID)
			}
			return internalError("load participation", err)
		}

		order = match.CurrentQuestionOrder
		var err error
		changed, err = Transition(&rec, target, order)
		if err != nil || !changed {
			return err
		}
		if err := tx.Save(&rec).Error; err != nil {
			return internalError("save participation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		log.Printf("[Engine] match %d: contestant %d → %s at question %d", matchID, contestantID, target, order)
		publish(s.Notifier, Event{
			Type:          EventParticipationUpdated,
			MatchID:       matchID,
			ContestantIDs: []uint{contestantID},
			Status:        string(target),
			QuestionOrder: order,
		})
	}
	return &rec, nil
}

// ApplyBatch transitions every listed contestant to target. Per-record failures are
// reported in the summary and never abort the batch; a missing match does.
func (s *ParticipationService) ApplyBatch(ctx context.Context, matchID uint, contestantIDs []uint, target models.ParticipationStatus) (*BatchSummary, error) {
	if !batchTargets[target] {
		return nil, validationError("batch target must be completed, eliminated or rescued, got %q", target)
	}
	ids, err := s.validateIDs(contestantIDs)
	if err != nil {
		return nil, err
	}

	var summary *BatchSummary
	var order int
	err = s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		order = match.CurrentQuestionOrder
		var err error
		summary, err = s.applyBatchTx(tx, match, contestantIDs, ids, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Engine] match %d: batch → %s: %s (updated=%d not_found=%d rejected=%d)",
		matchID, target, summary.Outcome, summary.UpdatedCount, summary.NotFoundCount, summary.RejectedCount)
	if summary.UpdatedCount > 0 {
		publish(s.Notifier, Event{
			Type:          EventParticipationUpdated,
			MatchID:       matchID,
			ContestantIDs: summary.UpdatedIDs,
			Status:        string(target),
			QuestionOrder: order,
		})
	}
	return summary, nil
}

// applyBatchTx runs inside an open match scope. ids is requested after validateIDs.
// Storage failures abort; transition failures are collected.
func (s *ParticipationService) applyBatchTx(tx *gorm.DB, match *models.Match, requested, ids []uint, target models.ParticipationStatus) (*BatchSummary, error) {
	summary := newBatchSummary(match.ID, target, requested)

	var records []models.Participation
	if err := tx.Where("match_id = ? AND contestant_id IN ?", match.ID, ids).Find(&records).Error; err != nil {
		return nil, internalError("load participations", err)
	}
	byContestant := make(map[uint]*models.Participation, len(records))
	for i := range records {
		byContestant[records[i].ContestantID] = &records[i]
	}

	for _, id := range ids {
		rec, ok := byContestant[id]
		if !ok {
			summary.NotFoundIDs = append(summary.NotFoundIDs, id)
			continue
		}
		changed, err := Transition(rec, target, match.CurrentQuestionOrder)
		if err != nil {
			log.Printf("[Engine] match %d: rejected contestant %d: %v", match.ID, id, err)
			summary.RejectedIDs = append(summary.RejectedIDs, id)
			continue
		}
		if !changed {
			summary.UnchangedIDs = append(summary.UnchangedIDs, id)
			continue
		}
		if err := tx.Save(rec).Error; err != nil {
			return nil, internalError("save participation", err)
		}
		summary.UpdatedIDs = append(summary.UpdatedIDs, id)
	}

	summary.finalize()
	return summary, nil
}

// validateIDs rejects empty, oversized or non-positive id lists and returns the ids
// de-duplicated in request order.
func (s *ParticipationService) validateIDs(ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, validationError("contestant_ids must not be empty")
	}
	if len(ids) > s.MaxBatchSize {
		return nil, validationError("at most %d contestant ids per batch, got %d", s.MaxBatchSize, len(ids))
	}
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			return nil, validationError("contestant ids must be positive")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// UpdateAllCompletedToEliminated moves every completed contestant of the match back to
// eliminated, resetting the round between rescue rounds.
func (s *ParticipationService) UpdateAllCompletedToEliminated(ctx context.Context, matchID uint) (*BatchSummary, error) {
	var summary *BatchSummary
	var order int
	err := s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		order = match.CurrentQuestionOrder

		var ids []uint
		if err := tx.Model(&models.Participation{}).
			Where("match_id = ? AND status = ?", match.ID, models.StatusCompleted).
			Order("registration_number ASC, contestant_id ASC").
			Pluck("contestant_id", &ids).Error; err != nil {
			return internalError("load completed contestants", err)
		}
		summary = newBatchSummary(match.ID, models.StatusEliminated, ids)
		if len(ids) == 0 {
			summary.finalize()
			return nil
		}

		// First elimination marker is kept for contestants eliminated before.
		if err := tx.Model(&models.Participation{}).
			Where("match_id = ? AND status = ? AND eliminated_at_question_order IS NULL", match.ID, models.StatusCompleted).
			Update("eliminated_at_question_order", order).Error; err != nil {
			return internalError("mark elimination order", err)
		}
		if err := tx.Model(&models.Participation{}).
			Where("match_id = ? AND status = ?", match.ID, models.StatusCompleted).
			Update("status", models.StatusEliminated).Error; err != nil {
			return internalError("eliminate completed contestants", err)
		}

		summary.UpdatedIDs = append(summary.UpdatedIDs, ids...)
		summary.finalize()
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Engine] match %d: %d completed contestants reset to eliminated", matchID, summary.UpdatedCount)
	if summary.UpdatedCount > 0 {
		publish(s.Notifier, Event{
			Type:          EventParticipationUpdated,
			MatchID:       matchID,
			ContestantIDs: summary.UpdatedIDs,
			Status:        string(models.StatusEliminated),
			QuestionOrder: order,
		})
	}
	return summary, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type EliminatedFilter struct {
	GroupID   *uint
	FromOrder *int
	ToOrder   *int
	Page      int
	PageSize  int
}

type EliminatedPage struct {
	Items    []models.Participation `json:"items"`
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// ListEliminated pages through eliminated contestants, latest elimination first.
func (s *ParticipationService) ListEliminated(ctx context.Context, matchID uint, f EliminatedFilter) (*EliminatedPage, error) {
	if _, err := s.loadMatch(ctx, matchID); err != nil {
		return nil, err
	}
	if f.Page < 0 || f.PageSize < 0 {
		return nil, validationError("page and page_size must not be negative")
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}

	q := s.DB.WithContext(ctx).Model(&models.Participation{}).
		Where("match_id = ? AND status = ?", matchID, models.StatusEliminated)
	if f.GroupID != nil {
		q = q.Where("group_id = ?", *f.GroupID)
	}
	if f.FromOrder != nil {
		q = q.Where("eliminated_at_question_order >= ?", *f.FromOrder)
	}
	if f.ToOrder != nil {
		q = q.Where("eliminated_at_question_order <= ?", *f.ToOrder)
	}

	page := &EliminatedPage{Items: []models.Participation{}, Page: f.Page, PageSize: f.PageSize}
	if err := q.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return nil, internalError("count eliminated", err)
	}
	if err := q.Session(&gorm.Session{}).Order("eliminated_at_question_order DESC, registration_number ASC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&page.Items).Error; err != nil {
		return nil, internalError("list eliminated", err)
	}
	return page, nil
}
