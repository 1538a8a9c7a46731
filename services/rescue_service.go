package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"quiz-elimination-engine/models"

	"gorm.io/gorm"
)

// RescueView is a rescue definition plus the advisory flags computed at a question pointer.
type RescueView struct {
	models.RescueDefinition
	IsTriggerable        bool  `json:"is_triggerable"`
	RemainingContestants int64 `json:"remaining_contestants"`
}

// RescueInvocation is the outcome of consuming a rescue.
type RescueInvocation struct {
	Rescue RescueView    `json:"rescue"`
	Batch  *BatchSummary `json:"batch,omitempty"`
}

type RescueService struct {
	*MatchScope
	Ledger         ResultLedger
	Notifier       Notifier
	Participations *ParticipationService
}

func NewRescueService(scope *MatchScope, ledger ResultLedger, notifier Notifier, participations *ParticipationService) *RescueService {
	if ledger == nil {
		ledger = NewGormResultLedger(scope.DB)
	}
	return &RescueService{
		MatchScope:     scope,
		Ledger:         ledger,
		Notifier:       notifier,
		Participations: participations,
	}
}

// RecomputeRescueWindows re-derives every unused rescue of the match against
// currentOrder. All definitions are written in one transaction or none are.
func (s *RescueService) RecomputeRescueWindows(ctx context.Context, matchID uint, currentOrder int) ([]RescueView, error) {
	if currentOrder < 0 {
		return nil, validationError("current question order must not be negative")
	}

	var views []RescueView
	var changed int
	err := s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		var err error
		views, changed, err = recomputeTx(tx, match.ID, currentOrder)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.windowsChanged(matchID, currentOrder, views, changed)
	return views, nil
}

func (s *RescueService) windowsChanged(matchID uint, order int, views []RescueView, changed int) {
	if changed == 0 {
		return
	}
	log.Printf("[Engine] match %d: %d rescue windows changed at question %d", matchID, changed, order)
	publish(s.Notifier, Event{Type: EventRescueWindows, MatchID: matchID, QuestionOrder: order, Payload: views})
}

func recomputeTx(tx *gorm.DB, matchID uint, currentOrder int) ([]RescueView, int, error) {
	var defs []models.RescueDefinition
	if err := tx.Where("match_id = ?", matchID).Order("question_from ASC, id ASC").Find(&defs).Error; err != nil {
		return nil, 0, internalError("load rescues", err)
	}
	competing, err := countCompeting(tx, matchID)
	if err != nil {
		return nil, 0, internalError("count competing contestants", err)
	}

	changed := 0
	views := make([]RescueView, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		if err := validateWindow(*def); err != nil {
			return nil, 0, err
		}
		if ApplyWindow(def, currentOrder) {
			def.Version++
			if err := tx.Save(def).Error; err != nil {
				return nil, 0, internalError("save rescue", err)
			}
			changed++
		}
		views = append(views, RescueView{
			RescueDefinition:     *def,
			IsTriggerable:        IsTriggerable(*def, currentOrder, competing),
			RemainingContestants: competing,
		})
	}
	return views, changed, nil
}

// AdvanceQuestion moves the match pointer forward and recomputes rescue windows in the
// same scope. The pointer never moves backwards.
func (s *RescueService) AdvanceQuestion(ctx context.Context, matchID uint, order int) (*models.Match, []RescueView, error) {
	var out models.Match
	var views []RescueView
	err := s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		if order < match.CurrentQuestionOrder {
			return validationError("question pointer cannot move back from %d to %d", match.CurrentQuestionOrder, order)
		}
		if match.TotalQuestions > 0 && order > match.TotalQuestions {
			return validationError("match %d has only %d questions", match.ID, match.TotalQuestions)
		}

		updates := map[string]interface{}{"current_question_order": order}
		if match.Status == models.MatchStatusPending && order > 0 {
			updates["status"] = models.MatchStatusInProgress
		}
		if err := tx.Model(match).Updates(updates).Error; err != nil {
			return internalError("advance question pointer", err)
		}
		match.CurrentQuestionOrder = order
		if status, ok := updates["status"].(string); ok {
			match.Status = status
		}

		var err error
		views, _, err = recomputeTx(tx, match.ID, order)
		out = *match
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[Engine] match %d: question pointer at %d", matchID, order)
	publish(s.Notifier, Event{Type: EventQuestionAdvanced, MatchID: matchID, QuestionOrder: order, Payload: views})
	return &out, views, nil
}

// ListRescues evaluates the match's rescues at its current pointer without writing.
func (s *RescueService) ListRescues(ctx context.Context, matchID uint) ([]RescueView, error) {
	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	var defs []models.RescueDefinition
	if err := s.DB.WithContext(ctx).Where("match_id = ?", matchID).Order("question_from ASC, id ASC").Find(&defs).Error; err != nil {
		return nil, internalError("load rescues", err)
	}
	competing, err := s.CompetingCount(ctx, matchID)
	if err != nil {
		return nil, err
	}

	views := make([]RescueView, 0, len(defs))
	for _, def := range defs {
		ApplyWindow(&def, match.CurrentQuestionOrder)
		views = append(views, RescueView{
			RescueDefinition:     def,
			IsTriggerable:        IsTriggerable(def, match.CurrentQuestionOrder, competing),
			RemainingContestants: competing,
		})
	}
	return views, nil
}

// RankRescueCandidates ranks the match's eliminated contestants. A nil limit returns all.
func (s *RescueService) RankRescueCandidates(ctx context.Context, matchID uint, limit *int) (*RankResult, error) {
	if limit != nil && *limit <= 0 {
		return nil, validationError("limit must be positive")
	}
	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var records []models.Participation
	if err := s.DB.WithContext(ctx).
		Where("match_id = ? AND status = ?", matchID, models.StatusEliminated).
		Find(&records).Error; err != nil {
		return nil, internalError("load eliminated contestants", err)
	}

	ids := make([]uint, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ContestantID)
	}
	counts, err := s.Ledger.CorrectCounts(ctx, matchID, ids)
	if err != nil {
		return nil, internalError("query result ledger", err)
	}

	candidates, meta := RankCandidates(records, counts, match.PriorityContestantID, limit)
	return &RankResult{MatchID: matchID, Candidates: candidates, Meta: meta}, nil
}

func loadRescue(tx *gorm.DB, matchID, rescueID uint) (*models.RescueDefinition, error) {
	if rescueID == 0 {
		return nil, validationError("rescue id must be positive")
	}
	var def models.RescueDefinition
	if err := tx.Where("id = ? AND match_id = ?", rescueID, matchID).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("rescue %d not found in match %d", rescueID, matchID)
		}
		return nil, internalError("load rescue", err)
	}
	return &def, nil
}

// InvokeRescue consumes a triggerable rescue. Consumption is a compare-and-set on the
// consumed flag, so of two operators racing on one rescue exactly one wins. For a
// resurrected rescue the listed contestants are moved to rescued in the same transaction.
func (s *RescueService) InvokeRescue(ctx context.Context, matchID, rescueID uint, contestantIDs []uint) (*RescueInvocation, error) {
	var ids []uint
	if len(contestantIDs) > 0 {
		var err error
		if ids, err = s.Participations.validateIDs(contestantIDs); err != nil {
			return nil, err
		}
	}

	var inv RescueInvocation
	var order int
	err := s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		order = match.CurrentQuestionOrder
		def, err := loadRescue(tx, match.ID, rescueID)
		if err != nil {
			return err
		}
		if err := validateWindow(*def); err != nil {
			return err
		}
		if def.Consumed {
			return conflict("rescue %d was already used", def.ID)
		}
		competing, err := countCompeting(tx, match.ID)
		if err != nil {
			return internalError("count competing contestants", err)
		}
		if !IsTriggerable(*def, order, competing) {
			return invalidTransition("rescue %d is not triggerable at question %d with %d contestants competing", def.ID, order, competing)
		}
		switch {
		case def.RescueType == models.RescueTypeResurrected && len(ids) == 0:
			return validationError("a resurrected rescue needs contestant_ids")
		case def.RescueType == models.RescueTypeLifelineUsed && len(ids) > 0:
			return validationError("a lifeline rescue does not take contestant_ids")
		}

		res := tx.Model(&models.RescueDefinition{}).
			Where("id = ? AND consumed = ?", def.ID, false).
			Updates(map[string]interface{}{
				"consumed": true,
				"status":   models.RescueStatusUsed,
				"version":  gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return internalError("consume rescue", res.Error)
		}
		if res.RowsAffected == 0 {
			return conflict("rescue %d was used concurrently", def.ID)
		}

		ApplyWindow(def, order)
		def.Consumed = true
		def.SyncStatus()
		def.ConsumedAtQuestionOrder = &order
		def.Version++

		if def.RescueType == models.RescueTypeResurrected {
			summary, err := s.Participations.applyBatchTx(tx, match, contestantIDs, ids, models.StatusRescued)
			if err != nil {
				return err
			}
			if summary.UpdatedCount == 0 {
				return invalidTransition("none of the contestants could be rescued (not found %v, rejected %v)", summary.NotFoundIDs, summary.RejectedIDs)
			}
			def.StudentIDs = append([]uint{}, summary.UpdatedIDs...)
			inv.Batch = summary
		}

		if err := tx.Save(def).Error; err != nil {
			return internalError("save rescue", err)
		}
		competing, err = countCompeting(tx, match.ID)
		if err != nil {
			return internalError("count competing contestants", err)
		}
		inv.Rescue = RescueView{RescueDefinition: *def, RemainingContestants: competing}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Engine] match %d: rescue %d (%s) used at question %d", matchID, rescueID, inv.Rescue.RescueType, order)
	publish(s.Notifier, Event{
		Type:          EventRescueUsed,
		MatchID:       matchID,
		RescueID:      rescueID,
		ContestantIDs: inv.Rescue.StudentIDs,
		QuestionOrder: order,
	})
	if inv.Batch != nil && inv.Batch.UpdatedCount > 0 {
		publish(s.Notifier, Event{
			Type:          EventParticipationUpdated,
			MatchID:       matchID,
			ContestantIDs: inv.Batch.UpdatedIDs,
			Status:        string(models.StatusRescued),
			QuestionOrder: order,
		})
	}
	return &inv, nil
}

// SetRescueTargets replaces the persisted snapshot of selected rescue targets.
func (s *RescueService) SetRescueTargets(ctx context.Context, matchID, rescueID uint, contestantIDs []uint) (*models.RescueDefinition, error) {
	ids, err := s.Participations.validateIDs(contestantIDs)
	if err != nil {
		return nil, err
	}

	var def *models.RescueDefinition
	err = s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		var err error
		if def, err = loadRescue(tx, match.ID, rescueID); err != nil {
			return err
		}
		if def.Consumed {
			return invalidTransition("rescue %d was already used", def.ID)
		}
		def.StudentIDs = ids
		def.Version++
		if err := tx.Save(def).Error; err != nil {
			return internalError("save rescue targets", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return def, nil
}

// SubmitSupportAnswer appends one support answer to an open, unused lifeline rescue.
func (s *RescueService) SubmitSupportAnswer(ctx context.Context, matchID, rescueID, contestantID uint, answer string) (*models.RescueDefinition, error) {
	if contestantID == 0 {
		return nil, validationError("contestant id must be positive")
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, validationError("answer is required")
	}

	var def *models.RescueDefinition
	var order int
	err := s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		order = match.CurrentQuestionOrder
		var err error
		if def, err = loadRescue(tx, match.ID, rescueID); err != nil {
			return err
		}
		if def.RescueType != models.RescueTypeLifelineUsed {
			return validationError("rescue %d does not take support answers", def.ID)
		}
		if def.Consumed {
			return invalidTransition("rescue %d was already used", def.ID)
		}
		if EvaluateWindow(*def, order) != models.WindowOpen {
			return invalidTransition("rescue %d is outside its window at question %d", def.ID, order)
		}
		var participants int64
		if err := tx.Model(&models.Participation{}).
			Where("match_id = ? AND contestant_id = ?", match.ID, contestantID).
			Count(&participants).Error; err != nil {
			return internalError("load participation", err)
		}
		if participants == 0 {
			return notFound("contestant %d is not part of match %d", contestantID, match.ID)
		}

		def.SupportAnswers = append(def.SupportAnswers, models.SupportAnswer{
			ContestantID:  contestantID,
			Answer:        answer,
			QuestionOrder: order,
			SubmittedAt:   time.Now().UTC(),
		})
		def.Version++
		if err := tx.Save(def).Error; err != nil {
			return internalError("save support answer", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.Notifier, Event{Type: EventSupportAnswer, MatchID: matchID, RescueID: rescueID, QuestionOrder: order})
	return def, nil
}

// SweepInProgressMatches recomputes rescue windows for every running match. Each match is
// recomputed at the pointer read under its lock. Failures are logged per match and do not
// stop the sweep.
func (s *RescueService) SweepInProgressMatches(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.DB.WithContext(ctx).Model(&models.Match{}).
		Where("status = ?", models.MatchStatusInProgress).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return 0, internalError("load running matches", err)
	}

	swept := 0
	for _, id := range ids {
		ok, err := s.recomputeAtCurrent(ctx, id)
		if err != nil {
			log.Printf("[Scheduler] rescue sweep failed for match %d: %v", id, err)
			continue
		}
		if ok {
			swept++
		}
	}
	return swept, nil
}

// recomputeAtCurrent reports false when the match left in_progress after it was listed.
func (s *RescueService) recomputeAtCurrent(ctx context.Context, matchID uint) (bool, error) {
	var views []RescueView
	var changed, order int
	running := false
	err := s.withMatch(ctx, matchID, func(tx *gorm.DB, match *models.Match) error {
		if match.Status != models.MatchStatusInProgress {
			return nil
		}
		running = true
		order = match.CurrentQuestionOrder
		var err error
		views, changed, err = recomputeTx(tx, match.ID, order)
		return err
	})
	if err != nil {
		return false, err
	}
	s.windowsChanged(matchID, order, views, changed)
	return running, nil
}
