package services

import "quiz-elimination-engine/models"

// allowedTransitions is the adjacency table of the participation state machine.
// Self transitions are handled separately as no-ops.
var allowedTransitions = map[models.ParticipationStatus][]models.ParticipationStatus{
	models.StatusNotStarted: {models.StatusInProgress},
	models.StatusInProgress: {
		models.StatusConfirmed1, models.StatusConfirmed2,
		models.StatusEliminated, models.StatusCompleted, models.StatusBanned,
	},
	models.StatusConfirmed1: {
		models.StatusConfirmed2,
		models.StatusEliminated, models.StatusCompleted, models.StatusBanned,
	},
	models.StatusConfirmed2: {models.StatusEliminated, models.StatusCompleted, models.StatusBanned},
	models.StatusEliminated: {models.StatusRescued},
	models.StatusRescued:    {models.StatusInProgress},
	// operator correction
	models.StatusCompleted: {models.StatusEliminated},
	models.StatusBanned:    nil,
}

// ValidStatus reports whether s is one of the known participation statuses.
func ValidStatus(s models.ParticipationStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether from → to is permitted. Self transitions are always permitted.
func CanTransition(from, to models.ParticipationStatus) bool {
	if !ValidStatus(from) || !ValidStatus(to) {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves rec to target at the given question pointer. It reports whether the
// record changed; a self transition is a successful no-op.
func Transition(rec *models.Participation, target models.ParticipationStatus, questionOrder int) (bool, error) {
	if !ValidStatus(target) {
		return false, validationError("unknown status %q", target)
	}
	if !CanTransition(rec.Status, target) {
		return false, invalidTransition("contestant %d cannot move from %s to %s", rec.ContestantID, rec.Status, target)
	}
	if rec.Status == target {
		return false, nil
	}

	rec.Status = target
	switch target {
	case models.StatusEliminated:
		if rec.EliminatedAtQuestionOrder == nil {
			order := questionOrder
			rec.EliminatedAtQuestionOrder = &order
		}
	case models.StatusRescued:
		order := questionOrder
		rec.RescuedAtQuestionOrder = &order
	}
	return true, nil
}
