package services

import "quiz-elimination-engine/models"

// EvaluateWindow places currentOrder relative to the rescue's inclusive question window.
func EvaluateWindow(def models.RescueDefinition, currentOrder int) models.WindowState {
	switch {
	case def.QuestionTo < currentOrder:
		return models.WindowPassed
	case def.QuestionFrom > currentOrder:
		return models.WindowPending
	default:
		return models.WindowOpen
	}
}

// ApplyWindow recomputes the derived window state of an unconsumed rescue and reports
// whether anything changed. Consumed rescues are never touched.
func ApplyWindow(def *models.RescueDefinition, currentOrder int) bool {
	if def.Consumed {
		return false
	}
	prevWindow, prevStatus := def.WindowState, def.Status
	def.WindowState = EvaluateWindow(*def, currentOrder)
	def.SyncStatus()
	return def.WindowState != prevWindow || def.Status != prevStatus
}

// IsTriggerable is advisory output for the operator UI: the window is open, the rescue is
// unused and few enough contestants are still competing.
func IsTriggerable(def models.RescueDefinition, currentOrder int, competing int64) bool {
	return !def.Consumed &&
		EvaluateWindow(def, currentOrder) == models.WindowOpen &&
		competing <= int64(def.RemainingContestantsThreshold)
}

func validateWindow(def models.RescueDefinition) error {
	if def.QuestionFrom > def.QuestionTo {
		return validationError("rescue %d has question_from %d after question_to %d", def.ID, def.QuestionFrom, def.QuestionTo)
	}
	switch def.RescueType {
	case models.RescueTypeResurrected, models.RescueTypeLifelineUsed:
	default:
		return validationError("rescue %d has unknown type %q", def.ID, def.RescueType)
	}
	return nil
}
