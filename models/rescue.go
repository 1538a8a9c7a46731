package models

import "time"

type RescueType string

const (
	RescueTypeResurrected  RescueType = "resurrected"
	RescueTypeLifelineUsed RescueType = "lifelineUsed"
)

// RescueStatus is the persisted projection of WindowState and Consumed.
type RescueStatus string

const (
	RescueStatusNotUsed RescueStatus = "notUsed"
	RescueStatusUsed    RescueStatus = "used"
	RescueStatusPassed  RescueStatus = "passed"
)

// WindowState is derived from the question pointer on every recompute.
type WindowState string

const (
	WindowPending WindowState = "pending" // window not reached yet
	WindowOpen    WindowState = "open"
	WindowPassed  WindowState = "passed"
)

type SupportAnswer struct {
	ContestantID  uint      `json:"contestant_id,omitempty"`
	Answer        string    `json:"answer"`
	QuestionOrder int       `json:"question_order"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// RescueDefinition is a planned rescue opportunity scoped to one match.
type RescueDefinition struct {
	ID                            uint         `json:"id" gorm:"primaryKey"`
	MatchID                       uint         `json:"match_id" gorm:"not null;index"`
	RescueType                    RescueType   `json:"rescue_type" gorm:"type:varchar(16);not null"`
	QuestionFrom                  int          `json:"question_from"`
	QuestionTo                    int          `json:"question_to"`
	RemainingContestantsThreshold int          `json:"remaining_contestants_threshold"`
	WindowState                   WindowState  `json:"window_state" gorm:"type:varchar(16);default:'pending'"`
	Consumed                      bool         `json:"consumed" gorm:"default:false"`
	Status                        RescueStatus `json:"status" gorm:"type:varchar(16);default:'notUsed'"`
	ConsumedAtQuestionOrder       *int         `json:"consumed_at_question_order,omitempty"`

	StudentIDs     []uint          `json:"student_ids" gorm:"serializer:json;type:text"`
	SupportAnswers []SupportAnswer `json:"support_answers" gorm:"serializer:json;type:text"`

	// Bumped on every write; lets callers detect stale reads.
	Version int `json:"version" gorm:"default:1"`

	Timestamps
}

// SyncStatus refreshes Status from WindowState and Consumed. Consumed always wins.
func (r *RescueDefinition) SyncStatus() {
	switch {
	case r.Consumed:
		r.Status = RescueStatusUsed
	case r.WindowState == WindowPassed:
		r.Status = RescueStatusPassed
	default:
		r.Status = RescueStatusNotUsed
	}
}
