package models

// ParticipationStatus is a contestant's live status within one match.
type ParticipationStatus string

const (
	StatusNotStarted ParticipationStatus = "not_started"
	StatusInProgress ParticipationStatus = "in_progress"
	StatusConfirmed1 ParticipationStatus = "confirmed1"
	StatusConfirmed2 ParticipationStatus = "confirmed2"
	StatusEliminated ParticipationStatus = "eliminated"
	StatusCompleted  ParticipationStatus = "completed"
	StatusBanned     ParticipationStatus = "banned"
	StatusRescued    ParticipationStatus = "rescued"
)

// CompetingStatuses are the statuses counted as "still competing" for rescue thresholds.
var CompetingStatuses = []ParticipationStatus{StatusInProgress, StatusRescued}

// Participation = one contestant inside one match
type Participation struct {
	ID                 uint                `json:"id" gorm:"primaryKey"`
	MatchID            uint                `json:"match_id" gorm:"not null;uniqueIndex:idx_participation_match_contestant"`
	ContestantID       uint                `json:"contestant_id" gorm:"not null;uniqueIndex:idx_participation_match_contestant"`
	Status             ParticipationStatus `json:"status" gorm:"type:varchar(16);not null;default:'not_started';index"`
	RegistrationNumber int                 `json:"registration_number"`
	GroupID            *uint               `json:"group_id,omitempty" gorm:"index"`

	// Question pointer at the first elimination. Never cleared, even after a rescue.
	EliminatedAtQuestionOrder *int `json:"eliminated_at_question_order,omitempty"`
	RescuedAtQuestionOrder    *int `json:"rescued_at_question_order,omitempty"`

	Timestamps
}
