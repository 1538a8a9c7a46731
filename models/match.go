package models

const (
	MatchStatusPending    = "pending"
	MatchStatusInProgress = "in_progress"
	MatchStatusFinished   = "finished"
)

// Match is one timed round of live competition. Owned by the match setup flow;
// the engine only moves CurrentQuestionOrder forward.
type Match struct {
	ID                   uint   `json:"id" gorm:"primaryKey"`
	Slug                 string `json:"slug" gorm:"uniqueIndex;not null"`
	Name                 string `json:"name" gorm:"not null"`
	RoundID              *uint  `json:"round_id,omitempty" gorm:"index"`
	Status               string `json:"status" gorm:"type:varchar(16);default:'pending'"`
	CurrentQuestionOrder int    `json:"current_question_order" gorm:"default:0"`
	TotalQuestions       int    `json:"total_questions" gorm:"default:0"`

	// Pre-designated contestant (e.g. defending champion) always kept in rescue ranking.
	PriorityContestantID *uint `json:"priority_contestant_id,omitempty"`

	Participations []Participation    `json:"-" gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`
	Rescues        []RescueDefinition `json:"-" gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`

	Timestamps
}
