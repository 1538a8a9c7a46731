package models

// Result is written by the scoring flow; the engine only aggregates it.
type Result struct {
	ID            uint `json:"id" gorm:"primaryKey"`
	MatchID       uint `json:"match_id" gorm:"not null;index:idx_result_match_contestant"`
	ContestantID  uint `json:"contestant_id" gorm:"not null;index:idx_result_match_contestant"`
	QuestionOrder int  `json:"question_order"`
	IsCorrect     bool `json:"is_correct"`
}
