package models

import "time"

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All lists every table owned or read by the engine, in migration order.
func All() []interface{} {
	return []interface{}{
		&Match{},
		&Participation{},
		&RescueDefinition{},
		&Result{},
	}
}
