package database

import (
	"time"
)

type ReviewRecord struct {
	ID             string    `json:"id"`
	TitleID        string    `json:"title_id"`
	PreviousScore  float64   `json:"previous_score"`
	Score          float64   `json:"score"`
	PreviousSource string    `json:"previous_source"`
	Flags          []string  `json:"flags"`
	Notes          string    `json:"notes"`
	ReviewedAt     time.Time `json:"reviewed_at"`
}
