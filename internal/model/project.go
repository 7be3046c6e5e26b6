package model

import "time"

const (
	StatusActive    = "active"
	StatusOnHold    = "on_hold"
	StatusArchived  = "archived"
	StatusCompleted = "completed"
)

type Project struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"index;not null"`
	Status     string `gorm:"index"`
	CreatorUID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func ValidProjectStatus(s string) bool {
	switch s {
	case StatusActive, StatusOnHold, StatusArchived, StatusCompleted:
		return true
	}

	return false
}
