package model

import "time"

const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleEditor  = "editor"
	RoleViewer  = "viewer"
)

type Member struct {
	ID        uint   `gorm:"primaryKey"`
	ProjectID uint   `gorm:"index;not null;uniqueIndex:idx_member"`
	UserUID   string `gorm:"index;not null;uniqueIndex:idx_member"`
	Role      string `gorm:"not null"`
	CreatedAt time.Time
}

func ValidRole(s string) bool {
	switch s {
	case RoleOwner, RoleManager, RoleEditor, RoleViewer:
		return true
	}

	return false
}

// CanManageMembers reports whether a role may invite, resend or cancel
// invitations for the project.
func CanManageMembers(role string) bool {
	return role == RoleOwner || role == RoleManager
}
