package model

import "time"

const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRejected = "rejected"
	InviteStatusExpired  = "expired"
)

type Invitation struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	ProjectID    uint `gorm:"index;not null;uniqueIndex:idx_pending_invite,where:status = 'pending'"`
	Project      *Project
	InviterUID   string  `gorm:"not null"`
	InviteeEmail string  `gorm:"index;not null;uniqueIndex:idx_pending_invite,where:status = 'pending'"`
	InviteeUID   string  `gorm:"index"`
	Role         string  `gorm:"not null"`
	Status       string  `gorm:"index;not null"`
	Token        *string `gorm:"uniqueIndex"`
	ExpiresAt    time.Time
	Message      string
	RespondedAt  *time.Time
}

func (i *Invitation) IsPending() bool {
	return i != nil && i.Status == InviteStatusPending
}

func (i *Invitation) IsExpired(now time.Time) bool {
	return i != nil && !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// IsFor reports whether the invitation targets the given user, by resolved
// uid if one is stored, by normalized email otherwise.
func (i *Invitation) IsFor(uid, email string) bool {
	if i == nil {
		return false
	}

	if i.InviteeUID != "" {
		return i.InviteeUID == uid
	}

	return email != "" && i.InviteeEmail == NormalizeEmail(email)
}

type InvitationDTO struct {
	ID           uint       `json:"id"`
	ProjectID    uint       `json:"project_id"`
	ProjectName  string     `json:"project_name,omitempty"`
	InviterUID   string     `json:"inviter"`
	InviteeEmail string     `json:"email"`
	InviteeUID   string     `json:"invitee,omitempty"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	Message      string     `json:"message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`
}

func ToInvitationDTO(i *Invitation) *InvitationDTO {
	if i == nil {
		return nil
	}

	d := &InvitationDTO{
		ID:           i.ID,
		ProjectID:    i.ProjectID,
		InviterUID:   i.InviterUID,
		InviteeEmail: i.InviteeEmail,
		InviteeUID:   i.InviteeUID,
		Role:         i.Role,
		Status:       i.Status,
		Message:      i.Message,
		CreatedAt:    i.CreatedAt,
		ExpiresAt:    i.ExpiresAt,
		RespondedAt:  i.RespondedAt,
	}

	if i.Project != nil {
		d.ProjectName = i.Project.Name
	}

	return d
}
