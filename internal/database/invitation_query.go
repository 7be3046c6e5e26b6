package database

import (
	"time"

	"gorm.io/gorm"

	"github.com/vkotov/planhub/internal/model"
)

type InvitationQuery struct {
	Query[model.Invitation]
	id         uint
	projectID  uint
	email      string
	uid        string
	status     string
	token      string
	expBefore  time.Time
	expAfter   time.Time
	unresolved bool
	full       bool
}

func NewInvitationQuery(db *gorm.DB) *InvitationQuery {
	return &InvitationQuery{
		Query: Query[model.Invitation]{
			db:     db,
			limit:  100,
			offset: 0,
			order:  "invitations.created_at",
		},
	}
}

func (q *InvitationQuery) Limit(n int) *InvitationQuery {
	q.limit = n
	return q
}

func (q *InvitationQuery) Id(id uint) *InvitationQuery {
	q.id = id
	return q
}

func (q *InvitationQuery) Project(id uint) *InvitationQuery {
	q.projectID = id
	return q
}

func (q *InvitationQuery) Email(s string) *InvitationQuery {
	q.email = model.NormalizeEmail(s)
	return q
}

func (q *InvitationQuery) Invitee(uid string) *InvitationQuery {
	q.uid = uid
	return q
}

func (q *InvitationQuery) Status(s string) *InvitationQuery {
	q.status = s
	return q
}

func (q *InvitationQuery) Token(s string) *InvitationQuery {
	q.token = s
	return q
}

func (q *InvitationQuery) ExpiresBefore(t time.Time) *InvitationQuery {
	q.expBefore = t
	return q
}

func (q *InvitationQuery) ExpiresAfter(t time.Time) *InvitationQuery {
	q.expAfter = t
	return q
}

// Unresolved limits the query to invitations without a resolved invitee.
func (q *InvitationQuery) Unresolved() *InvitationQuery {
	q.unresolved = true
	return q
}

func (q *InvitationQuery) Full() *InvitationQuery {
	q.full = true
	return q
}

func (q *InvitationQuery) where() *gorm.DB {
	tx := q.db

	if q.id != 0 {
		tx = tx.Where("invitations.id = ?", q.id)
	}

	if q.projectID != 0 {
		tx = tx.Where("project_id = ?", q.projectID)
	}

	if q.email != "" {
		tx = tx.Where("invitee_email = ?", q.email)
	}

	if q.uid != "" {
		tx = tx.Where("invitee_uid = ?", q.uid)
	}

	if q.status != "" {
		tx = tx.Where("status = ?", q.status)
	}

	if q.token != "" {
		tx = tx.Where("token = ?", q.token)
	}

	if !q.expBefore.IsZero() {
		tx = tx.Where("expires_at < ?", q.expBefore)
	}

	if !q.expAfter.IsZero() {
		tx = tx.Where("expires_at > ?", q.expAfter)
	}

	if q.unresolved {
		tx = tx.Where("invitee_uid = ''")
	}

	if q.full {
		tx = tx.Joins("Project")
	}

	return tx
}

func (q *InvitationQuery) Get() []*model.Invitation {
	return q.get(q.where().Model(&model.Invitation{}))
}

func (q *InvitationQuery) One() *model.Invitation {
	return q.one(q.where().Model(&model.Invitation{}))
}

func (q *InvitationQuery) Count() int64 {
	return q.count(q.where().Model(&model.Invitation{}))
}

func (q *InvitationQuery) Update(updates map[string]any) error {
	return q.updateOrError(q.where().Model(&model.Invitation{}), updates)
}

func (q *InvitationQuery) Delete() error {
	return q.deleteOrError(q.where(), &model.Invitation{})
}
