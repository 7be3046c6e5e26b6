package database

import (
	"gorm.io/gorm"

	"github.com/vkotov/planhub/internal/model"
)

type MemberQuery struct {
	Query[model.Member]
	id        uint
	projectID uint
	uid       string
	role      string
}

func NewMemberQuery(db *gorm.DB) *MemberQuery {
	return &MemberQuery{
		Query: Query[model.Member]{
			db:     db,
			limit:  500,
			offset: 0,
			order:  "members.created_at",
		},
	}
}

func (q *MemberQuery) Id(id uint) *MemberQuery {
	q.id = id
	return q
}

func (q *MemberQuery) Project(id uint) *MemberQuery {
	q.projectID = id
	return q
}

func (q *MemberQuery) User(uid string) *MemberQuery {
	q.uid = uid
	return q
}

func (q *MemberQuery) Role(s string) *MemberQuery {
	q.role = s
	return q
}

func (q *MemberQuery) where() *gorm.DB {
	tx := q.db

	if q.id != 0 {
		tx = tx.Where("id = ?", q.id)
	}

	if q.projectID != 0 {
		tx = tx.Where("project_id = ?", q.projectID)
	}

	if q.uid != "" {
		tx = tx.Where("user_uid = ?", q.uid)
	}

	if q.role != "" {
		tx = tx.Where("role = ?", q.role)
	}

	return tx
}

func (q *MemberQuery) Get() []*model.Member {
	return q.get(q.where().Model(&model.Member{}))
}

func (q *MemberQuery) One() *model.Member {
	return q.one(q.where().Model(&model.Member{}))
}

func (q *MemberQuery) Count() int64 {
	return q.count(q.where().Model(&model.Member{}))
}

func (q *MemberQuery) Delete() error {
	return q.deleteOrError(q.where(), &model.Member{})
}
