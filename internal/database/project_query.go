package database

import (
	"gorm.io/gorm"

	"github.com/vkotov/planhub/internal/model"
)

type ProjectQuery struct {
	Query[model.Project]
	id   uint
	name string
}

func NewProjectQuery(db *gorm.DB) *ProjectQuery {
	return &ProjectQuery{
		Query: Query[model.Project]{
			db:     db,
			limit:  100,
			offset: 0,
			order:  "projects.created_at",
		},
	}
}

func (q *ProjectQuery) Id(id uint) *ProjectQuery {
	q.id = id
	return q
}

func (q *ProjectQuery) Name(s string) *ProjectQuery {
	q.name = s
	return q
}

func (q *ProjectQuery) where() *gorm.DB {
	tx := q.db

	if q.id != 0 {
		tx = tx.Where("id = ?", q.id)
	}

	if q.name != "" {
		tx = tx.Where("name = ?", q.name)
	}

	return tx
}

func (q *ProjectQuery) Get() []*model.Project {
	return q.get(q.where().Model(&model.Project{}))
}

func (q *ProjectQuery) One() *model.Project {
	return q.one(q.where().Model(&model.Project{}))
}

func (q *ProjectQuery) Update(updates map[string]any) error {
	return q.updateOrError(q.where().Model(&model.Project{}), updates)
}
