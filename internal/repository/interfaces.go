package repository

import "github.com/vkotov/planhub/internal/model"

type UserRepository interface {
	Start() error
	Stop()
	GetUser(login string) *model.User
	// ResolveEmail finds an account by normalized email, nil if none exists.
	ResolveEmail(email string) *model.User
	CheckUserAuth(login, password string) bool
}
