package model

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	Login    string `yaml:"login"`
	Email    string `yaml:"email,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Password string `yaml:"password,omitempty"`
	Admin    bool   `yaml:"admin,omitempty"`
}

func (u *User) GetLogin() string {
	if u == nil {
		return ""
	}

	return u.Login
}

func (u *User) GetEmail() string {
	if u == nil {
		return ""
	}

	return NormalizeEmail(u.Email)
}

func (u *User) SetPassword(s string) error {
	b, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	u.Password = string(b)

	return nil
}

func (u *User) CheckPassword(s string) bool {
	if u == nil || u.Password == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(s)) == nil
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func ValidEmail(s string) bool {
	at := strings.Index(s, "@")

	if at < 1 || at == len(s)-1 {
		return false
	}

	return !strings.ContainsAny(s, " \t")
}
