package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/vkotov/planhub/internal/model"
)

var (
	ErrNoToken      = errors.New("no token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated principal attached to a connection or
// request for its whole lifetime. A revoked credential takes effect only on
// the next handshake.
type Identity struct {
	Login string
	Email string
	Name  string
}

type Verifier struct {
	key []byte
}

func NewVerifier(key []byte) *Verifier {
	return &Verifier{key: key}
}

// Verify decodes a bearer credential and extracts a stable user identity.
// Fails closed on anything but a well-formed, unexpired HS256 token.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return v.key, nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	login, _ := claims["sub"].(string)
	if login == "" {
		return nil, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return &Identity{Login: login, Email: model.NormalizeEmail(email), Name: name}, nil
}

// Issue signs a token for the user. The production issuer lives outside this
// service; this is used by the local login endpoint and by tests.
func (v *Verifier) Issue(user *model.User, maxAge time.Duration) (string, error) {
	if user == nil {
		return "", fmt.Errorf("no user")
	}

	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.GetLogin(),
		"email": user.GetEmail(),
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(maxAge).Unix(),
	})

	return token.SignedString(v.key)
}
