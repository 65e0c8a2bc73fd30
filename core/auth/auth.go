package auth

import (
	"crypto/subtle"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/mahudhurio/core"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Admin is the single config-held account guarding the management endpoints.
// This is a static credential gate, not a security boundary: the original
// system ships with one shared admin login.
type Admin struct {
	Username     string
	password     string // DEV fallback
	passwordHash []byte
}

func AdminFromConfig(conf *core.Config) Admin {
	return Admin{
		Username:     core.CleanString(conf.AdminUsername, true /* lower */),
		password:     conf.AdminPassword,
		passwordHash: []byte(conf.AdminPasswordHash),
	}
}

// Authenticate checks the provided credentials against the configured admin
// account. A bcrypt hash takes precedence over the plaintext DEV password.
func (a Admin) Authenticate(username, password string) error {
	uname := core.CleanString(username, true /* lower */)
	if subtle.ConstantTimeCompare([]byte(uname), []byte(a.Username)) != 1 {
		return ErrInvalidCredentials
	}
	if len(a.passwordHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash to be set as the admin password hash.
func HashPassword(pwd string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hashing password")
	}
	return string(hash), nil
}
