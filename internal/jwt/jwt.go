package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Cookies builds the auth cookies with one set of attributes for set and delete.
type Cookies struct {
	Secure   bool
	SameSite http.SameSite
	Path     string
}

func (f Cookies) path() string {
	if f.Path == "" {
		return "/"
	}
	return f.Path
}

func (f Cookies) Create(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     f.path(),
		Expires:  exp,
		HttpOnly: true,
		Secure:   f.Secure,
		SameSite: f.SameSite,
	}
}

func (f Cookies) Delete(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     f.path(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   f.Secure,
		SameSite: f.SameSite,
	}
}

func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func NewJTI() string { return uuid.NewString() }
