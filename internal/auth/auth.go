package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingCredentials = errors.New("please enter your username and password")
	ErrInvalidCredentials = errors.New("username/password is incorrect")
	ErrInvalidToken       = errors.New("invalid or expired session token")
)

type Identity struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type Authenticator struct {
	cfg *Config
	now func() time.Time
}

func NewAuthenticator(cfg *Config) *Authenticator {
	return &Authenticator{cfg: cfg, now: time.Now}
}

func (a *Authenticator) Login(username, password string) (Identity, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return Identity{}, ErrMissingCredentials
	}

	user, ok := a.cfg.Credentials.Usernames[username]
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return Identity{Username: username, Name: user.Name, Email: user.Email}, nil
}

func (a *Authenticator) expiry() time.Duration {
	return time.Duration(a.cfg.Cookie.ExpiryDays * float64(24*time.Hour))
}

// IssueToken returns an HS256 JWT signed with the cookie key, naming the user
// in sub, and its expiry time.
func (a *Authenticator) IssueToken(identity Identity) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.expiry())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   identity.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte(a.cfg.Cookie.Key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %w", err)
	}
	return signed, expires, nil
}

// VerifyToken checks the signature and expiry of token and that its user
// still exists in the credentials file.
func (a *Authenticator) VerifyToken(token string) (Identity, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.Cookie.Key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	user, ok := a.cfg.Credentials.Usernames[claims.Subject]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Username: claims.Subject, Name: user.Name, Email: user.Email}, nil
}

func (a *Authenticator) Cookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     a.cfg.Cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (a *Authenticator) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     a.cfg.Cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrMissingCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hash), nil
}
