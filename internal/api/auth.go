package api

import (
	"log/slog"
	"net/http"

	"sql-chat/internal/auth"
	"sql-chat/pkg/api"

	"github.com/go-chi/chi/v5"
)

type AuthService struct {
	authenticator *auth.Authenticator
}

func NewAuthService(authenticator *auth.Authenticator) *AuthService {
	return &AuthService{authenticator: authenticator}
}

// AddRoutes registers the public login routes.
func (s *AuthService) AddRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.Login)
		r.Post("/logout", s.Logout)
	})
}

// AddProtectedRoutes registers routes that need a logged in user.
func (s *AuthService) AddProtectedRoutes(r chi.Router) {
	r.Get("/auth/me", RestHandler(s.Me))
}

func userInfo(identity auth.Identity) api.UserInfo {
	return api.UserInfo{Username: identity.Username, Name: identity.Name, Email: identity.Email}
}

// Login sets the session cookie as well as returning the token, so both
// browser and API clients can authenticate.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest[api.LoginRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}

	identity, err := s.authenticator.Login(req.Username, req.Password)
	if err != nil {
		slog.Warn("login failed", "username", req.Username, "error", err)
		writeError(w, err)
		return
	}

	token, expires, err := s.authenticator.IssueToken(identity)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("user logged in", "username", identity.Username)
	http.SetCookie(w, s.authenticator.Cookie(token, expires))
	WriteJsonResponse(w, api.LoginResponse{User: userInfo(identity), Token: token, ExpiresAt: expires})
}

func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.authenticator.ClearCookie())
	WriteJsonResponse(w, struct{}{})
}

func (s *AuthService) Me(r *http.Request) (any, error) {
	identity, err := requireIdentity(r)
	if err != nil {
		return nil, err
	}
	return userInfo(identity), nil
}
