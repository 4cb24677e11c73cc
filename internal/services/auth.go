package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"aeroguardian/internal/auth"
	"aeroguardian/internal/middleware"
)

// LoginPayload is the body of POST /api/auth/login
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult carries the issued token
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthStatus describes the caller's authentication state
type AuthStatus struct {
	Enabled       bool    `json:"enabled"`
	Authenticated bool    `json:"authenticated"`
	Username      *string `json:"username,omitempty"`
}

// AuthService implements the auth endpoints
type AuthService struct {
	authenticator *auth.Authenticator
	Mounts        []MountPoint
}

// NewAuthService creates a new auth service
func NewAuthService(authenticator *auth.Authenticator) *AuthService {
	return &AuthService{authenticator: authenticator}
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(_ context.Context, p *LoginPayload) (*LoginResult, error) {
	if p.Username == "" || p.Password == "" {
		return nil, goa.PermanentError(ErrNameBadRequest, "username and password are required")
	}
	token, expiresAt, err := s.authenticator.Authenticate(p.Username, p.Password)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// Status returns the current authentication status. The route is public, so
// a bearer token is checked here when the middleware did not run.
func (s *AuthService) Status(ctx context.Context, bearer string) *AuthStatus {
	st := &AuthStatus{Enabled: s.authenticator.IsEnabled()}
	claims := middleware.GetUserFromContext(ctx)
	if claims == nil && st.Enabled && bearer != "" {
		claims, _ = s.authenticator.ValidateToken(bearer)
	}
	if claims != nil {
		st.Authenticated = true
		st.Username = &claims.Username
	}
	return st
}

// Mount registers the auth routes
func (s *AuthService) Mount(mux goahttp.Muxer) {
	s.Mounts = append(s.Mounts,
		mount(mux, "login", http.MethodPost, "/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
			var p LoginPayload
			if err := decodeJSON(r, &p); err != nil {
				writeError(r.Context(), w, err)
				return
			}
			res, err := s.Login(r.Context(), &p)
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			writeJSON(r.Context(), w, http.StatusOK, res)
		}),
		mount(mux, "status", http.MethodGet, "/api/auth/status", func(w http.ResponseWriter, r *http.Request) {
			bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			writeJSON(r.Context(), w, http.StatusOK, s.Status(r.Context(), bearer))
		}),
	)
}

// PublicPath reports whether a route is reachable without a token
func PublicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/api/auth/login", "/api/auth/status":
		return true
	}
	return false
}
