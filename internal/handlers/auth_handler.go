package handlers

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"expressless/internal/middleware"
	"expressless/pkg/lambda"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	authService *middleware.AuthService
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *middleware.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// UserInfo represents user information
type UserInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// TokenRequest carries a token to refresh or validate
type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// Login issues a token for the given credentials. Every non-empty
// credential pair is accepted; the demo user gets the viewer role.
func (h *AuthHandler) Login(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	var body LoginRequest
	if err := middleware.BindJSON(req, &body); err != nil {
		next(err)
		return
	}

	token, claims, err := h.authService.Issue(middleware.Identity{
		UserID:   "user-" + body.Username,
		Username: body.Username,
		Email:    body.Username + "@example.com",
		Roles:    []string{string(middleware.RoleViewer)},
	})
	if err != nil {
		next(err)
		return
	}

	res.JSON(LoginResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      userInfo(claims),
	})
}

// RefreshToken exchanges a valid token for a fresh one
func (h *AuthHandler) RefreshToken(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	var body TokenRequest
	if err := middleware.BindJSON(req, &body); err != nil {
		next(err)
		return
	}

	token, claims, err := h.authService.Refresh(body.Token)
	if err != nil {
		next(lambda.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token", err))
		return
	}

	res.JSON(LoginResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      userInfo(claims),
	})
}

// ValidateToken reports whether a token is valid and whom it belongs to
func (h *AuthHandler) ValidateToken(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	var body TokenRequest
	if err := middleware.BindJSON(req, &body); err != nil {
		next(err)
		return
	}

	claims, err := h.authService.Verify(body.Token)
	if err != nil {
		next(lambda.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token", err))
		return
	}

	res.JSON(map[string]any{
		"valid":      true,
		"user":       userInfo(claims),
		"expires_at": claims.ExpiresAt.Time,
	})
}

// Logout records the logout and clears the session cookie. Tokens are
// discarded client-side.
func (h *AuthHandler) Logout(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	claims, ok := middleware.ClaimsFromRequest(req)
	if !ok {
		next(lambda.NewHTTPError(http.StatusUnauthorized, "Authentication required", nil))
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"token_id": claims.ID,
	}).Info("User logged out")

	maxAge := -1
	res.Cookie(SessionCookie, "", &lambda.CookieOptions{MaxAge: &maxAge, HttpOnly: true})
	res.JSON(map[string]string{
		"message":  "Logged out successfully",
		"user_id":  claims.UserID,
		"username": claims.Username,
	})
}

// GetCurrentUser returns the authenticated user
func (h *AuthHandler) GetCurrentUser(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	claims, ok := middleware.ClaimsFromRequest(req)
	if !ok {
		next(lambda.NewHTTPError(http.StatusUnauthorized, "Authentication required", nil))
		return
	}
	res.JSON(userInfo(claims))
}

func userInfo(claims *middleware.Claims) UserInfo {
	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserInfo{
		ID:       claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		Roles:    roles,
	}
}
