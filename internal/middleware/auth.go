package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expressless/pkg/lambda"
)

// UserRole represents user roles in the system
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleOperator UserRole = "operator"
	RoleViewer   UserRole = "viewer"
)

const (
	// ClaimsKey holds the verified *Claims in request locals
	ClaimsKey = "auth_claims"
	// UserIDKey holds the authenticated user id in request locals
	UserIDKey = "user_id"
)

var (
	ErrMissingToken           = errors.New("authorization header is required")
	ErrMalformedAuthorization = errors.New("authorization header is not a bearer token")
)

// Identity is the user an access token speaks for
type Identity struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the identity holds any of roles
func (i Identity) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range i.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Claims are the JWT claims of an access token
type Claims struct {
	Identity
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
	Issuer        string
}

// AuthService issues HS256 access tokens and authenticates requests that
// carry them as bearer tokens
type AuthService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewAuthService creates an AuthService. Tokens live for 24 hours unless
// TokenDuration is set.
func NewAuthService(config *AuthConfig) *AuthService {
	s := &AuthService{
		secret: []byte(config.JWTSecret),
		issuer: config.Issuer,
		ttl:    config.TokenDuration,
		now:    time.Now,
	}
	if s.ttl == 0 {
		s.ttl = 24 * time.Hour
	}
	if s.issuer == "" {
		s.issuer = "expressless"
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// TokenDuration returns how long issued tokens stay valid
func (s *AuthService) TokenDuration() time.Duration {
	return s.ttl
}

// Issue signs an access token for id. Every token gets its own id.
func (s *AuthService) Issue(id Identity) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, claims, nil
}

// Verify checks the signature, issuer and validity window of token
func (s *AuthService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return claims, nil
}

// Refresh reissues a still valid token for the same identity
func (s *AuthService) Refresh(token string) (string, *Claims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return "", nil, err
	}
	return s.Issue(claims.Identity)
}

// Authenticate verifies the bearer token of req and stores its claims in
// the request locals under ClaimsKey and UserIDKey
func (s *AuthService) Authenticate(req *lambda.Request) (*Claims, error) {
	header := req.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, ErrMalformedAuthorization
	}

	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	req.Locals().Set(ClaimsKey, claims)
	req.Locals().Set(UserIDKey, claims.UserID)
	return claims, nil
}

// ClaimsFromRequest returns the claims stored by Authenticate
func ClaimsFromRequest(req *lambda.Request) (*Claims, bool) {
	value, ok := req.Locals().Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*Claims)
	return claims, ok
}

func unauthorized(req *lambda.Request, res *lambda.Response, message string) {
	res.Status(http.StatusUnauthorized).JSON(ErrorResponse{
		Error:     "Unauthorized",
		Message:   message,
		RequestID: req.Locals().GetString(RequestIDKey),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Authentication middleware that requires a valid bearer token
func Authentication(authService *AuthService) lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		claims, err := authService.Authenticate(req)
		switch {
		case errors.Is(err, ErrMissingToken):
			unauthorized(req, res, "Authorization header is required")
			return
		case errors.Is(err, ErrMalformedAuthorization):
			unauthorized(req, res, "Invalid authorization header format. Expected: Bearer <token>")
			return
		case err != nil:
			logrus.WithFields(logrus.Fields{
				"error": err.Error(),
				"path":  req.Path,
			}).Warn("Token validation failed")

			unauthorized(req, res, "Invalid or expired token")
			return
		}

		logrus.WithFields(logrus.Fields{
			"user_id":  claims.UserID,
			"username": claims.Username,
			"path":     req.Path,
		}).Debug("User authenticated successfully")

		next(nil)
	}
}

// Authorization middleware that requires one of requiredRoles. It runs
// after Authentication.
func Authorization(requiredRoles ...string) lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		if len(requiredRoles) == 0 {
			next(nil)
			return
		}

		claims, ok := ClaimsFromRequest(req)
		if !ok {
			unauthorized(req, res, "Authentication required")
			return
		}

		if !claims.HasRole(requiredRoles...) {
			logrus.WithFields(logrus.Fields{
				"user_id":        claims.UserID,
				"user_roles":     claims.Roles,
				"required_roles": requiredRoles,
				"path":           req.Path,
			}).Warn("Authorization failed - insufficient permissions")

			res.Status(http.StatusForbidden).JSON(ErrorResponse{
				Error:     "Insufficient permissions",
				Message:   fmt.Sprintf("One of the roles %v is required", requiredRoles),
				RequestID: req.Locals().GetString(RequestIDKey),
				Timestamp: time.Now().Format(time.RFC3339),
			})
			return
		}

		next(nil)
	}
}

// OptionalAuthentication stores claims when the request carries a valid
// bearer token and passes every request on
func OptionalAuthentication(authService *AuthService) lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		if _, err := authService.Authenticate(req); err != nil && !errors.Is(err, ErrMissingToken) {
			logrus.WithFields(logrus.Fields{
				"error": err.Error(),
				"path":  req.Path,
			}).Debug("Optional token validation failed")
		}
		next(nil)
	}
}

// HasRole checks if the authenticated user has role
func HasRole(req *lambda.Request, role string) bool {
	claims, ok := ClaimsFromRequest(req)
	return ok && claims.HasRole(role)
}

// IsAdmin checks if the authenticated user has the admin role
func IsAdmin(req *lambda.Request) bool {
	return HasRole(req, string(RoleAdmin))
}
