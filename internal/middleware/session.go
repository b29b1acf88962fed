package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shalteor/bplog/internal/db"
	"github.com/shalteor/bplog/internal/models"
)

var (
	ErrMissingSession = errors.New("missing session cookie")
	ErrInvalidToken   = errors.New("invalid token")
)

type contextKey string

const (
	UserIDContextKey contextKey = "user_id"
	UserContextKey   contextKey = "user"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "bp_session"

// LoginPath is where unauthenticated requests are redirected.
const LoginPath = "/login"

// LoginRequiredMessage is flashed when a protected page is requested without a session.
const LoginRequiredMessage = "please log in to access this page"

// UserLookup resolves the user behind a session.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// SessionConfig holds the session token configuration
type SessionConfig struct {
	Secret        []byte
	SigningMethod jwt.SigningMethod
	Expiration    time.Duration
	Secure        bool
	Logger        *zap.Logger
}

// Claims represents session token claims
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// NewSessionConfig creates a new session configuration
func NewSessionConfig(secret string, ttl time.Duration, logger *zap.Logger) *SessionConfig {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionConfig{
		Secret:        []byte(secret),
		SigningMethod: jwt.SigningMethodHS256,
		Expiration:    ttl,
		Logger:        logger,
	}
}

// GenerateToken generates a session token for a user
func (c *SessionConfig) GenerateToken(userID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "bplog",
		},
	}

	token := jwt.NewWithClaims(c.SigningMethod, claims)
	return token.SignedString(c.Secret)
}

// ValidateToken validates a session token and returns the claims
func (c *SessionConfig) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != c.SigningMethod {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method)
		}
		return c.Secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID > 0 {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// SetSession issues a token for userID and stores it in the session cookie.
func (c *SessionConfig) SetSession(w http.ResponseWriter, userID int64) error {
	token, err := c.GenerateToken(userID)
	if err != nil {
		return fmt.Errorf("failed to generate session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.Expiration.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearSession expires the session cookie.
func (c *SessionConfig) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionUserID returns the user id carried by the request's session cookie.
func (c *SessionConfig) SessionUserID(r *http.Request) (int64, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return 0, ErrMissingSession
	}

	claims, err := c.ValidateToken(cookie.Value)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// RequireAuth creates a middleware that only lets requests with a valid
// session for an existing user through. Everything else is redirected to
// the login page with a flash message.
func (c *SessionConfig) RequireAuth(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := c.SessionUserID(r)
			if err != nil {
				if !errors.Is(err, ErrMissingSession) {
					c.Logger.Debug("rejecting session", zap.Error(err))
					c.ClearSession(w)
				}
				c.redirectToLogin(w, r)
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if errors.Is(err, db.ErrUserNotFound) {
				c.Logger.Info("session for deleted user", zap.Int64("user_id", userID))
				c.ClearSession(w)
				c.redirectToLogin(w, r)
				return
			}
			if err != nil {
				c.Logger.Error("failed to load session user", zap.Int64("user_id", userID), zap.Error(err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, user.ID)
			ctx = context.WithValue(ctx, UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (c *SessionConfig) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	SetFlash(w, LoginRequiredMessage)
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDContextKey).(int64)
	if !ok {
		return 0, errors.New("user ID not found in context")
	}
	return userID, nil
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}
