package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/logging"
	"github.com/Noctocode/worken-ai/internal/store"
)

// AccessTokenCookie is the cookie the web app stores the access token in.
const AccessTokenCookie = "access_token"

const principalKey = "principal"

// Claims is the access token payload. Subject carries the user id.
type Claims struct {
	Email  string `json:"email"`
	IsPaid bool   `json:"isPaid"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 access token for userID.
func IssueToken(secret, userID, email string, isPaid bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email:  email,
		IsPaid: isPaid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get(echo.HeaderAuthorization); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// parseToken verifies signature, algorithm and expiry.
func parseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// authMiddleware resolves the principal from the access token. The stored
// user, when present, is authoritative for the paid flag.
func (s *Server) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFromRequest(c.Request())
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			claims, err := parseToken(s.config.JWTSecret, raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized").SetInternal(err)
			}

			ctx := c.Request().Context()
			principal := access.Principal{UserID: claims.Subject, Email: claims.Email, IsPaid: claims.IsPaid}
			if s.users != nil {
				u, err := s.users.Get(ctx, claims.Subject)
				switch {
				case err == nil:
					principal.IsPaid = u.IsPaid
					if principal.Email == "" {
						principal.Email = u.Email
					}
				case !errors.Is(err, store.ErrNotFound):
					s.logger.Warn(ctx, "loading principal failed", zap.Error(err))
				}
			}

			ctx = logging.WithScope(ctx, logging.Scope{UserID: principal.UserID})
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(principalKey, principal)
			return next(c)
		}
	}
}

// principalFrom returns the principal set by authMiddleware.
func principalFrom(c echo.Context) access.Principal {
	p, _ := c.Get(principalKey).(access.Principal)
	return p
}
