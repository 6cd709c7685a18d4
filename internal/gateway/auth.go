package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// authScheme is the expected Authorization scheme. A wrong scheme is a
// 403; a bad or expired token under the right scheme is a 401.
const authScheme = "TOKEN"

const userIDKey = "auth.user_id"

type tokenClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// mintToken issues the api_key returned at registration: HS256 over a
// payload carrying the user id.
func mintToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		ID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, token string) (uuid.UUID, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.ID)
}

func splitAuthHeader(header string) (token string, err error) {
	if header == "" {
		return "", echo.NewHTTPError(http.StatusForbidden, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, authScheme) {
		return "", echo.NewHTTPError(http.StatusForbidden, "invalid authorization scheme")
	}
	return token, nil
}

// userAuth authenticates requests with a user JWT and stores the user id
// on the request context.
func (s *Server) userAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := splitAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return err
		}
		userID, err := parseToken(s.cfg.JWTSecret, token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		c.Set(userIDKey, userID)
		return next(c)
	}
}

// adminAuth authenticates requests carrying the raw shared admin secret.
func (s *Server) adminAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := splitAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return err
		}
		if token != s.cfg.AdminToken {
			return echo.NewHTTPError(http.StatusForbidden, "invalid admin token")
		}
		return next(c)
	}
}

func authedUser(c echo.Context) uuid.UUID {
	id, _ := c.Get(userIDKey).(uuid.UUID)
	return id
}
