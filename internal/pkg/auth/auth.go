package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/airenas/scribe/internal/pkg/apperr"
)

const userKey = "authUser"

// Verifier authenticates bearer tokens and resolves the calling username
type Verifier struct {
	secret []byte
}

// NewVerifier creates Verifier instance
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("no auth secret")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticate validates the token and returns the username it carries
func (v *Verifier) Authenticate(token string) (string, error) {
	cl := &claims{}
	parsed, err := jwt.ParseWithClaims(token, cl, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", apperr.New(apperr.NotAuthorized, "invalid or expired token")
	}
	if cl.Username == "" {
		return "", apperr.New(apperr.NotAuthorized, "no username in token")
	}
	return cl.Username, nil
}

// Sign issues a token for the user, used by tests and tooling
func (v *Verifier) Sign(username string, expiresIn time.Duration) (string, error) {
	cl := &claims{Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(v.secret)
}

// Middleware extracts the bearer token, authenticates it and stores the
// username in the request context
func (v *Verifier) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return echo.NewHTTPError(apperr.HTTPStatus(apperr.New(apperr.NotAuthorized, "")), "no authorization token")
			}
			user, err := v.Authenticate(token)
			if err != nil {
				return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
			}
			c.Set(userKey, user)
			return next(c)
		}
	}
}

// User returns the authenticated username stored by the middleware
func User(c echo.Context) string {
	res, _ := c.Get(userKey).(string)
	return res
}

func bearer(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}
