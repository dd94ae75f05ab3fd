package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	ctxCaller = "caller"
	// ctxUserID is the key the rate limiter buckets authenticated callers by.
	ctxUserID = "user_id"
)

// JWTAuth validates an HS256 bearer token whose subject is the caller's
// address and stores the address on the request context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			var claims jwt.RegisteredClaims
			tok, err := jwt.ParseWithClaims(raw, &claims, keyFunc, jwt.WithExpirationRequired())
			if err != nil || !tok.Valid {
				return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "invalid token")
			}
			if !common.IsHexAddress(claims.Subject) {
				return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "token subject is not an address")
			}

			caller := common.HexToAddress(claims.Subject)
			c.Set(ctxCaller, caller)
			c.Set(ctxUserID, caller.Hex())
			return next(c)
		}
	}
}

// IssueToken signs a token for caller that expires after ttl.
func IssueToken(secret string, caller common.Address, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   caller.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func callerFrom(c echo.Context) (common.Address, bool) {
	caller, ok := c.Get(ctxCaller).(common.Address)
	return caller, ok
}
