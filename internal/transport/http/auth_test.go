package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func TestJWTAuth_SetsCaller(t *testing.T) {
	t.Parallel()

	caller := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	raw, err := IssueToken("secret", caller, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var got common.Address
	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		got, _ = callerFrom(c)
		if uid, _ := c.Get(ctxUserID).(string); uid != caller.Hex() {
			t.Errorf("expected user id %s, got %q", caller.Hex(), uid)
		}
		return c.NoContent(http.StatusOK)
	}, JWTAuth("secret"))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got != caller {
		t.Fatalf("expected caller %s, got %s", caller.Hex(), got.Hex())
	}
}

func TestJWTAuth_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	caller := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	now := time.Now()

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: caller.Hex()}).
		SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "no expiry", header: "Bearer " + noExpiry},
		{name: "subject not an address", header: "Bearer " + badSubject},
		{name: "signed with another secret", header: "Bearer " + mustToken(t, "other", caller, time.Minute)},
	}

	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, JWTAuth("secret"))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", rec.Code)
			}
			if got := decodeError(t, rec).Code; got != codeUnauthenticated {
				t.Fatalf("expected code %s, got %s", codeUnauthenticated, got)
			}
		})
	}
}
