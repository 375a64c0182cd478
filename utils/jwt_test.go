package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cppla/sitecore/config"
)

func TestTokenRoundTrip(t *testing.T) {
	config.Set(config.AppConfig{JWTSecret: "jwt-test"})
	raw, err := GenerateToken(4, "mariam", "editor", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseToken(raw)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != 4 || claims.Username != "mariam" || claims.Role != "editor" || claims.Subject != "4" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	config.Set(config.AppConfig{JWTSecret: "jwt-test"})
	key := []byte("jwt-test")
	sign := func(m jwt.SigningMethod, c Claims, k interface{}) string {
		s, err := jwt.NewWithClaims(m, c).SignedString(k)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]string{
		"foreign issuer": sign(jwt.SigningMethodHS256, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: "other", ExpiresAt: exp}}, key),
		"no expiry":      sign(jwt.SigningMethodHS256, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer}}, key),
		"no role":        sign(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: exp}}, key),
		"other alg":      sign(jwt.SigningMethodHS512, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: exp}}, key),
		"wrong key":      sign(jwt.SigningMethodHS256, Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: exp}}, []byte("nope")),
	}
	for name, raw := range cases {
		if _, err := ParseToken(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}
