package credential

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	tok, err := SignAdminToken("s3cret", "ops@example.com", time.Minute)
	if err != nil {
		t.Fatalf("SignAdminToken: %v", err)
	}
	claims, err := ParseAdminToken("s3cret", tok)
	if err != nil {
		t.Fatalf("ParseAdminToken: %v", err)
	}
	if claims.Subject != "ops@example.com" || claims.Role != RoleAdmin {
		t.Fatalf("claims: got=%+v", claims)
	}
}

func TestParseAdminTokenRejects(t *testing.T) {
	good, _ := SignAdminToken("s3cret", "ops", time.Minute)
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}).SignedString([]byte("s3cret"))
	viewer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: "viewer"}).SignedString([]byte("s3cret"))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, AdminClaims{Role: RoleAdmin}).SignedString([]byte("s3cret"))

	cases := []struct {
		name, secret, token string
	}{
		{"wrong secret", "other", good},
		{"expired", "s3cret", expired},
		{"wrong role", "s3cret", viewer},
		{"wrong alg", "s3cret", hs512},
		{"garbage", "s3cret", "not-a-jwt"},
		{"empty secret", "", good},
	}
	for _, tc := range cases {
		if _, err := ParseAdminToken(tc.secret, tc.token); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
	if _, err := ParseAdminToken("s3cret", viewer); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("wrong role: want ErrNotAdmin got=%v", err)
	}
}
