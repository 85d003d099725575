package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/intake/internal/model"
)

var secret = []byte("test-secret")

func TestIssueAndParseToken(t *testing.T) {
	e := &model.Employee{ID: 7, Username: "clerk", IsAdmin: true}
	raw, exp, err := IssueToken(secret, e, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("exp = %v, want in the future", exp)
	}

	ac, err := ParseToken(secret, raw)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if ac.EmployeeID != 7 || ac.Username != "clerk" || !ac.IsAdmin {
		t.Errorf("AuthContext = %+v", ac)
	}
}

func TestParseTokenRejects(t *testing.T) {
	e := &model.Employee{ID: 7, Username: "clerk"}
	expired, _, err := IssueToken(secret, e, time.Hour, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	good, _, err := IssueToken(secret, e, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	cases := map[string]struct {
		secret []byte
		raw    string
	}{
		"expired":      {secret, expired},
		"wrong secret": {[]byte("other"), good},
		"garbage":      {secret, "not.a.token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken(tc.secret, tc.raw); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}
