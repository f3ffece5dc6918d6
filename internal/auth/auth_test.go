package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	tok, err := Issue("s3cret", "team-a", []string{RoleArbitrator}, time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	p, err := Parse(tok, "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if p.Subject != "team-a" || !p.HasRole(RoleArbitrator) || p.HasRole(RoleDesigner) {
		t.Fatalf("unexpected principal %+v", p)
	}
	if _, err := Parse(tok, "other"); err == nil {
		t.Fatal("expected signature error")
	}
	var fe ForbiddenError
	if err := p.Require(RoleDesigner); !errors.As(err, &fe) || fe.Role != RoleDesigner {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	tok, err := Issue("k", "team-a", nil, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(tok, "k"); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestIssueValidation(t *testing.T) {
	if _, err := Issue("", "team-a", nil, 0, time.Now()); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := Issue("k", "team-a", []string{"admin"}, 0, time.Now()); err == nil {
		t.Fatal("expected unknown role error")
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("got %q %v", tok, ok)
	}
	for _, h := range []string{"", "abc", "Basic abc", "Bearer a b"} {
		if _, ok := BearerToken(h); ok {
			t.Fatalf("%q should not parse", h)
		}
	}
}
