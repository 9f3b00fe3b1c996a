package token

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, clock func() time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer(Config{
		Secret:   []byte("secret"),
		TTL:      time.Hour,
		Username: "playroom",
		Password: "pw",
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}
	return iss
}

func TestIssueVerify(t *testing.T) {
	iss := newTestIssuer(t, nil)

	tok, err := iss.Issue("playroom", "pw")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if tok.AccessToken == "" {
		t.Fatal("empty access token")
	}

	sub, err := iss.Verify(tok.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if sub != "playroom" {
		t.Errorf("subject = %q, want playroom", sub)
	}
}

func TestIssue_InvalidCredentials(t *testing.T) {
	iss := newTestIssuer(t, nil)

	if _, err := iss.Issue("playroom", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Issue() error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := iss.Issue("admin", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Issue() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, func() time.Time { return now })

	tok, err := iss.Issue("playroom", "pw")
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := iss.Verify(tok.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	iss := newTestIssuer(t, nil)
	tok, err := iss.Issue("playroom", "pw")
	if err != nil {
		t.Fatal(err)
	}

	other, _ := NewIssuer(Config{Secret: []byte("other"), Username: "playroom", Password: "pw"})
	if _, err := other.Verify(tok.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	if _, err := NewIssuer(Config{}); err == nil {
		t.Error("expected error for empty secret")
	}
}
