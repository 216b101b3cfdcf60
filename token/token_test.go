package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testSession() webauthn.SessionData {
	return webauthn.SessionData{
		Challenge: "dGVzdC1jaGFsbGVuZ2U",
		UserID:    []byte("user-1"),
	}
}

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer(testSecret, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	profile := Profile{
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Example",
		DOB:       "2000-01-01",
	}
	raw, err := issuer.Issue(KindRegistration, "user-1", profile, testSession())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := issuer.Parse(raw, KindRegistration)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("unexpected subject: %q", claims.Subject)
	}
	if claims.Profile != profile {
		t.Errorf("unexpected profile: %+v", claims.Profile)
	}
	if claims.Session.Challenge != "dGVzdC1jaGFsbGVuZ2U" {
		t.Errorf("unexpected challenge: %q", claims.Session.Challenge)
	}
	if claims.ID == "" {
		t.Error("token id should be set")
	}
}

func TestIssuer_UniqueTokenIDs(t *testing.T) {
	issuer, _ := NewIssuer(testSecret, time.Minute, nil)

	first, _ := issuer.Issue(KindAuthentication, "user-1", Profile{}, testSession())
	second, _ := issuer.Issue(KindAuthentication, "user-1", Profile{}, testSession())

	c1, err := issuer.Parse(first, KindAuthentication)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	c2, err := issuer.Parse(second, KindAuthentication)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c1.ID == c2.ID {
		t.Error("two tokens should not share an id")
	}
}

func TestIssuer_Tampered(t *testing.T) {
	issuer, _ := NewIssuer(testSecret, time.Minute, nil)
	raw, _ := issuer.Issue(KindRegistration, "user-1", Profile{}, testSession())

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token format: %q", raw)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := issuer.Parse(tampered, KindRegistration); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for tampered token, got %v", err)
	}
}

func TestIssuer_WrongSecret(t *testing.T) {
	issuer, _ := NewIssuer(testSecret, time.Minute, nil)
	other, _ := NewIssuer([]byte("ffffffffffffffffffffffffffffffff"), time.Minute, nil)

	raw, _ := issuer.Issue(KindRegistration, "user-1", Profile{}, testSession())
	if _, err := other.Parse(raw, KindRegistration); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid with wrong secret, got %v", err)
	}
}

func TestIssuer_Expired(t *testing.T) {
	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer, _ := NewIssuer(testSecret, time.Minute, func() time.Time { return current })

	raw, _ := issuer.Issue(KindAuthentication, "user-1", Profile{}, testSession())

	current = current.Add(2 * time.Minute)
	if _, err := issuer.Parse(raw, KindAuthentication); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestIssuer_WrongKind(t *testing.T) {
	issuer, _ := NewIssuer(testSecret, time.Minute, nil)
	raw, _ := issuer.Issue(KindAuthentication, "user-1", Profile{}, testSession())

	if _, err := issuer.Parse(raw, KindRegistration); !errors.Is(err, ErrWrongKind) {
		t.Errorf("expected ErrWrongKind, got %v", err)
	}
}

func TestNewIssuer_RejectsWeakSecret(t *testing.T) {
	if _, err := NewIssuer([]byte("short"), time.Minute, nil); err == nil {
		t.Error("expected error for short secret")
	}
	if _, err := NewIssuer(testSecret, 0, nil); err == nil {
		t.Error("expected error for zero ttl")
	}
}
