package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dchf12/passkey/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "passkey.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testUser(id, email string) domain.User {
	return domain.User{
		ID:        id,
		Email:     email,
		FirstName: "Alice",
		LastName:  "Example",
		DOB:       "2000-01-01",
		Passkey: domain.Passkey{
			ID:         []byte("cred-" + id),
			PublicKey:  []byte{0xa5, 0x01, 0x02},
			SignCount:  0,
			DeviceType: domain.DeviceTypeMultiDevice,
			BackedUp:   true,
			Transports: []string{"internal", "hybrid"},
		},
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := testUser("u1", "alice@example.com")

	if err := s.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if !reflect.DeepEqual(got, user) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, user)
	}

	byID, err := s.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.Email != "alice@example.com" {
		t.Errorf("unexpected email: %q", byID.Email)
	}
}

func TestStore_DuplicateEmail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, testUser("u1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, testUser("u2", "alice@example.com")); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate email, got %v", err)
	}
	// COLLATE NOCASE なので大文字小文字違いも重複。
	if err := s.Create(ctx, testUser("u3", "ALICE@example.com")); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for case-variant email, got %v", err)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateSignCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := testUser("u1", "alice@example.com")
	if err := s.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := s.UpdateSignCount(ctx, "u1", user.Passkey.ID, 3); err != nil {
		t.Fatalf("UpdateSignCount failed: %v", err)
	}
	got, _ := s.GetByID(ctx, "u1")
	if got.Passkey.SignCount != 3 {
		t.Errorf("expected sign count 3, got %d", got.Passkey.SignCount)
	}
}

func TestStore_UpdateSignCount_CredentialMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, testUser("u1", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := s.UpdateSignCount(ctx, "u1", []byte("other-credential"), 3)
	if !errors.Is(err, domain.ErrCredentialMismatch) {
		t.Errorf("expected ErrCredentialMismatch, got %v", err)
	}
	got, _ := s.GetByID(ctx, "u1")
	if got.Passkey.SignCount != 0 {
		t.Errorf("sign count should be unchanged, got %d", got.Passkey.SignCount)
	}

	if err := s.UpdateSignCount(ctx, "missing", []byte("x"), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty path")
	}
}
