package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/daisho-wakazashi/keybook/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "auth.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.TimeBlock{}, &models.Claim{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestUsersCreateAndAuthenticate(t *testing.T) {
	users := NewUsers(setupTestDB(t))
	ctx := context.Background()

	u, err := users.Create(ctx, "Olive", " Olive@Example.com ", models.RoleOwner, "s3cret-pass")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Email != "olive@example.com" || u.PasswordHash == "" || u.PasswordHash == "s3cret-pass" {
		t.Fatalf("unexpected stored user %+v", u)
	}

	got, err := users.Authenticate(ctx, "OLIVE@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected %s, got %s", u.ID, got.ID)
	}

	if _, err := users.Authenticate(ctx, "olive@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := users.Authenticate(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestUsersCreateValidation(t *testing.T) {
	users := NewUsers(setupTestDB(t))
	ctx := context.Background()

	if _, err := users.Create(ctx, "x", "x@example.com", models.Role("admin"), ""); err == nil {
		t.Fatal("expected invalid role to be rejected")
	}
	if _, err := users.Create(ctx, "x", "  ", models.RoleClaimant, ""); err == nil {
		t.Fatal("expected empty email to be rejected")
	}

	if _, err := users.Create(ctx, "Cal", "cal@example.com", models.RoleClaimant, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := users.Create(ctx, "Cal again", "cal@example.com", models.RoleClaimant, ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := users.Authenticate(ctx, "cal@example.com", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("accounts without a password cannot log in, got %v", err)
	}
	if _, err := users.ByEmail(ctx, "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
