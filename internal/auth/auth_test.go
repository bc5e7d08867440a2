package auth

import (
	"context"
	"slices"
	"testing"
	"time"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv("ASSETTRACK_AUTH_SECRET", value)
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "unit-test-secret")

	token, err := GenerateToken("user-42", []string{"Admin", "viewer", "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if !slices.Contains(claims.Roles, "admin") || !slices.Contains(claims.Roles, "viewer") {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles not deduplicated: %v", claims.Roles)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	withSecret(t, "unit-test-secret")

	if _, err := ParseAndValidate("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
	if _, err := ParseAndValidate(""); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken for empty input, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	withSecret(t, "secret-one")
	token, err := GenerateToken("user-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	withSecret(t, "secret-two")
	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	withSecret(t, "")

	if _, err := GenerateToken("user-1", nil, time.Minute); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	withSecret(t, "unit-test-secret")

	token, err := GenerateToken("user-1", nil, time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("want ErrInvalidToken for expired token, got %v", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithUser(context.Background(), " user-9 ", []string{"Admin", "admin", ""})

	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-9" {
		t.Fatalf("user id = %q ok=%v", id, ok)
	}
	if !HasRole(ctx, "ADMIN") {
		t.Fatal("expected admin role")
	}
	if HasRole(ctx, "auditor") {
		t.Fatal("unexpected role")
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("empty context should carry no user")
	}
}
