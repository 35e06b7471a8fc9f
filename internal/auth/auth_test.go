package auth

import (
	"context"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash %q is not in PHC format", hash)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !ok {
		t.Error("correct password should verify")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if ok {
		t.Error("wrong password should not verify")
	}
}

func TestHashPassword_UniqueSalt(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	h2, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same input should differ (random salt)")
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not phc", "plainhash"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=65536"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := VerifyPassword("anything", tt.hash); err == nil {
				t.Error("expected error for invalid hash")
			}
		})
	}
}

func TestGenerateAdminKey(t *testing.T) {
	t.Parallel()

	key, err := GenerateAdminKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAdminKey failed: %v", err)
	}

	if !ValidateKeyFormat(key.Plaintext) {
		t.Errorf("generated key %q does not match expected format", key.Plaintext)
	}
	if len(key.Prefix) != KeyPrefixLen {
		t.Errorf("prefix length = %d, want %d", len(key.Prefix), KeyPrefixLen)
	}

	// Hash must verify against the plaintext
	ok, err := VerifyPassword(key.Plaintext, key.Hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !ok {
		t.Error("generated hash should verify against the plaintext key")
	}
}

func TestGenerateAdminKey_DefaultsToLive(t *testing.T) {
	t.Parallel()

	key, err := GenerateAdminKey("staging")
	if err != nil {
		t.Fatalf("GenerateAdminKey failed: %v", err)
	}
	parsed, err := ParseAdminKey(key.Plaintext)
	if err != nil {
		t.Fatalf("ParseAdminKey failed: %v", err)
	}
	if parsed.Env != EnvLive {
		t.Errorf("env = %s, want %s", parsed.Env, EnvLive)
	}
}

func TestParseAdminKey(t *testing.T) {
	t.Parallel()

	key, err := GenerateAdminKey(EnvTest)
	if err != nil {
		t.Fatalf("GenerateAdminKey failed: %v", err)
	}

	parsed, err := ParseAdminKey(key.Plaintext)
	if err != nil {
		t.Fatalf("ParseAdminKey failed: %v", err)
	}
	if parsed.Env != EnvTest {
		t.Errorf("env = %s, want %s", parsed.Env, EnvTest)
	}
	if parsed.Prefix != key.Prefix {
		t.Errorf("prefix = %s, want %s", parsed.Prefix, key.Prefix)
	}
	if len(parsed.Secret) != KeySecretLen {
		t.Errorf("secret length = %d, want %d", len(parsed.Secret), KeySecretLen)
	}
}

func TestParseAdminKey_Invalid(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"ck_live_short",
		"pk_live_7a9f3b_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", // wrong product prefix
		"ck_prod_7a9f3b_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", // invalid env
		"ck_live_7A9F3B_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", // uppercase prefix
	}

	for _, key := range tests {
		if _, err := ParseAdminKey(key); err == nil {
			t.Errorf("ParseAdminKey(%q) should fail", key)
		}
	}
}

func TestAdminContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := AdminFromContext(ctx); ok {
		t.Error("plain context should not be admin")
	}

	ctx = ContextWithAdmin(ctx, "7a9f3b")
	prefix, ok := AdminFromContext(ctx)
	if !ok {
		t.Fatal("context should be admin after ContextWithAdmin")
	}
	if prefix != "7a9f3b" {
		t.Errorf("prefix = %s, want 7a9f3b", prefix)
	}
}
