package config

import (
	"testing"
)

func TestParseAPIKeysFiltersPlaceholders(t *testing.T) {
	t.Setenv("MISTRAL_API_KEYS", "real-key-1, YOUR_API_KEY_HERE, ,real-key-2")

	keys := parseAPIKeys()
	if len(keys) != 2 {
		t.Fatalf("Expected 2 usable keys, got %d: %v", len(keys), keys)
	}
	if keys[0] != "real-key-1" || keys[1] != "real-key-2" {
		t.Errorf("Unexpected keys: %v", keys)
	}
}

func TestParseAPIKeysNumberedFallback(t *testing.T) {
	t.Setenv("MISTRAL_API_KEYS", "")
	t.Setenv("MISTRAL_API_KEY_1", "first")
	t.Setenv("MISTRAL_API_KEY_2", "second")

	keys := parseAPIKeys()
	if len(keys) != 2 || keys[0] != "first" || keys[1] != "second" {
		t.Errorf("Unexpected keys: %v", keys)
	}
}

func TestIsAdmin(t *testing.T) {
	t.Setenv("ADMIN_USER_IDS", "100,200")

	cfg := Load()
	if !cfg.IsAdmin(100) || !cfg.IsAdmin(200) {
		t.Error("Configured admin IDs must be recognized")
	}
	if cfg.IsAdmin(300) {
		t.Error("Unknown ID must not be admin")
	}
}
