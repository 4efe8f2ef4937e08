package session

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/rs/zerolog"
)

func TestPurgeKeepsAllowListOnly(t *testing.T) {
	store := newFakeStorage(
		KeyThemePreference,
		KeyLanguagePreference,
		"session_token",
		"cached_feed",
		"draft_note",
	)
	policy := PurgePolicy{Allow: DefaultAllowList()}

	policy.Apply(context.Background(), store, zerolog.Nop())

	remaining := store.remaining()
	sort.Strings(remaining)
	want := []string{KeyLanguagePreference, KeyThemePreference}
	if len(remaining) != len(want) {
		t.Fatalf("remaining = %v, want %v", remaining, want)
	}
	for i, key := range want {
		if remaining[i] != key {
			t.Fatalf("remaining = %v, want %v", remaining, want)
		}
	}
}

func TestPurgeNothingToDelete(t *testing.T) {
	store := newFakeStorage(KeyThemePreference)
	store.delErr = errors.New("must not be called")
	policy := PurgePolicy{Allow: DefaultAllowList()}

	policy.Apply(context.Background(), store, zerolog.Nop())

	if got := store.remaining(); len(got) != 1 {
		t.Errorf("remaining = %v, want the allow-listed key untouched", got)
	}
}

func TestPurgeSwallowsListError(t *testing.T) {
	store := newFakeStorage("session_token")
	store.listErr = errors.New("storage offline")
	policy := PurgePolicy{Allow: DefaultAllowList()}

	// Must not panic or propagate; the logout flow depends on that.
	policy.Apply(context.Background(), store, zerolog.Nop())
}

func TestPurgeSwallowsRemoveError(t *testing.T) {
	store := newFakeStorage("session_token")
	store.delErr = errors.New("storage offline")
	policy := PurgePolicy{Allow: DefaultAllowList()}

	policy.Apply(context.Background(), store, zerolog.Nop())

	if got := store.remaining(); len(got) != 1 {
		t.Errorf("remaining = %v, keys must survive a failed removal", got)
	}
}
