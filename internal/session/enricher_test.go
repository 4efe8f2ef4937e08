package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"fieldnote/agent/internal/models"
)

func TestEnricherNoSession(t *testing.T) {
	backend := &fakeBackend{}
	enricher := NewEnricher(backend, &fakeProfiles{}, zerolog.Nop())

	user, err := enricher.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil when no session exists", user)
	}
}

func TestEnricherSessionFetchErrorPropagates(t *testing.T) {
	wantErr := errors.New("backend down")
	backend := &fakeBackend{sessionErr: wantErr}
	enricher := NewEnricher(backend, &fakeProfiles{}, zerolog.Nop())

	_, err := enricher.Execute(context.Background(), nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

func TestEnricherBareIdentityWhenProfileMissing(t *testing.T) {
	enricher := NewEnricher(&fakeBackend{}, &fakeProfiles{}, zerolog.Nop())

	user, err := enricher.Execute(context.Background(), &models.Identity{
		ID:         "id-1",
		Email:      "a@b.com",
		AvatarHint: "avatars/id-1.png",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if user == nil {
		t.Fatal("user = nil, want a bare identity view")
	}
	if user.Role != models.RoleMember {
		t.Errorf("role = %q, want the member default", user.Role)
	}
	if user.AvatarRef != "avatars/id-1.png" {
		t.Errorf("avatar ref = %q, want the identity hint", user.AvatarRef)
	}
	if user.Username != "" {
		t.Errorf("username = %q, want empty without a profile", user.Username)
	}
}

func TestEnricherDegradesOnProfileLookupError(t *testing.T) {
	profiles := &fakeProfiles{existsErr: errors.New("profile service down")}
	enricher := NewEnricher(&fakeBackend{}, profiles, zerolog.Nop())

	user, err := enricher.Execute(context.Background(), &models.Identity{ID: "id-1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("execute: %v, want degraded success", err)
	}
	if user == nil || user.ID != "id-1" {
		t.Fatalf("user = %+v, want the bare identity", user)
	}
}

func TestEnricherDegradesOnProfileFetchError(t *testing.T) {
	profiles := &fakeProfiles{
		profiles: map[string]*models.Profile{"id-1": {IdentityID: "id-1"}},
		getErr:   errors.New("timeout"),
	}
	enricher := NewEnricher(&fakeBackend{}, profiles, zerolog.Nop())

	user, err := enricher.Execute(context.Background(), &models.Identity{ID: "id-1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("execute: %v, want degraded success", err)
	}
	if user == nil || user.Email != "a@b.com" {
		t.Fatalf("user = %+v, want the bare identity", user)
	}
}

func TestEnricherMergeProfileWins(t *testing.T) {
	profiles := &fakeProfiles{
		profiles: map[string]*models.Profile{
			"id-1": {
				IdentityID: "id-1",
				Username:   "ada",
				FullName:   "Ada Lovelace",
				Bio:        "first programmer",
				Role:       models.RoleStaff,
				AvatarRef:  "avatars/ada.png",
			},
		},
	}
	enricher := NewEnricher(&fakeBackend{}, profiles, zerolog.Nop())

	user, err := enricher.Execute(context.Background(), &models.Identity{
		ID:         "id-1",
		Email:      "ada@b.com",
		AvatarHint: "avatars/hint.png",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if user.Username != "ada" || user.FullName != "Ada Lovelace" || user.Bio != "first programmer" {
		t.Errorf("profile fields not merged: %+v", user)
	}
	if user.Role != models.RoleStaff {
		t.Errorf("role = %q, want the profile role", user.Role)
	}
	if user.AvatarRef != "avatars/ada.png" {
		t.Errorf("avatar ref = %q, want the profile ref over the identity hint", user.AvatarRef)
	}
	if user.Email != "ada@b.com" {
		t.Errorf("email = %q, identity email must survive the merge", user.Email)
	}
}

func TestEnricherMergeKeepsIdentityFieldsForEmptyProfile(t *testing.T) {
	profiles := &fakeProfiles{
		profiles: map[string]*models.Profile{"id-1": {IdentityID: "id-1"}},
	}
	enricher := NewEnricher(&fakeBackend{}, profiles, zerolog.Nop())

	user, err := enricher.Execute(context.Background(), &models.Identity{
		ID:         "id-1",
		Email:      "a@b.com",
		AvatarHint: "avatars/hint.png",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if user.Role != models.RoleMember {
		t.Errorf("role = %q, empty profile role must not clear the default", user.Role)
	}
	if user.AvatarRef != "avatars/hint.png" {
		t.Errorf("avatar ref = %q, empty profile ref must keep the hint", user.AvatarRef)
	}
}
