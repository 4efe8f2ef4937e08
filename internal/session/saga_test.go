package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestSagaBothStepsSucceed(t *testing.T) {
	backend := &fakeBackend{registerID: "id-7"}
	profiles := &fakeProfiles{}
	saga := NewRegistrationSaga(backend, profiles, zerolog.Nop())

	identityID, err := saga.Execute(context.Background(), RegistrationInput{
		Email:    "a@b.com",
		Password: "secretpass",
		Username: "ada",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if identityID != "id-7" {
		t.Errorf("identity id = %q, want id-7", identityID)
	}
	if len(profiles.created) != 1 || profiles.created[0] != "id-7" {
		t.Errorf("profiles created = %v, want [id-7]", profiles.created)
	}
	if backend.deleteCalls != 0 {
		t.Errorf("delete calls = %d, compensation must not run on success", backend.deleteCalls)
	}
}

func TestSagaIdentityStepFails(t *testing.T) {
	wantErr := errors.New("email taken")
	backend := &fakeBackend{registerErr: wantErr}
	profiles := &fakeProfiles{}
	saga := NewRegistrationSaga(backend, profiles, zerolog.Nop())

	_, err := saga.Execute(context.Background(), RegistrationInput{Email: "a@b.com"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if len(profiles.created) != 0 {
		t.Errorf("profile created despite identity failure")
	}
	if backend.deleteCalls != 0 {
		t.Errorf("delete calls = %d, nothing to compensate", backend.deleteCalls)
	}
}

func TestSagaProfileStepFailsCompensates(t *testing.T) {
	wantErr := errors.New("profile service down")
	backend := &fakeBackend{registerID: "id-7"}
	profiles := &fakeProfiles{createErr: wantErr}
	saga := NewRegistrationSaga(backend, profiles, zerolog.Nop())

	_, err := saga.Execute(context.Background(), RegistrationInput{Email: "a@b.com", Username: "ada"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want the profile step's own error", err)
	}
	if backend.deleteCalls != 1 {
		t.Errorf("delete calls = %d, want exactly one compensation", backend.deleteCalls)
	}
}

func TestSagaCompensationFailureStillReturnsOriginalError(t *testing.T) {
	wantErr := errors.New("profile service down")
	backend := &fakeBackend{registerID: "id-7", deleteErr: errors.New("delete rejected")}
	profiles := &fakeProfiles{createErr: wantErr}
	saga := NewRegistrationSaga(backend, profiles, zerolog.Nop())

	_, err := saga.Execute(context.Background(), RegistrationInput{Email: "a@b.com"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, compensation outcome must never replace the cause", err)
	}
	if backend.deleteCalls != 1 {
		t.Errorf("delete calls = %d, want 1", backend.deleteCalls)
	}
}
