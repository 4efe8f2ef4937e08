package session

import (
	"context"

	"github.com/rs/zerolog"

	"fieldnote/agent/internal/identity"
	"fieldnote/agent/internal/profile"
)

// RegistrationInput carries everything the two provisioning steps need.
type RegistrationInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

// RegistrationSaga provisions an account across two independent
// collaborators: identity first, then profile. The write is not atomic;
// when the profile step fails the identity is deleted as compensation.
type RegistrationSaga struct {
	backend  IdentityBackend
	profiles ProfileStore
	log      zerolog.Logger

	identityID string
}

func NewRegistrationSaga(backend IdentityBackend, profiles ProfileStore, log zerolog.Logger) *RegistrationSaga {
	return &RegistrationSaga{
		backend:  backend,
		profiles: profiles,
		log:      log.With().Str("component", "registration").Logger(),
	}
}

// Execute runs both steps. The returned error is always the failing
// step's own error: compensation outcomes are logged, never surfaced.
func (s *RegistrationSaga) Execute(ctx context.Context, input RegistrationInput) (string, error) {
	identityID, err := s.backend.Register(ctx, identity.RegisterInput{
		Email:    input.Email,
		Password: input.Password,
		Username: input.Username,
		FullName: input.FullName,
	})
	if err != nil {
		return "", err
	}
	s.identityID = identityID

	if err := s.profiles.CreateProfile(ctx, identityID, profile.CreateInput{
		Username: input.Username,
		FullName: input.FullName,
	}); err != nil {
		s.compensate(ctx, err)
		return "", err
	}

	return identityID, nil
}

// compensate deletes the identity created by the first step. Best effort:
// a failure here leaves an orphaned identity that only an operator can
// remove (see cmd/orphanscrub).
func (s *RegistrationSaga) compensate(ctx context.Context, cause error) {
	if err := s.backend.DeleteIdentity(ctx); err != nil {
		s.log.Error().
			Err(err).
			AnErr("cause", cause).
			Str("identity_id", s.identityID).
			Msg("rollback failed, identity orphaned; manual cleanup required")
		return
	}
	s.log.Warn().
		AnErr("cause", cause).
		Str("identity_id", s.identityID).
		Msg("profile creation failed, identity rolled back")
}
