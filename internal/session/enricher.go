package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"fieldnote/agent/internal/models"
	"fieldnote/agent/internal/profile"
)

// Enricher merges an identity with its profile (if any) into the user
// view published in session state. It is the only constructor of
// EnrichedUser values.
type Enricher struct {
	backend  IdentityBackend
	profiles ProfileStore
	log      zerolog.Logger
}

func NewEnricher(backend IdentityBackend, profiles ProfileStore, log zerolog.Logger) *Enricher {
	return &Enricher{
		backend:  backend,
		profiles: profiles,
		log:      log.With().Str("component", "enricher").Logger(),
	}
}

// Execute resolves the enriched user for id, fetching the current session
// when id is nil. A nil result with nil error means no session. Profile
// trouble of any kind degrades to the bare identity; the caller always
// gets a usable user when a session exists.
func (e *Enricher) Execute(ctx context.Context, id *models.Identity) (*models.EnrichedUser, error) {
	if id == nil {
		current, err := e.backend.GetSession(ctx)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
		id = current
	}

	exists, err := e.profiles.CheckExists(ctx, id.ID)
	if err != nil {
		e.log.Warn().Err(err).Str("identity_id", id.ID).Msg("profile lookup failed, using bare identity")
		return bareUser(id), nil
	}
	if !exists {
		return bareUser(id), nil
	}

	prof, err := e.profiles.GetProfile(ctx, id.ID)
	if err != nil || prof == nil {
		if err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
			e.log.Warn().Err(err).Str("identity_id", id.ID).Msg("profile fetch failed, using bare identity")
		}
		return bareUser(id), nil
	}

	return merge(id, prof), nil
}

func bareUser(id *models.Identity) *models.EnrichedUser {
	return &models.EnrichedUser{
		ID:        id.ID,
		Email:     id.Email,
		CreatedAt: id.CreatedAt,
		Role:      models.RoleMember,
		AvatarRef: id.AvatarHint,
	}
}

// merge lets profile fields win over whatever the identity hints at.
func merge(id *models.Identity, prof *models.Profile) *models.EnrichedUser {
	user := bareUser(id)
	if prof.Username != "" {
		user.Username = prof.Username
	}
	if prof.FullName != "" {
		user.FullName = prof.FullName
	}
	if prof.Bio != "" {
		user.Bio = prof.Bio
	}
	if prof.Role != "" {
		user.Role = prof.Role
	}
	if prof.AvatarRef != "" {
		user.AvatarRef = prof.AvatarRef
	}
	return user
}
