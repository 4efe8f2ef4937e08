package session

import (
	"context"

	"fieldnote/agent/internal/events"
	"fieldnote/agent/internal/identity"
	"fieldnote/agent/internal/models"
	"fieldnote/agent/internal/profile"
)

// IdentityBackend is the raw authentication provider. Subscribe delivers
// push notifications of identity changes: a non-nil identity when a
// session appears, nil when one is revoked.
type IdentityBackend interface {
	Login(ctx context.Context, email, password string) (models.Identity, error)
	Logout(ctx context.Context) error
	GetSession(ctx context.Context) (*models.Identity, error)
	ExchangeTokens(ctx context.Context, access, refresh string) error
	Register(ctx context.Context, input identity.RegisterInput) (string, error)
	DeleteIdentity(ctx context.Context) error
	CheckAlive(ctx context.Context) (bool, error)
	StartExternalLogin(ctx context.Context) error
	Subscribe(fn func(*models.Identity)) func()
}

// ProfileStore fetches and creates profile records keyed by identity id.
// A missing profile is reported via CheckExists / ErrProfileNotFound, not
// as a failure.
type ProfileStore interface {
	CheckExists(ctx context.Context, identityID string) (bool, error)
	GetProfile(ctx context.Context, identityID string) (*models.Profile, error)
	CreateProfile(ctx context.Context, identityID string, input profile.CreateInput) error
}

// LocalStorage is the slice of the device store the logout purge needs.
type LocalStorage interface {
	ListKeys(ctx context.Context) ([]string, error)
	RemoveMany(ctx context.Context, keys []string) error
}

type ConnectivitySource interface {
	Subscribe(fn func(connected bool)) func()
}

type LifecycleSource interface {
	Subscribe(fn func(events.LifecycleState)) func()
}

type DeepLinkSource interface {
	Pending() string
	Subscribe(fn func(url string)) func()
}

// EventBus is the injected cross-cutting signal bus; the only topic the
// coordinator cares about is "force-logout".
type EventBus interface {
	Publish(topic string)
	Subscribe(topic string, fn func()) func()
}

// LivenessTimer fires session verification on an interval while armed.
type LivenessTimer interface {
	Arm()
	Disarm()
	Close()
}
