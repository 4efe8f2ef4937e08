package session

import "fieldnote/agent/internal/models"

type Phase string

const (
	PhaseBooting         Phase = "booting"
	PhaseRefreshing      Phase = "refreshing"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseLoggingIn       Phase = "logging_in"
	PhaseLoggingOut      Phase = "logging_out"
)

type LogoutReason string

const (
	ReasonNone           LogoutReason = "none"
	ReasonNetworkLost    LogoutReason = "network_lost"
	ReasonSessionExpired LogoutReason = "session_expired"
	ReasonUserInitiated  LogoutReason = "user_initiated"
)

// State is the authoritative session state. It is mutated only inside the
// coordinator's command loop; everyone else sees copies.
//
// Invariant: User != nil exactly when Phase == PhaseAuthenticated.
type State struct {
	Phase Phase
	User  *models.EnrichedUser

	// SplashLoading stays true until the first refresh completes,
	// regardless of its outcome.
	SplashLoading bool

	// LogoutReason records why the user was forcibly signed out. It is
	// never set by a user-initiated logout and is cleared only by an
	// explicit acknowledgement, never automatically.
	LogoutReason LogoutReason
}

// Notice is the side-channel message the UI shows when an external signal
// forced a logout. It is intentionally not part of State. The ID lets the
// shell deduplicate redeliveries across its own reconnects.
type Notice struct {
	ID      string
	Message string
}
