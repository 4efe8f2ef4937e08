// Package session owns the authoritative answer to "is there an
// authenticated user, and who are they". Seven independent triggers
// assert or revoke the session: process start, OAuth deep links, app
// foreground transitions, the periodic liveness check, the connectivity
// monitor, the cross-cutting force-logout signal, and explicit user
// commands. All of them funnel into one command loop so that every
// mutation of the session state is serialized.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fieldnote/agent/internal/events"
	"fieldnote/agent/internal/ids"
	"fieldnote/agent/internal/models"
)

var ErrCoordinatorClosed = errors.New("session coordinator closed")

const forcedLogoutNotice = "Your session has expired. Please sign in again."

// Deps are the collaborators the coordinator drives. All of them are
// required except Liveness, which may be nil in tests that never reach
// the authenticated phase.
type Deps struct {
	Backend      IdentityBackend
	Profiles     ProfileStore
	Storage      LocalStorage
	Bus          EventBus
	Connectivity ConnectivitySource
	Lifecycle    LifecycleSource
	DeepLinks    DeepLinkSource
	Liveness     LivenessTimer
	Logger       zerolog.Logger
}

type Config struct {
	// SettleDelay is how long to wait after a deep-link token exchange
	// before refreshing, absorbing backend-side eventual consistency.
	SettleDelay time.Duration
}

type command struct {
	name  string
	run   func(ctx context.Context) error
	reply chan error
}

type Coordinator struct {
	backend      IdentityBackend
	profiles     ProfileStore
	storage      LocalStorage
	bus          EventBus
	connectivity ConnectivitySource
	lifecycle    LifecycleSource
	deepLinks    DeepLinkSource
	liveness     LivenessTimer
	enricher     *Enricher
	purge        PurgePolicy
	settle       time.Duration
	log          zerolog.Logger

	commands chan command
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.RWMutex
	state     State
	watchNext int
	watchers  map[int]chan State
	unsubs    []func()

	notices   chan Notice
	closeOnce sync.Once
}

func New(deps Deps, cfg Config) *Coordinator {
	logger := deps.Logger.With().Str("component", "session").Logger()
	return &Coordinator{
		backend:      deps.Backend,
		profiles:     deps.Profiles,
		storage:      deps.Storage,
		bus:          deps.Bus,
		connectivity: deps.Connectivity,
		lifecycle:    deps.Lifecycle,
		deepLinks:    deps.DeepLinks,
		liveness:     deps.Liveness,
		enricher:     NewEnricher(deps.Backend, deps.Profiles, logger),
		purge:        PurgePolicy{Allow: DefaultAllowList()},
		settle:       cfg.SettleDelay,
		log:          logger,
		commands:     make(chan command, 64),
		done:         make(chan struct{}),
		state: State{
			Phase:         PhaseBooting,
			SplashLoading: true,
			LogoutReason:  ReasonNone,
		},
		watchers: make(map[int]chan State),
		notices:  make(chan Notice, 8),
	}
}

// SetLiveness wires the liveness timer after construction: the timer's
// callback is VerifySession, so neither side can be built first. Must be
// called before Start.
func (c *Coordinator) SetLiveness(t LivenessTimer) {
	c.liveness = t
}

// Start launches the command loop and enqueues the startup command:
// complete a pending OAuth deep link if one exists, subscribe to every
// event source, then run the first refresh. Call it once.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.run()
	c.enqueue("start", c.doStart)
}

// Close tears the coordinator down: event-source subscriptions are
// disposed exactly once and the liveness timer stops. In-flight work is
// interrupted via context cancellation.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}

		c.mu.Lock()
		unsubs := c.unsubs
		c.unsubs = nil
		c.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}

		if c.liveness != nil {
			c.liveness.Close()
		}
	})
}

// State returns a snapshot of the current session state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Watch returns a latest-value channel of state snapshots plus a cancel
// func. Slow consumers see only the most recent state, never a backlog.
func (c *Coordinator) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	id := c.watchNext
	c.watchNext++
	c.watchers[id] = ch
	ch <- c.state
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}
}

// Notices is the side channel for messages the UI should surface outside
// of session state, currently only the forced-logout notice.
func (c *Coordinator) Notices() <-chan Notice {
	return c.notices
}

// Login authenticates with credentials. The LoggingIn phase doubles as a
// reentrancy guard: backend push notifications arriving mid-login are
// ignored so they cannot race the explicit command.
func (c *Coordinator) Login(ctx context.Context, email, password string) error {
	return c.enqueueWait(ctx, "login", func(ctx context.Context) error {
		return c.doLogin(ctx, email, password)
	})
}

// LoginWithExternalProvider starts the browser-based flow. It mutates no
// state; completion arrives later as a deep link or a backend push.
func (c *Coordinator) LoginWithExternalProvider(ctx context.Context) error {
	return c.enqueueWait(ctx, "external-login", func(ctx context.Context) error {
		return c.backend.StartExternalLogin(ctx)
	})
}

// Register provisions identity and profile via the registration saga and,
// on success, refreshes the session. Saga errors pass through untouched.
func (c *Coordinator) Register(ctx context.Context, input RegistrationInput) error {
	return c.enqueueWait(ctx, "register", func(ctx context.Context) error {
		return c.doRegister(ctx, input)
	})
}

// Logout is the explicit, user-initiated sign-out. It always succeeds
// locally, whatever the backend thinks about it.
func (c *Coordinator) Logout(ctx context.Context) error {
	return c.enqueueWait(ctx, "logout", func(ctx context.Context) error {
		return c.doLogout(ctx, ReasonUserInitiated)
	})
}

// RefreshSession re-resolves the current user from the backend. Safe to
// call repeatedly; with unchanged backend state it converges.
func (c *Coordinator) RefreshSession() {
	c.enqueue("refresh", c.doRefresh)
}

// VerifySession checks session liveness and forces a logout when the
// backend no longer honours it. No-op without a user.
func (c *Coordinator) VerifySession() {
	c.enqueue("verify", c.doVerify)
}

// ClearLogoutReason acknowledges a displayed forced-logout reason. The
// reason is never cleared any other way.
func (c *Coordinator) ClearLogoutReason(ctx context.Context) error {
	return c.enqueueWait(ctx, "ack-logout-reason", func(context.Context) error {
		c.update(func(s *State) { s.LogoutReason = ReasonNone })
		return nil
	})
}

// --- command loop ---

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case cmd := <-c.commands:
			err := cmd.run(c.ctx)
			if cmd.reply != nil {
				cmd.reply <- err
			} else if err != nil {
				c.log.Error().Err(err).Str("command", cmd.name).Msg("command failed")
			}
		}
	}
}

// closing returns the loop context's done channel, or nil before Start.
// A nil channel never fires in a select, so pre-Start commands queue up
// in the buffer and run once the loop starts.
func (c *Coordinator) closing() <-chan struct{} {
	if c.ctx == nil {
		return nil
	}
	return c.ctx.Done()
}

func (c *Coordinator) enqueue(name string, run func(ctx context.Context) error) {
	select {
	case c.commands <- command{name: name, run: run}:
	case <-c.closing():
	}
}

func (c *Coordinator) enqueueWait(ctx context.Context, name string, run func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- command{name: name, run: run, reply: reply}:
	case <-c.closing():
		return ErrCoordinatorClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		// The command still runs to completion; only the caller stops
		// waiting for it.
		return ctx.Err()
	}
}

// --- command handlers (only ever called from the loop goroutine) ---

func (c *Coordinator) doStart(ctx context.Context) error {
	c.subscribeSources()

	if raw := c.deepLinks.Pending(); raw != "" {
		c.completeOAuth(ctx, raw)
	}

	return c.doRefresh(ctx)
}

func (c *Coordinator) subscribeSources() {
	unsubs := []func(){
		c.backend.Subscribe(func(id *models.Identity) {
			// The guard is evaluated on arrival: the explicit login
			// command owns its transition, and a backend echo arriving
			// mid-login must not be replayed after the command finishes.
			if id != nil && c.State().Phase == PhaseLoggingIn {
				c.log.Debug().Str("identity_id", id.ID).Msg("auth push ignored during login")
				return
			}
			c.enqueue("auth-push", func(ctx context.Context) error {
				return c.doAuthPush(ctx, id)
			})
		}),
		c.lifecycle.Subscribe(func(state events.LifecycleState) {
			if state != events.Foreground {
				return
			}
			// Verify and refresh both run even when the verify already
			// forces a logout.
			c.enqueue("foreground", func(ctx context.Context) error {
				if err := c.doVerify(ctx); err != nil {
					c.log.Warn().Err(err).Msg("foreground verify failed")
				}
				return c.doRefresh(ctx)
			})
		}),
		c.connectivity.Subscribe(func(connected bool) {
			c.enqueue("connectivity", func(ctx context.Context) error {
				return c.doConnectivity(ctx, connected)
			})
		}),
		c.deepLinks.Subscribe(func(url string) {
			c.enqueue("deeplink", func(ctx context.Context) error {
				if !c.completeOAuth(ctx, url) {
					return nil
				}
				return c.doRefresh(ctx)
			})
		}),
		c.bus.Subscribe("force-logout", func() {
			c.enqueue("force-logout", func(ctx context.Context) error {
				err := c.doLogout(ctx, ReasonSessionExpired)
				c.pushNotice(Notice{ID: ids.New(), Message: forcedLogoutNotice})
				return err
			})
		}),
	}

	c.mu.Lock()
	c.unsubs = append(c.unsubs, unsubs...)
	c.mu.Unlock()
}

// completeOAuth reports whether url was an OAuth completion. Exchange
// failures are logged and still count as handled: the follow-up refresh
// resolves the truth.
func (c *Coordinator) completeOAuth(ctx context.Context, url string) bool {
	tokens, ok := ParseOAuthCallback(url)
	if !ok {
		c.log.Debug().Msg("deep link is not an oauth completion")
		return false
	}

	if err := c.backend.ExchangeTokens(ctx, tokens.Access, tokens.Refresh); err != nil {
		c.log.Warn().Err(err).Msg("token exchange failed")
		return true
	}

	c.settleWait(ctx)
	return true
}

func (c *Coordinator) doRefresh(ctx context.Context) error {
	c.update(func(s *State) {
		if s.User == nil {
			s.Phase = PhaseRefreshing
		}
	})
	defer c.update(func(s *State) { s.SplashLoading = false })

	user, err := c.enricher.Execute(ctx, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("session refresh failed")
		user = nil
	}

	if user == nil {
		c.update(func(s *State) {
			s.User = nil
			s.Phase = PhaseUnauthenticated
		})
		return nil
	}

	c.update(func(s *State) {
		s.User = user
		s.Phase = PhaseAuthenticated
	})
	return nil
}

func (c *Coordinator) doLogin(ctx context.Context, email, password string) error {
	prev := c.State()
	c.update(func(s *State) {
		s.Phase = PhaseLoggingIn
		s.User = nil
	})

	completed := false
	defer func() {
		// The guard phase always clears; on failure the pre-login state
		// comes back untouched.
		if !completed {
			c.update(func(s *State) {
				s.Phase = prev.Phase
				s.User = prev.User
			})
		}
	}()

	id, err := c.backend.Login(ctx, email, password)
	if err != nil {
		return err
	}

	user, err := c.enricher.Execute(ctx, &id)
	if err != nil {
		return err
	}

	c.update(func(s *State) {
		s.User = user
		s.Phase = PhaseAuthenticated
	})
	completed = true
	return nil
}

func (c *Coordinator) doRegister(ctx context.Context, input RegistrationInput) error {
	saga := NewRegistrationSaga(c.backend, c.profiles, c.log)
	if _, err := saga.Execute(ctx, input); err != nil {
		return err
	}
	return c.doRefresh(ctx)
}

func (c *Coordinator) doLogout(ctx context.Context, reason LogoutReason) error {
	c.update(func(s *State) {
		s.Phase = PhaseLoggingOut
		s.User = nil
	})

	c.purge.Apply(ctx, c.storage, c.log)

	if err := c.backend.Logout(ctx); err != nil {
		c.log.Error().Err(err).Msg("backend logout failed, completing local logout anyway")
	}

	recorded := ReasonNone
	if reason == ReasonNetworkLost || reason == ReasonSessionExpired {
		recorded = reason
	}
	c.update(func(s *State) {
		s.User = nil
		s.Phase = PhaseUnauthenticated
		s.LogoutReason = recorded
	})

	c.log.Info().Str("reason", string(reason)).Msg("logged out")
	return nil
}

func (c *Coordinator) doVerify(ctx context.Context) error {
	if c.State().User == nil {
		return nil
	}

	alive, err := c.backend.CheckAlive(ctx)
	if err != nil {
		// A liveness check that cannot run is not a dead session.
		c.log.Warn().Err(err).Msg("liveness check errored")
		return nil
	}
	if alive {
		return nil
	}

	return c.doLogout(ctx, ReasonSessionExpired)
}

func (c *Coordinator) doAuthPush(ctx context.Context, id *models.Identity) error {
	state := c.State()

	if id != nil {
		user, err := c.enricher.Execute(ctx, id)
		if err != nil {
			return err
		}
		c.update(func(s *State) {
			s.User = user
			s.Phase = PhaseAuthenticated
		})
		return nil
	}

	// Nil identity is an externally caused sign-out. Skip the echo of a
	// logout this coordinator just performed itself.
	if state.User == nil && state.Phase == PhaseUnauthenticated {
		return nil
	}
	return c.doLogout(ctx, ReasonUserInitiated)
}

func (c *Coordinator) doConnectivity(ctx context.Context, connected bool) error {
	if connected {
		return nil
	}
	if c.State().Phase != PhaseAuthenticated {
		return nil
	}
	return c.doLogout(ctx, ReasonNetworkLost)
}

// --- state publication ---

func (c *Coordinator) update(mutate func(*State)) {
	c.mu.Lock()
	prev := c.state
	mutate(&c.state)
	next := c.state
	watchers := make([]chan State, 0, len(c.watchers))
	for _, ch := range c.watchers {
		watchers = append(watchers, ch)
	}
	c.mu.Unlock()

	if c.liveness != nil {
		if next.Phase == PhaseAuthenticated && prev.Phase != PhaseAuthenticated {
			c.liveness.Arm()
		}
		if next.Phase != PhaseAuthenticated && prev.Phase == PhaseAuthenticated {
			c.liveness.Disarm()
		}
	}

	if next == prev {
		return
	}
	for _, ch := range watchers {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}

func (c *Coordinator) pushNotice(n Notice) {
	select {
	case c.notices <- n:
	default:
		c.log.Warn().Msg("notice channel full, dropping")
	}
}

func (c *Coordinator) settleWait(ctx context.Context) {
	if c.settle <= 0 {
		return
	}
	timer := time.NewTimer(c.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
