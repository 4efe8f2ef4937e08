package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fieldnote/agent/internal/events"
	"fieldnote/agent/internal/identity"
	"fieldnote/agent/internal/session"
)

// SessionController is the slice of the coordinator the control API
// exposes to the UI shell.
type SessionController interface {
	State() session.State
	Watch() (<-chan session.State, func())
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, input session.RegistrationInput) error
	Logout(ctx context.Context) error
	LoginWithExternalProvider(ctx context.Context) error
	RefreshSession()
	ClearLogoutReason(ctx context.Context) error
	Notices() <-chan session.Notice
}

// AvatarResolver turns an avatar object reference into a fetchable URL.
type AvatarResolver interface {
	ResolveURL(ctx context.Context, ref string) string
}

type DeepLinkSink interface {
	Dispatch(url string)
}

type LifecycleSink interface {
	Dispatch(state events.LifecycleState)
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	Username  string    `json:"username,omitempty"`
	FullName  string    `json:"fullName,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Role      string    `json:"role"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
}

type stateResponse struct {
	Phase         string        `json:"phase"`
	User          *userResponse `json:"user"`
	SplashLoading bool          `json:"splashLoading"`
	LogoutReason  string        `json:"logoutReason"`
}

func (s *Server) stateResponse(ctx context.Context, state session.State) stateResponse {
	resp := stateResponse{
		Phase:         string(state.Phase),
		SplashLoading: state.SplashLoading,
		LogoutReason:  string(state.LogoutReason),
	}
	if state.User != nil {
		resp.User = &userResponse{
			ID:        state.User.ID,
			Email:     state.User.Email,
			CreatedAt: state.User.CreatedAt,
			Username:  state.User.Username,
			FullName:  state.User.FullName,
			Bio:       state.User.Bio,
			Role:      string(state.User.Role),
		}
		if s.avatars != nil {
			resp.User.AvatarURL = s.avatars.ResolveURL(ctx, state.User.AvatarRef)
		}
	}
	return resp
}

func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.stateResponse(c.Request.Context(), s.sessions.State()))
}

// watchSession long-polls: it returns on the first state change after the
// request arrives, or the current state when the window times out.
func (s *Server) watchSession(c *gin.Context) {
	watch, cancel := s.sessions.Watch()
	defer cancel()

	// Drop the snapshot the subscription starts with.
	select {
	case <-watch:
	default:
	}

	timer := time.NewTimer(s.watchTimeout)
	defer timer.Stop()

	select {
	case state := <-watch:
		c.JSON(http.StatusOK, s.stateResponse(c.Request.Context(), state))
	case <-timer.C:
		c.JSON(http.StatusOK, s.stateResponse(c.Request.Context(), s.sessions.State()))
	case <-c.Request.Context().Done():
		c.Status(http.StatusRequestTimeout)
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.sessions.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, identity.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.stateResponse(c.Request.Context(), s.sessions.State()))
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Username string `json:"username" binding:"required"`
	FullName string `json:"fullName"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.sessions.Register(c.Request.Context(), session.RegistrationInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.stateResponse(c.Request.Context(), s.sessions.State()))
}

func (s *Server) logout(c *gin.Context) {
	if err := s.sessions.Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) externalLogin(c *gin.Context) {
	if err := s.sessions.LoginWithExternalProvider(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) refresh(c *gin.Context) {
	s.sessions.RefreshSession()
	c.Status(http.StatusAccepted)
}

func (s *Server) ackLogoutReason(c *gin.Context) {
	if err := s.sessions.ClearLogoutReason(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// nextNotice long-polls the coordinator's notice channel. 204 means no
// notice arrived within the window; the shell simply polls again.
func (s *Server) nextNotice(c *gin.Context) {
	timer := time.NewTimer(s.watchTimeout)
	defer timer.Stop()

	select {
	case notice := <-s.sessions.Notices():
		c.JSON(http.StatusOK, gin.H{
			"id":      notice.ID,
			"message": notice.Message,
		})
	case <-timer.C:
		c.Status(http.StatusNoContent)
	case <-c.Request.Context().Done():
		c.Status(http.StatusRequestTimeout)
	}
}

type deepLinkRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) deepLink(c *gin.Context) {
	var req deepLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.deepLinks.Dispatch(req.URL)
	c.Status(http.StatusAccepted)
}

type lifecycleRequest struct {
	State string `json:"state" binding:"required,oneof=foreground background"`
}

func (s *Server) lifecycleTransition(c *gin.Context) {
	var req lifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.lifecycle.Dispatch(events.LifecycleState(req.State))
	c.Status(http.StatusAccepted)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"phase":  string(s.sessions.State().Phase),
	})
}
