package http

import (
	"net/http"

	"github.com/dkeye/voicecall/internal/adapters/signal"
	"github.com/dkeye/voicecall/internal/app/relay"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const displayNameKey = "display_name"

type LoginRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	DisplayName string `json:"display_name"`
}

type WhoAmIResponse struct {
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	Channels    int           `json:"channels"`
}

type PresenceResponse struct {
	UserID   domain.UserID `json:"user_id"`
	Online   bool          `json:"online"`
	Channels int           `json:"channels"`
}

// Handlers serves the small REST surface around the relay.
type Handlers struct {
	Relay   *relay.Relay
	Limiter *signal.InviteRateLimiter
}

func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid user_id"})
		return
	}
	user, err := domain.NewUser(req.UserID, req.DisplayName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := sessions.Default(c)
	sess.Set(signal.UserKey, string(user.ID))
	sess.Set(displayNameKey, user.DisplayName)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", string(user.ID)).Msg("login")
	c.JSON(http.StatusOK, user)
}

// Logout forgets the session and closes every signaling channel of the user.
func (h *Handlers) Logout(c *gin.Context) {
	uid := domain.UserID(c.GetString(signal.UserKey))
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	closed := h.Relay.Disconnect(uid)
	if h.Limiter != nil {
		h.Limiter.Forget(uid)
	}

	sess := sessions.Default(c)
	sess.Clear()
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	log.Info().Str("module", "adapters.http").Str("user", string(uid)).Int("closed", closed).Msg("logout")
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

func (h *Handlers) WhoAmI(c *gin.Context) {
	uid := domain.UserID(c.GetString(signal.UserKey))
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	name, _ := sessions.Default(c).Get(displayNameKey).(string)
	if name == "" {
		name = string(uid)
	}
	c.JSON(http.StatusOK, WhoAmIResponse{
		UserID:      uid,
		DisplayName: name,
		Channels:    h.Relay.Registry().Count(uid),
	})
}

func (h *Handlers) Presence(c *gin.Context) {
	uid, err := domain.ParseUserID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n := h.Relay.Registry().Count(uid)
	c.JSON(http.StatusOK, PresenceResponse{UserID: uid, Online: n > 0, Channels: n})
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "online": h.Relay.Registry().Online()})
}
