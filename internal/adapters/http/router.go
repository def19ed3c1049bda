package http

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dkeye/voicecall/internal/adapters/signal"
	"github.com/dkeye/voicecall/internal/app/relay"
	"github.com/dkeye/voicecall/internal/config"
	transport "github.com/dkeye/voicecall/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set(signal.ClientTokenKey, token)
		c.Next()
	}
}

// IdentityMiddleware resolves the user from the cookie session. With dev
// set, a "user" query parameter is accepted when there is no session.
func IdentityMiddleware(dev bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := sessions.Default(c).Get(signal.UserKey).(string)
		if uid == "" && dev {
			uid = c.Query("user")
		}
		if uid != "" {
			c.Set(signal.UserKey, uid)
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, rl *relay.Relay, limiter *signal.InviteRateLimiter) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("VoiceCallSessions", store))
	r.Use(ClientTokenMiddleware())
	r.Use(IdentityMiddleware(cfg.DevIdentity))

	if st, err := os.Stat(cfg.StaticPath); err == nil && st.IsDir() {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticPath, "index.html"))
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &transport.Handlers{Relay: rl, Limiter: limiter}
	ctrl := signal.NewSignalWSController(rl, limiter, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.POST("/session", h.Login)
	api.DELETE("/session", h.Logout)
	api.GET("/whoami", h.WhoAmI)
	api.GET("/presence/:id", h.Presence)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("user", c.GetString(signal.UserKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
