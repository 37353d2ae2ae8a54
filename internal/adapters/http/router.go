// Package http wires the REST and WebSocket endpoints of the meeting server.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/adapters/assist"
	"github.com/interviewly/meetkit/internal/adapters/relayws"
	"github.com/interviewly/meetkit/internal/adapters/signal"
	"github.com/interviewly/meetkit/internal/adapters/tokens"
	"github.com/interviewly/meetkit/internal/config"
	"github.com/interviewly/meetkit/internal/meeting"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a stable session id used as
// the WebSocket SessionID.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Deps is everything the router needs, wired once in main.
type Deps struct {
	Cfg    *config.Config
	Signal *signal.SignalWSController
	Relay  *relayws.RelayWSController
	Store  *meeting.Store
	Tokens *tokens.Issuer
	Assist *assist.Assistant
}

func SetupRouter(ctx context.Context, d Deps) *gin.Engine {
	if d.Cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if d.Cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(d.Cfg.Secret))
	r.Use(sessions.Sessions("MeetkitSessions", store))
	r.Use(ClientTokenMiddleware())

	if d.Cfg.StaticPath != "" {
		r.Static("/static", d.Cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(d.Cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", d.Cfg.StaticPath).Msg("router setup")

	h := &handlers{deps: d}
	api := r.Group("/api")

	api.POST("/meetings", h.createMeeting)
	api.GET("/meetings/:id", h.getMeeting)
	api.GET("/meetings/:id/participants", h.listParticipants)
	api.GET("/meetings/:id/chat", h.listChat)
	api.POST("/meetings/:id/chat", h.postChat)
	api.POST("/meetings/:id/assist", h.assistReply)
	api.POST("/meetings/:id/end", h.endMeeting)

	api.POST("/rooms/token", h.issueRoomToken)

	api.GET("/ws/rooms", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws rooms endpoint hit")
		d.Signal.HandleSignal(ctx, c)
	})
	api.GET("/ws/relay", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws relay endpoint hit")
		d.Relay.HandleRelay(ctx, c)
	})

	return r
}
