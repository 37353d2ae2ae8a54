// Package relayws bridges each client's voice WebSocket to the upstream
// realtime speech vendor, so API credentials never reach clients.
package relayws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/config"
	"github.com/interviewly/meetkit/internal/core"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type RelayWSController struct {
	cfg config.UpstreamConfig

	mu      sync.Mutex
	bridges map[core.SessionID]*bridge
}

func NewRelayWSController(cfg config.UpstreamConfig) *RelayWSController {
	return &RelayWSController{
		cfg:     cfg,
		bridges: make(map[core.SessionID]*bridge),
	}
}

// HandleRelay upgrades the client socket and runs a bridge until either
// side closes. One bridge per session; a reconnect replaces the old one.
func (ctl *RelayWSController) HandleRelay(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	logger := log.With().Str("module", "relayws").Str("sid", string(sid)).Logger()

	client, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}

	upstream, err := ctl.dialUpstream(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("dial upstream")
		_ = client.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":{"message":"voice upstream unavailable"}}`))
		client.Close()
		return
	}

	b := newBridge(client, upstream, logger)

	ctl.mu.Lock()
	if old, ok := ctl.bridges[sid]; ok {
		old.close()
	}
	ctl.bridges[sid] = b
	ctl.mu.Unlock()

	b.run(ctx)

	ctl.mu.Lock()
	if ctl.bridges[sid] == b {
		delete(ctl.bridges, sid)
	}
	ctl.mu.Unlock()
}

func (ctl *RelayWSController) dialUpstream(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+ctl.cfg.APIKey)

	url := ctl.cfg.URL
	if ctl.cfg.Model != "" {
		url = fmt.Sprintf("%s?model=%s", url, ctl.cfg.Model)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial voice upstream: %w", err)
	}
	return conn, nil
}

// bridge copies frames between one client socket and one upstream socket.
type bridge struct {
	client   *websocket.Conn
	upstream *websocket.Conn
	logger   zerolog.Logger
	once     sync.Once
}

func newBridge(client, upstream *websocket.Conn, logger zerolog.Logger) *bridge {
	return &bridge{client: client, upstream: upstream, logger: logger}
}

func (b *bridge) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		b.close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		b.pump(b.client, b.upstream, "client->upstream")
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		b.pump(b.upstream, b.client, "upstream->client")
	}()
	wg.Wait()
	b.logger.Info().Msg("bridge closed")
}

// pump copies frames one way. Frames pass through untouched: the client
// already speaks the vendor's event protocol.
func (b *bridge) pump(src, dst *websocket.Conn, dir string) {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			b.logger.Info().Err(err).Str("dir", dir).Msg("bridge read closed")
			return
		}
		if err := dst.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			b.logger.Error().Err(err).Str("dir", dir).Msg("bridge write error")
			return
		}
	}
}

func (b *bridge) close() {
	b.once.Do(func() {
		b.client.Close()
		b.upstream.Close()
	})
}
