package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Gateway upgrades incoming HTTP requests to websocket subscribers and
// keeps each one registered until its connection goes away.
type Gateway struct {
	registry     *Registry
	writeTimeout time.Duration
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

func NewGateway(registry *Registry, writeTimeout time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		registry:     registry,
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin; the feed is public.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	sub := NewConn(conn, g.writeTimeout)
	g.registry.Add(sub)
	g.logger.Info("subscriber connected",
		zap.String("remote", sub.RemoteAddr()), zap.Int("total", g.registry.Len()))

	// Drain incoming frames until the connection dies. There is no
	// client->server protocol; reads only surface closure.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// The broadcaster may have evicted this subscriber already; Remove
	// is idempotent either way.
	g.registry.Remove(sub)
	_ = conn.Close()
	g.logger.Info("subscriber disconnected",
		zap.String("remote", sub.RemoteAddr()), zap.Int("total", g.registry.Len()))
}
