// Package ws bridges the chat platform over a WebSocket connection: the
// bridge process dials in, streams inbound updates, and receives
// outbound message frames.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/HerbHall/botforge/internal/transport"
	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.Messenger = (*Gateway)(nil)

const writeTimeout = 10 * time.Second

// Gateway is the WebSocket transport adapter. One bridge connection is
// active at a time; a newer connection replaces the previous one.
type Gateway struct {
	sink   transport.Sink
	ids    *transport.IDSequence
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a Gateway feeding inbound updates to sink.
func New(sink transport.Sink, logger *zap.Logger) *Gateway {
	return &Gateway{
		sink:   sink,
		ids:    &transport.IDSequence{},
		logger: logger,
	}
}

// ServeHTTP accepts the bridge connection and pumps inbound frames until
// the connection drops.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	g.mu.Lock()
	if g.conn != nil {
		g.conn.Close(websocket.StatusGoingAway, "replaced by new bridge connection")
	}
	g.conn = conn
	g.mu.Unlock()

	g.logger.Info("bridge connected", zap.String("remote", r.RemoteAddr))
	g.readLoop(r.Context(), conn)

	g.mu.Lock()
	if g.conn == conn {
		g.conn = nil
	}
	g.mu.Unlock()
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var in transport.Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			g.logger.Info("bridge disconnected", zap.Error(err))
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		u := in.Update
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		g.sink.Dispatch(ctx, &u)
	}
}

// SendMessage writes a message frame and returns the framework-side view
// of the sent message.
func (g *Gateway) SendMessage(ctx context.Context, chatID int64, text string) (*models.Message, error) {
	id := g.ids.Next()
	err := g.write(ctx, transport.Outbound{
		Kind:      transport.KindMessage,
		ChatID:    chatID,
		MessageID: id,
		Text:      text,
	})
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:     id,
		Chat:   models.Chat{ID: chatID},
		Text:   text,
		SentAt: time.Now().UTC(),
	}, nil
}

// DeleteMessage writes a delete frame for a previously sent message.
func (g *Gateway) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return g.write(ctx, transport.Outbound{
		Kind:      transport.KindDelete,
		ChatID:    chatID,
		MessageID: messageID,
	})
}

// SendAction writes a chat-action frame (typing and friends).
func (g *Gateway) SendAction(ctx context.Context, chatID int64, action string) error {
	return g.write(ctx, transport.Outbound{
		Kind:   transport.KindAction,
		ChatID: chatID,
		Action: action,
	})
}

func (g *Gateway) write(ctx context.Context, out transport.Outbound) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("no bridge connection")
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, out)
}
