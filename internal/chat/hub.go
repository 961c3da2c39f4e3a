// Package chat is the WebSocket room: one hub, many clients, one broadcast
// domain. The economy engine only ever sees (nickname, text) in and Message
// events out.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"

	"github.com/gorilla/websocket"

	"empirechat/internal/economy"
	"empirechat/internal/ledger"
	"empirechat/internal/metrics"
)

var nicknameRE = regexp.MustCompile(`^\S{1,32}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The room is nickname-keyed and unauthenticated; origin checks add
	// nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler consumes one inbound chat line and yields the outbound events.
type Handler interface {
	Handle(ctx context.Context, nickname, text string) []economy.Outbound
}

// History replays recent chat lines to late joiners.
type History interface {
	RecentChats(ctx context.Context, n int) ([]ledger.ChatRecord, error)
}

// Hub owns the set of connected clients and implements economy.Broadcaster.
type Hub struct {
	log     *slog.Logger
	history History
	replayN int
	metrics *metrics.Collector

	handler Handler

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHub(history History, replayN int, logger *slog.Logger, collector *metrics.Collector) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:     logger,
		history: history,
		replayN: replayN,
		metrics: collector,
		clients: make(map[*Client]struct{}),
	}
}

// SetHandler wires the dispatcher in. The hub and the dispatcher reference
// each other (hub broadcasts for the dispatcher's background work), so one
// side is attached after construction.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Broadcast queues msg on every connected client.
func (h *Hub) Broadcast(msg economy.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.trySend(msg)
	}
}

// ServeWS upgrades the request and runs the connection until it drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	nickname := r.URL.Query().Get("nick")
	if !nicknameRE.MatchString(nickname) {
		http.Error(w, "nick must be 1-32 characters without spaces", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}

	client := newClient(h, conn, nickname)
	h.register(client)
	h.metrics.ClientConnected()
	h.log.Info("client joined", "nickname", nickname, "conn", client.id)

	h.replay(r.Context(), client)
	h.Broadcast(economy.Message{
		Msg:  fmt.Sprintf("🚀 %s joined the empire!", nickname),
		Type: economy.MsgSystem,
	})

	go client.writePump()
	client.readPump(r.Context())

	h.unregister(client)
	h.metrics.ClientDisconnected()
	h.log.Info("client left", "nickname", nickname, "conn", client.id)
}

// replay sends the most recent history to a fresh joiner, oldest first.
func (h *Hub) replay(ctx context.Context, client *Client) {
	if h.history == nil || h.replayN <= 0 {
		return
	}
	records, err := h.history.RecentChats(ctx, h.replayN)
	if err != nil {
		h.log.Error("history replay failed", "err", err)
		return
	}
	for _, rec := range records {
		client.trySend(economy.Message{
			Nickname: rec.Nickname,
			Msg:      rec.Msg,
			Type:     economy.MsgType(rec.Type),
			Rank:     rec.Rank,
		})
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

// unregister removes the client and closes its send queue under the hub lock,
// so Broadcast can never write to a closed channel.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
