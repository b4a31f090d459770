package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/solana"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Envelopes buffered per subscriber before it is dropped.
	sendBuffer = 256
)

// Hub streams published events to websocket subscribers. A subscriber may
// pass ?mint=<base58> to receive only that token's events. Subscribers that
// fall behind by more than sendBuffer events are disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	mint *solana.Pubkey
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// NewHub creates a hub. checkOrigin may be nil to accept same-origin
// requests only.
func NewHub(log *logrus.Entry, checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		log:      log,
		subs:     make(map[*subscriber]struct{}),
	}
}

var _ Sink = (*Hub)(nil)

// Publish sends env to every matching subscriber without blocking.
func (h *Hub) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.mint != nil && *s.mint != env.Mint {
			continue
		}
		select {
		case s.send <- data:
		default:
			h.log.WithField("remote", s.conn.RemoteAddr().String()).Warn("subscriber too slow, dropping")
			delete(h.subs, s)
			s.close()
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter *solana.Pubkey
	if m := r.URL.Query().Get("mint"); m != "" {
		pk, err := solana.ParsePubkey(m)
		if err != nil {
			http.Error(w, "invalid mint", http.StatusBadRequest)
			return
		}
		filter = &pk
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade")
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer), mint: filter}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	observability.UpdateStreamSubscribers(len(h.subs))
	h.mu.Unlock()

	go h.writePump(s)
	go h.readPump(s)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		s.close()
	}
	observability.UpdateStreamSubscribers(0)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		s.close()
		observability.UpdateStreamSubscribers(len(h.subs))
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(s)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(s)
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
