package main

import (
	"context"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/PKBEATS21/compat-study-find/matching"
	"github.com/PKBEATS21/compat-study-find/store"
)

const (
	liveSendBuffer    = 16
	livePingPeriod    = 30 * time.Second
	livePongWait      = 60 * time.Second
	liveWriteWait     = 10 * time.Second
	liveBatchWait     = 2 * time.Millisecond
	liveMaxConcurrent = 8
)

// liveEvent is what the feed writes to a socket.
type liveEvent struct {
	Type string `json:"type"` // "matches" | "error"
	Data any    `json:"data,omitempty"`
}

type liveClient struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan liveEvent
	done   chan struct{}
}

// liveHub keeps the sockets of connected requesters and pushes them a fresh
// ranking whenever theirs changes.
type liveHub struct {
	clientsByUser map[uuid.UUID]map[*liveClient]bool
	fingerprints  map[uuid.UUID]uint64
	mu            sync.RWMutex

	src        store.BatchSource
	rankerOpts []matching.Option
	interval   time.Duration
	upgrader   websocket.Upgrader
	metrics    *metrics
	log        zerolog.Logger
}

func newLiveHub(src store.BatchSource, interval time.Duration, origins []string, m *metrics, log zerolog.Logger, opts ...matching.Option) *liveHub {
	return &liveHub{
		clientsByUser: make(map[uuid.UUID]map[*liveClient]bool),
		fingerprints:  make(map[uuid.UUID]uint64),
		src:           src,
		rankerOpts:    opts,
		interval:      interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin(origins),
		},
		metrics: m,
		log:     log.With().Str("component", "live_feed").Logger(),
	}
}

func (h *liveHub) String() string { return "live-feed" }

func (h *liveHub) register(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*liveClient]bool)
	}
	h.clientsByUser[c.userID][c] = true
	h.metrics.liveClients.Inc()
}

func (h *liveHub) unregister(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		if !peers[c] {
			return
		}
		delete(peers, c)
		h.metrics.liveClients.Dec()
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
			delete(h.fingerprints, c.userID)
		}
	}
}

func (h *liveHub) connectedUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(h.clientsByUser))
	for id := range h.clientsByUser {
		ids = append(ids, id)
	}
	return ids
}

func (h *liveHub) sendToUser(userID uuid.UUID, evt liveEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByUser[userID] {
		select {
		case c.send <- evt:
		default:
			// Drop the update if the client's buffer is full.
		}
	}
}

// publish sends evt unless the user already has exactly this payload.
func (h *liveHub) publish(userID uuid.UUID, evt liveEvent, force bool) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error().Err(err).Msg("Cannot encode live event")
		return
	}
	sum := fnv.New64a()
	_, _ = sum.Write(payload)
	fp := sum.Sum64()

	h.mu.Lock()
	if _, connected := h.clientsByUser[userID]; !connected {
		h.mu.Unlock()
		return
	}
	changed := h.fingerprints[userID] != fp
	h.fingerprints[userID] = fp
	h.mu.Unlock()

	if changed || force {
		h.sendToUser(userID, evt)
	}
}

// rankEvent turns one ranking pass into the event a client should see.
func (h *liveHub) rankEvent(ctx context.Context, ranker *matching.Ranker, userID uuid.UUID) (liveEvent, bool) {
	status, body, err := rankFor(ctx, ranker, userID, 0)
	if err != nil {
		if ctx.Err() != nil {
			return liveEvent{}, false
		}
		h.log.Warn().Err(err).Str("requester_id", userID.String()).Msg("Live ranking failed")
		return liveEvent{Type: "error", Data: "store_unavailable"}, true
	}
	if status != http.StatusOK {
		return liveEvent{Type: "error", Data: matching.ReasonIncompleteProfile}, true
	}
	return liveEvent{Type: "matches", Data: body}, true
}

// refresh re-ranks every connected requester over one batched view of the
// store, so concurrent point lookups share queries.
func (h *liveHub) refresh(ctx context.Context) {
	users := h.connectedUsers()
	if len(users) == 0 {
		return
	}
	ranker := matching.NewRanker(store.NewBatched(h.src, liveBatchWait), h.rankerOpts...)

	var g errgroup.Group
	g.SetLimit(liveMaxConcurrent)
	for _, id := range users {
		id := id
		g.Go(func() error {
			if evt, ok := h.rankEvent(ctx, ranker, id); ok {
				h.publish(id, evt, false)
			}
			return nil
		})
	}
	_ = g.Wait()
	h.log.Debug().Int("requesters", len(users)).Msg("Live feed refreshed")
}

// Serve runs the periodic refresh until ctx ends, then closes every socket.
func (h *liveHub) Serve(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-ticker.C:
			h.refresh(ctx)
		}
	}
}

func (h *liveHub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, peers := range h.clientsByUser {
		for c := range peers {
			_ = c.conn.Close()
		}
	}
}

func (h *liveHub) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("WS upgrade failed")
		return
	}

	c := &liveClient{
		userID: userID,
		conn:   conn,
		send:   make(chan liveEvent, liveSendBuffer),
		done:   make(chan struct{}),
	}
	h.register(c)
	go h.writer(c)

	// The first ranking is sent straight away, without batching.
	if evt, ok := h.rankEvent(r.Context(), matching.NewRanker(h.src, h.rankerOpts...), userID); ok {
		h.publish(userID, evt, true)
	}

	h.reader(c)
}

// reader only drains control frames; clients have nothing to say.
func (h *liveHub) reader(c *liveClient) {
	defer func() {
		h.unregister(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *liveHub) writer(c *liveClient) {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case evt := <-c.send:
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *liveHub) clientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userID])
}
