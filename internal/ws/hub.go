package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/DHenson1337/mini-game-playground-server/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	EventScoreUpdate = "score_update"
	EventActiveUsers = "active_users"
	EventJoinGame    = "join_game"
	EventLeaveGame   = "leave_game"
	EventAuthUser    = "auth_user"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub owns every audience map. All mutations run on the Run goroutine in the
// order they were queued, so publishes to a game reach each member in
// acceptance order.
type Hub struct {
	ops  chan func()
	quit chan struct{}
	once sync.Once

	clients map[*Client]string
	games   map[string]map[*Client]struct{}
	member  map[*Client]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		ops:     make(chan func(), 256),
		quit:    make(chan struct{}),
		clients: make(map[*Client]string),
		games:   make(map[string]map[*Client]struct{}),
		member:  make(map[*Client]map[string]struct{}),
	}
}

// Run processes queued operations until ctx is done or Close is called.
// Remaining clients have their send channels closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.remove(c)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.quit:
			return
		case op := <-h.ops:
			op()
		}
	}
}

func (h *Hub) Close() {
	h.once.Do(func() { close(h.quit) })
}

// enqueue drops the operation once the hub has stopped.
func (h *Hub) enqueue(op func()) {
	select {
	case h.ops <- op:
	case <-h.quit:
	}
}

func (h *Hub) Register(c *Client) {
	h.enqueue(func() {
		if _, ok := h.clients[c]; ok {
			return
		}
		h.clients[c] = ""
		h.member[c] = make(map[string]struct{})
		metrics.WsConnections.Inc()
		log.Debug().Str("client", c.id).Msg("ws connected")
	})
}

func (h *Hub) Join(c *Client, gameID string) {
	h.enqueue(func() {
		if _, ok := h.clients[c]; !ok {
			return
		}
		group := h.games[gameID]
		if group == nil {
			group = make(map[*Client]struct{})
			h.games[gameID] = group
		}
		group[c] = struct{}{}
		h.member[c][gameID] = struct{}{}
	})
}

func (h *Hub) Leave(c *Client, gameID string) {
	h.enqueue(func() { h.leave(c, gameID) })
}

func (h *Hub) leave(c *Client, gameID string) {
	if group := h.games[gameID]; group != nil {
		delete(group, c)
		if len(group) == 0 {
			delete(h.games, gameID)
		}
	}
	if games := h.member[c]; games != nil {
		delete(games, gameID)
	}
}

// Authenticate associates a username with the connection and re-announces
// the active user count.
func (h *Hub) Authenticate(c *Client, username string) {
	name := strings.ToLower(strings.TrimSpace(username))
	if name == "" {
		return
	}
	h.enqueue(func() {
		if _, ok := h.clients[c]; !ok {
			return
		}
		h.clients[c] = name
		h.announcePresence()
	})
}

func (h *Hub) Disconnect(c *Client) {
	h.enqueue(func() {
		if h.remove(c) {
			h.announcePresence()
		}
	})
}

// PublishScore sends a score_update to every member of the game group.
func (h *Hub) PublishScore(gameID string, payload any) {
	msg, err := json.Marshal(Envelope{Event: EventScoreUpdate, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("encode score update")
		return
	}
	h.enqueue(func() {
		metrics.BroadcastsTotal.WithLabelValues(EventScoreUpdate).Inc()
		dropped := false
		for c := range h.games[gameID] {
			if !h.deliver(c, msg) {
				dropped = true
			}
		}
		if dropped {
			h.announcePresence()
		}
	})
}

// Notify sends event to every connection authenticated as username.
func (h *Hub) Notify(username, event string, payload any) {
	name := strings.ToLower(strings.TrimSpace(username))
	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode notification")
		return
	}
	h.enqueue(func() {
		metrics.BroadcastsTotal.WithLabelValues(event).Inc()
		dropped := false
		for c, u := range h.clients {
			if u == name && !h.deliver(c, msg) {
				dropped = true
			}
		}
		if dropped {
			h.announcePresence()
		}
	})
}

// ActiveUsers returns the number of authenticated connections. It waits for
// every operation queued before it.
func (h *Hub) ActiveUsers() int {
	reply := make(chan int, 1)
	h.enqueue(func() { reply <- h.activeUsers() })
	select {
	case n := <-reply:
		return n
	case <-h.quit:
		return 0
	}
}

// members returns the size of a game group.
func (h *Hub) members(gameID string) int {
	reply := make(chan int, 1)
	h.enqueue(func() { reply <- len(h.games[gameID]) })
	select {
	case n := <-reply:
		return n
	case <-h.quit:
		return 0
	}
}

func (h *Hub) activeUsers() int {
	n := 0
	for _, u := range h.clients {
		if u != "" {
			n++
		}
	}
	return n
}

// announcePresence broadcasts active_users to everyone. Slow consumers
// dropped along the way change the count, so it repeats until stable.
func (h *Hub) announcePresence() {
	for {
		msg, _ := json.Marshal(Envelope{Event: EventActiveUsers, Data: h.activeUsers()})
		metrics.BroadcastsTotal.WithLabelValues(EventActiveUsers).Inc()
		changed := false
		for c := range h.clients {
			if !h.deliver(c, msg) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// deliver never blocks. A client whose buffer is full is removed and false
// is returned.
func (h *Hub) deliver(c *Client, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		log.Debug().Str("client", c.id).Msg("ws slow consumer dropped")
		h.remove(c)
		return false
	}
}

// remove reports whether c was known to the hub.
func (h *Hub) remove(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	for gameID := range h.member[c] {
		h.leave(c, gameID)
	}
	delete(h.member, c)
	delete(h.clients, c)
	close(c.send)
	metrics.WsConnections.Dec()
	log.Debug().Str("client", c.id).Msg("ws disconnected")
	return true
}
