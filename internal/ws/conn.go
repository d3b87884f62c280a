package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/DHenson1337/mini-game-playground-server/internal/auth"
	"github.com/DHenson1337/mini-game-playground-server/internal/config"
	"github.com/DHenson1337/mini-game-playground-server/internal/scoring"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxFrame   = 4096
	sendBuffer = 64
)

type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// identity is the username proven by the access cookie at upgrade time.
	// When set, auth_user may only repeat it.
	identity string
}

func NewClient(h *Hub, conn *websocket.Conn, identity string) *Client {
	return &Client{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: strings.ToLower(identity),
	}
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type authPayload struct {
	Username string `json:"username"`
}

func newUpgrader(cfg config.Config) websocket.Upgrader {
	frontend := strings.TrimRight(cfg.FrontendURL, "/")
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || !cfg.IsProduction() || origin == frontend
		},
	}
}

// Serve upgrades GET /ws. A valid access cookie pre-authenticates the
// connection; an absent or expired one leaves it anonymous.
func Serve(h *Hub, tokens *auth.TokenService, cfg config.Config) gin.HandlerFunc {
	upgrader := newUpgrader(cfg)
	return func(c *gin.Context) {
		var identity string
		if access, _ := auth.ReadTokens(c.Request); access != "" {
			if claims, err := tokens.Verify(access, auth.AccessToken); err == nil {
				identity = claims.Username
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Msg("ws upgrade")
			return
		}
		client := NewClient(h, conn, identity)
		h.Register(client)
		if identity != "" {
			h.Authenticate(client, identity)
		}

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		c.handle(in)
	}
}

// handle applies one inbound frame. Unknown events are ignored; in
// particular clients cannot publish scores over the socket.
func (c *Client) handle(in inbound) {
	switch in.Event {
	case EventJoinGame, EventLeaveGame:
		var gameID string
		if err := json.Unmarshal(in.Data, &gameID); err != nil {
			return
		}
		gameID = strings.TrimSpace(gameID)
		if !scoring.ValidGameID(gameID) {
			return
		}
		if in.Event == EventJoinGame {
			c.hub.Join(c, gameID)
		} else {
			c.hub.Leave(c, gameID)
		}
	case EventAuthUser:
		var p authPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		name := strings.ToLower(strings.TrimSpace(p.Username))
		if c.identity != "" && name != c.identity {
			log.Debug().Str("client", c.id).Str("claimed", name).Msg("ws auth_user mismatch ignored")
			return
		}
		c.hub.Authenticate(c, name)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
