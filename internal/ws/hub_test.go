package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DHenson1337/mini-game-playground-server/internal/auth"
	"github.com/DHenson1337/mini-game-playground-server/internal/config"
	"github.com/DHenson1337/mini-game-playground-server/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func newTestClient(h *Hub) *Client {
	c := NewClient(h, nil, "")
	h.Register(c)
	return c
}

// drain returns every frame currently buffered for c.
func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			var env Envelope
			if err := json.Unmarshal(msg, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func countEvent(envs []Envelope, event string) int {
	n := 0
	for _, e := range envs {
		if e.Event == event {
			n++
		}
	}
	return n
}

func TestHub_PublishScoreReachesOnlyGameMembers(t *testing.T) {
	h := startHub(t)
	a, b, other := newTestClient(h), newTestClient(h), newTestClient(h)
	h.Join(a, "snake")
	h.Join(b, "snake")
	h.Join(other, "tetris")

	h.PublishScore("snake", map[string]any{"score": 120})
	h.ActiveUsers()

	for name, c := range map[string]*Client{"a": a, "b": b} {
		envs := drain(c)
		if countEvent(envs, EventScoreUpdate) != 1 {
			t.Errorf("client %s got %v, want one score_update", name, envs)
		}
	}
	if n := countEvent(drain(other), EventScoreUpdate); n != 0 {
		t.Errorf("other game client got %d score_update events", n)
	}
}

func TestHub_PublishOrder(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h)
	h.Join(c, "snake")
	for i := 1; i <= 5; i++ {
		h.PublishScore("snake", i)
	}
	h.ActiveUsers()

	envs := drain(c)
	if len(envs) != 5 {
		t.Fatalf("got %d frames, want 5", len(envs))
	}
	for i, e := range envs {
		if e.Data.(float64) != float64(i+1) {
			t.Errorf("frame %d = %v, want %d", i, e.Data, i+1)
		}
	}
}

func TestHub_JoinLeaveIdempotent(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h)
	h.Join(c, "snake")
	h.Join(c, "snake")
	if n := h.members("snake"); n != 1 {
		t.Errorf("members() after double join = %d, want 1", n)
	}
	h.Leave(c, "snake")
	h.Leave(c, "snake")
	h.Leave(c, "never-joined")
	if n := h.members("snake"); n != 0 {
		t.Errorf("members() after leave = %d, want 0", n)
	}
	h.PublishScore("snake", 1)
	if n := countEvent(drain(c), EventScoreUpdate); n != 0 {
		t.Errorf("left client got %d score_update events", n)
	}
}

func TestHub_PresenceAndDisconnect(t *testing.T) {
	h := startHub(t)
	a, b, anon := newTestClient(h), newTestClient(h), newTestClient(h)
	h.Authenticate(a, "Alice")
	h.Authenticate(b, "bob")
	h.Join(a, "snake")

	if n := h.ActiveUsers(); n != 2 {
		t.Errorf("ActiveUsers() = %d, want 2", n)
	}
	envs := drain(anon)
	if countEvent(envs, EventActiveUsers) != 2 {
		t.Errorf("anonymous client should see each presence change, got %v", envs)
	}

	h.Disconnect(a)
	h.Disconnect(a)
	if n := h.ActiveUsers(); n != 1 {
		t.Errorf("ActiveUsers() after disconnect = %d, want 1", n)
	}
	if n := h.members("snake"); n != 0 {
		t.Errorf("disconnected client still in group: %d", n)
	}
	envs = drain(anon)
	if len(envs) != 1 || envs[0].Data.(float64) != 1 {
		t.Errorf("presence after disconnect = %v, want one active_users=1", envs)
	}
	// terminates only because the hub closed the channel
	for range a.send {
	}
}

func TestHub_Notify(t *testing.T) {
	h := startHub(t)
	a1, a2, b := newTestClient(h), newTestClient(h), newTestClient(h)
	h.Authenticate(a1, "alice")
	h.Authenticate(a2, "ALICE")
	h.Authenticate(b, "bob")
	h.ActiveUsers()
	drain(a1)
	drain(a2)
	drain(b)

	h.Notify("Alice", "notifications", map[string]string{"message": "new high score"})
	h.ActiveUsers()

	if countEvent(drain(a1), "notifications") != 1 || countEvent(drain(a2), "notifications") != 1 {
		t.Error("every alice connection should be notified")
	}
	if countEvent(drain(b), "notifications") != 0 {
		t.Error("bob should not be notified")
	}
}

func TestHub_SlowConsumerDropped(t *testing.T) {
	h := startHub(t)
	slow := &Client{id: "slow", hub: h, send: make(chan []byte)}
	fast := newTestClient(h)
	h.Register(slow)
	h.Join(slow, "snake")
	h.Join(fast, "snake")

	h.PublishScore("snake", 1)
	if n := h.members("snake"); n != 1 {
		t.Errorf("members() = %d, want slow consumer removed", n)
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow consumer send channel should be closed")
	}
	if countEvent(drain(fast), EventScoreUpdate) != 1 {
		t.Error("fast client should still receive the update")
	}
}

func TestHub_ConcurrentRegister(t *testing.T) {
	h := startHub(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestClient(h)
			h.Authenticate(c, "user")
			h.Join(c, "snake")
		}()
	}
	wg.Wait()
	if n := h.ActiveUsers(); n != 20 {
		t.Errorf("ActiveUsers() = %d, want 20", n)
	}
	if n := h.members("snake"); n != 20 {
		t.Errorf("members() = %d, want 20", n)
	}
}

func TestClient_AuthUserCannotImpersonate(t *testing.T) {
	h := startHub(t)
	c := NewClient(h, nil, "Alice")
	h.Register(c)

	c.handle(inbound{Event: EventAuthUser, Data: json.RawMessage(`{"username":"mallory"}`)})
	if n := h.ActiveUsers(); n != 0 {
		t.Errorf("mismatched auth_user accepted: %d active", n)
	}
	c.handle(inbound{Event: EventAuthUser, Data: json.RawMessage(`{"username":"ALICE"}`)})
	if n := h.ActiveUsers(); n != 1 {
		t.Errorf("matching auth_user rejected: %d active", n)
	}
}

func TestClient_HandleIgnoresBadFrames(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h)
	c.handle(inbound{Event: EventJoinGame, Data: json.RawMessage(`"Tetris Classic"`)})
	c.handle(inbound{Event: EventJoinGame, Data: json.RawMessage(`42`)})
	c.handle(inbound{Event: "new_score", Data: json.RawMessage(`{"score":1}`)})
	c.handle(inbound{Event: EventJoinGame, Data: json.RawMessage(`" snake "`)})
	if n := h.members("snake"); n != 1 {
		t.Errorf("members(snake) = %d, want 1", n)
	}
	if n := h.members("tetris classic"); n != 0 {
		t.Errorf("invalid game id joined: %d", n)
	}
	if countEvent(drain(c), EventScoreUpdate) != 0 {
		t.Error("client frames must never publish scores")
	}
}

func TestServe_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := startHub(t)
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret: "a", RefreshSecret: "r", AccessTTL: time.Minute, RefreshTTL: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	r.GET("/ws", Serve(h, tokens, config.Config{Env: "dev"}))
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	access, _, _ := tokens.IssueAccessToken(&models.User{ID: 1, Username: "alice"})
	header := http.Header{}
	header.Add("Cookie", auth.AccessCookie+"="+access)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil || env.Event != EventActiveUsers || env.Data.(float64) != 1 {
		t.Fatalf("first frame = %+v, %v; want active_users=1 from cookie pre-auth", env, err)
	}

	if err := conn.WriteJSON(Envelope{Event: EventJoinGame, Data: "snake"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.members("snake") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("join_game never reached the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.PublishScore("snake", map[string]any{"score": 300})
	if err := conn.ReadJSON(&env); err != nil || env.Event != EventScoreUpdate {
		t.Fatalf("frame = %+v, %v; want score_update", env, err)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for h.ActiveUsers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed connection never disconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
