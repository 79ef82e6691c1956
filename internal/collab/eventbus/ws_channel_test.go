package eventbus_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/eventbus"
	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roomServer 是一个最小的房间服务端：记录收到的消息，收到 join-trip 后回发 online-users。
type roomServer struct {
	mu       sync.Mutex
	received []string
	authz    []string
	paths    []string
}

func (s *roomServer) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.authz = append(s.authz, r.Header.Get("Authorization"))
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := domain.ParseEnvelope(data)
			if err != nil {
				continue
			}
			s.mu.Lock()
			s.received = append(s.received, env.Event)
			s.mu.Unlock()
			if env.Event == domain.MsgJoinTrip {
				reply, _ := domain.NewEnvelope(domain.MsgOnlineUsers, []domain.UserPresence{{UserID: "u9", IsOnline: true}})
				b, _ := reply.Bytes()
				_ = conn.WriteMessage(websocket.TextMessage, b)
			}
		}
	})
}

func (s *roomServer) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func TestWSChannel_EndToEnd(t *testing.T) {
	rs := &roomServer{}
	srv := httptest.NewServer(rs.handler(t))
	defer srv.Close()

	ch, err := eventbus.NewWSChannel(srv.URL, "trip-42", "tok")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ch.Endpoint(), "ws://"))

	c := eventbus.New(ch, eventbus.Options{TripID: "trip-42", Enabled: true})
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return len(c.OnlineUsers()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "u9", c.OnlineUsers()[0].UserID)

	c.EmitTripUpdate(domain.TripChanges{"title": "Lisbon"})
	require.Eventually(t, func() bool { return len(rs.events()) == 2 }, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	require.Eventually(t, func() bool { return len(rs.events()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{domain.MsgJoinTrip, domain.MsgTripUpdated, domain.MsgLeaveTrip}, rs.events())

	rs.mu.Lock()
	defer rs.mu.Unlock()
	assert.Equal(t, []string{"Bearer tok"}, rs.authz)
	assert.Equal(t, []string{"/ws/trips/trip-42"}, rs.paths)
}

func TestWSChannel_DialFailureReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	ch, err := eventbus.NewWSChannel(srv.URL, "trip-42", "")
	require.NoError(t, err)

	err = ch.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	assert.ErrorIs(t, ch.Send(context.Background(), domain.Envelope{Event: "x"}), eventbus.ErrNotConnected)
}

func TestWSChannel_ServerDropTriggersOnError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close() // 立即断开
	}))
	defer srv.Close()

	ch, err := eventbus.NewWSChannel(srv.URL, "trip-1", "")
	require.NoError(t, err)
	errCh := make(chan error, 1)
	ch.OnError(func(err error) { errCh <- err })

	require.NoError(t, ch.Connect(context.Background()))
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnError was not called after the server dropped the connection")
	}
}

func TestNewWSChannel_RejectsBadInput(t *testing.T) {
	_, err := eventbus.NewWSChannel("http://localhost:8080", "", "")
	assert.Error(t, err)

	_, err = eventbus.NewWSChannel("ftp://localhost", "trip-1", "")
	assert.Error(t, err)

	ch, err := eventbus.NewWSChannel("https://voyage.example.com/base/", "trip 1", "")
	require.NoError(t, err)
	assert.Equal(t, "wss://voyage.example.com/base/ws/trips/trip%201", ch.Endpoint())
}
