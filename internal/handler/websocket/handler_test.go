package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/handler/websocket"
	"github.com/hasanmk52/terra-voyage-sub003/internal/hub"
	"github.com/hasanmk52/terra-voyage-sub003/internal/middleware"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository/mocks"
	"github.com/hasanmk52/terra-voyage-sub003/internal/service"
)

type stubEnqueuer struct{}

func (stubEnqueuer) EnqueueContext(context.Context, *asynq.Task, ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

func setupServer(t *testing.T, allowedOrigin string) (*httptest.Server, *mocks.StateRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	trips := new(mocks.TripRepository)
	trips.On("FindByID", mock.Anything, "trip-1").Return(&domain.Trip{ID: "trip-1", UserID: "alice"}, nil).Maybe()
	trips.On("IsCollaborator", mock.Anything, "trip-1", "mallory").Return(false, nil).Maybe()

	state := new(mocks.StateRepository)
	state.On("SubscribeRoom", mock.Anything, "trip-1").Return(nil, errors.New("redis unavailable")).Maybe()
	state.On("PublishRoomMessage", mock.Anything, "trip-1", mock.Anything).Return(nil).Maybe()
	state.On("DeletePresence", mock.Anything, "trip-1", mock.Anything).Return(nil).Maybe()

	collab := service.NewCollaborationService(state, new(mocks.ConflictLogRepository), stubEnqueuer{}, service.WithInstanceID("node-a"))
	h := hub.NewHub(collab, state, time.Hour)
	go h.Run()

	handler := websocket.NewWebSocketHandler(h, service.NewTripAccessService(trips), allowedOrigin)
	r := gin.New()
	r.GET("/ws/trips/:tripId", func(c *gin.Context) {
		if user := c.Query("user"); user != "" {
			c.Set(middleware.ContextUserID, user)
			c.Set(middleware.ContextUserName, strings.ToUpper(user))
		}
		c.Next()
	}, handler.HandleConnection)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		h.StopAllSubscriptions()
	})
	return server, state
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestHandleConnection_RejectsBeforeUpgrade(t *testing.T) {
	server, _ := setupServer(t, "")

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"anonymous", "/ws/trips/trip-1", http.StatusUnauthorized},
		{"not a collaborator", "/ws/trips/trip-1?user=mallory", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL(server, tt.path), nil)
			if conn != nil {
				conn.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}

func TestHandleConnection_JoinTrip(t *testing.T) {
	// Arrange
	server, state := setupServer(t, "")
	state.On("SavePresence", mock.Anything, "trip-1", mock.MatchedBy(func(p domain.UserPresence) bool {
		return p.UserID == "alice" && p.UserName == "ALICE"
	}), service.PresenceTTL).Return(nil).Once()
	state.On("ListPresence", mock.Anything, "trip-1").Return([]domain.UserPresence{{UserID: "alice", UserName: "ALICE", IsOnline: true}}, nil).Once()

	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL(server, "/ws/trips/trip-1?user=alice"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Act
	env, err := domain.NewEnvelope(domain.MsgJoinTrip, domain.JoinTripPayload{TripID: "trip-1"})
	require.NoError(t, err)
	data, err := env.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, data))

	// Assert
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	reply, err := domain.ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.MsgOnlineUsers, reply.Event)
	assert.Contains(t, string(reply.Payload), `"userId":"alice"`)
}

func TestHandleConnection_CheckOrigin(t *testing.T) {
	server, _ := setupServer(t, "https://app.example.com")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL(server, "/ws/trips/trip-1?user=alice"), header)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example.com")
	conn, _, err = gorillaws.DefaultDialer.Dial(wsURL(server, "/ws/trips/trip-1?user=alice"), header)
	require.NoError(t, err)
	conn.Close()
}

func TestNewWebSocketHandler_PanicsOnNilDependencies(t *testing.T) {
	access := service.NewTripAccessService(new(mocks.TripRepository))
	assert.Panics(t, func() { websocket.NewWebSocketHandler(nil, access, "") })

	collab := service.NewCollaborationService(new(mocks.StateRepository), new(mocks.ConflictLogRepository), stubEnqueuer{})
	h := hub.NewHub(collab, new(mocks.StateRepository), 0)
	assert.Panics(t, func() { websocket.NewWebSocketHandler(h, nil, "") })
}
