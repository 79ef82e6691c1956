package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/conflict"
	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	handlerhttp "github.com/hasanmk52/terra-voyage-sub003/internal/handler/http"
	"github.com/hasanmk52/terra-voyage-sub003/internal/middleware"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository/mocks"
	"github.com/hasanmk52/terra-voyage-sub003/internal/service"
)

type stubEnqueuer struct{}

func (stubEnqueuer) EnqueueContext(context.Context, *asynq.Task, ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

// recordingDeliverer 记录 HTTP 接口投递给房间的结果
type recordingDeliverer struct {
	mu       sync.Mutex
	outcomes []service.Outcome
}

func (d *recordingDeliverer) Deliver(_, _ string, out service.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes = append(d.outcomes, out)
}

type handlerFixture struct {
	router *gin.Engine
	trips  *mocks.TripRepository
	state  *mocks.StateRepository
	logs   *mocks.ConflictLogRepository
	collab *service.CollaborationService
	rooms  *recordingDeliverer
}

var t0 = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &handlerFixture{
		trips: new(mocks.TripRepository),
		state: new(mocks.StateRepository),
		logs:  new(mocks.ConflictLogRepository),
		rooms: &recordingDeliverer{},
	}
	now := t0.Add(3 * time.Second)
	f.collab = service.NewCollaborationService(f.state, f.logs, stubEnqueuer{},
		service.WithServiceClock(func() time.Time { return now }),
		service.WithInstanceID("node-a"),
		service.WithDetector(&conflict.Detector{Window: conflict.DefaultWindow, NewID: func() string { return "c-1" }}),
	)
	h := handlerhttp.NewTripHandler(service.NewTripAccessService(f.trips), f.collab, f.rooms)

	r := gin.New()
	// 测试中用 X-User 头代替 JWT
	r.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-User"); user != "" {
			c.Set(middleware.ContextUserID, user)
			c.Set(middleware.ContextUserName, "User "+user)
		}
		c.Next()
	})
	api := r.Group("/api/trips/:tripId")
	api.GET("/conflicts", h.ListConflicts)
	api.GET("/conflict-log", h.ConflictHistory)
	api.POST("/conflicts/:conflictId/resolve", h.ResolveConflict)
	api.PUT("/entities/:entityId/strategy", h.SetStrategy)
	api.GET("/presence", h.Presence)
	api.GET("/events", h.RecentEvents)
	f.router = r

	f.trips.On("FindByID", mock.Anything, "trip-1").Return(&domain.Trip{ID: "trip-1", UserID: "alice"}, nil).Maybe()
	f.trips.On("IsCollaborator", mock.Anything, "trip-1", "bob").Return(true, nil).Maybe()
	f.trips.On("IsCollaborator", mock.Anything, "trip-1", "mallory").Return(false, nil).Maybe()
	f.trips.On("FindByID", mock.Anything, "missing").Return(nil, repository.ErrTripNotFound).Maybe()
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// seedConflict 让 alice 和 bob 先后编辑同一活动，产生冲突 c-1
func (f *handlerFixture) seedConflict(t *testing.T) {
	t.Helper()
	history := []domain.CollaborationEvent{{
		Type: domain.EventActivityUpdated, TripID: "trip-1", UserID: "alice", Timestamp: t0,
		Data: domain.EventData{ActivityID: "act-1", Changes: domain.Fields{"notes": "bring water"}},
	}}
	f.state.On("RecentEvents", mock.Anything, "trip-1", 100).Return(history, nil).Once()
	f.state.On("PushEvent", mock.Anything, "trip-1", mock.Anything).Return(nil).Once()
	f.state.On("PublishRoomMessage", mock.Anything, "trip-1", mock.Anything).Return(nil)
	f.state.On("MarkConflictSeen", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Once()

	env, err := domain.NewEnvelope(domain.MsgActivityUpdated, domain.ActivityUpdatedPayload{
		TripID: "trip-1", ActivityID: "act-1", Changes: domain.ActivityChanges{"notes": "bring snacks"},
	})
	require.NoError(t, err)
	_, err = f.collab.ProcessIncoming(context.Background(), "trip-1", domain.Actor{UserID: "bob"}, env)
	require.NoError(t, err)
	require.Len(t, f.collab.ActiveConflicts("trip-1", ""), 1)
}

func TestTripHandler_Access(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name     string
		path     string
		user     string
		wantCode int
	}{
		{"anonymous", "/api/trips/trip-1/conflicts", "", http.StatusUnauthorized},
		{"stranger", "/api/trips/trip-1/conflicts", "mallory", http.StatusForbidden},
		{"unknown trip", "/api/trips/missing/conflicts", "alice", http.StatusNotFound},
		{"owner", "/api/trips/trip-1/conflicts", "alice", http.StatusOK},
		{"collaborator", "/api/trips/trip-1/conflicts", "bob", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.path, tt.user, nil)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestTripHandler_ListAndResolveConflict(t *testing.T) {
	// Arrange
	f := newHandlerFixture(t)
	f.seedConflict(t)

	// Act: 列出冲突
	w := f.do(t, http.MethodGet, "/api/trips/trip-1/conflicts?entityId=act-1", "alice", nil)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Conflicts []domain.ConflictDetectedPayload `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Conflicts, 1)
	assert.Equal(t, "c-1", list.Conflicts[0].Conflict.ID)
	assert.Equal(t, domain.SeverityMedium, list.Conflicts[0].Severity)

	// Act: activity 默认 manual-merge，没有输入时需要用户输入
	w = f.do(t, http.MethodPost, "/api/trips/trip-1/conflicts/c-1/resolve", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pending handlerhttp.ResolveConflictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.True(t, pending.Resolution.RequiresUserInput)
	assert.False(t, pending.Conflict.Resolved)

	// Act: 选择胜者
	w = f.do(t, http.MethodPost, "/api/trips/trip-1/conflicts/c-1/resolve", "bob", handlerhttp.ResolveConflictRequest{
		Strategy: domain.StrategyUserChoice,
		Winner:   "bob",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var done handlerhttp.ResolveConflictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.True(t, done.Conflict.Resolved)
	assert.Equal(t, "bob", done.Conflict.ResolvedBy)
	assert.Equal(t, "bob", done.Resolution.Winner)

	// Verify: 结果投递给房间，冲突已清理
	require.Len(t, f.rooms.outcomes, 2)
	require.Len(t, f.rooms.outcomes[1].BroadcastAll, 1)
	assert.Equal(t, domain.MsgConflictResolved, f.rooms.outcomes[1].BroadcastAll[0].Event)
	assert.Empty(t, f.collab.ActiveConflicts("trip-1", ""))

	w = f.do(t, http.MethodPost, "/api/trips/trip-1/conflicts/c-1/resolve", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTripHandler_ResolveConflict_BadInput(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/trips/trip-1/conflicts/c-1/resolve", "alice", handlerhttp.ResolveConflictRequest{Strategy: "coin-flip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/trips/trip-1/conflicts/c-1/resolve", bytes.NewBufferString("{"))
	req.Header.Set("X-User", "alice")
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTripHandler_SetStrategy(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPut, "/api/trips/trip-1/entities/act-1/strategy", "alice", handlerhttp.SetStrategyRequest{Strategy: domain.StrategyFirstWriteWins})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"entityId":"act-1","strategy":"first-write-wins"}`, w.Body.String())
	st, explicit := f.collab.Strategy("trip-1", domain.EntityActivity, "act-1")
	assert.Equal(t, domain.StrategyFirstWriteWins, st)
	assert.True(t, explicit)

	w = f.do(t, http.MethodPut, "/api/trips/trip-1/entities/act-1/strategy", "alice", handlerhttp.SetStrategyRequest{Strategy: "coin-flip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/trips/trip-1/entities/act-1/strategy", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTripHandler_PresenceAndEvents(t *testing.T) {
	f := newHandlerFixture(t)
	roster := []domain.UserPresence{{UserID: "alice", UserName: "Alice", IsOnline: true, LastSeen: t0}}
	f.state.On("ListPresence", mock.Anything, "trip-1").Return(roster, nil).Once()
	f.state.On("RecentEvents", mock.Anything, "trip-1", 100).Return(nil, nil).Once()
	f.state.On("RecentEvents", mock.Anything, "trip-1", 50).Return(nil, errors.New("redis down")).Once()

	w := f.do(t, http.MethodGet, "/api/trips/trip-1/presence", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var presence struct {
		Users []domain.UserPresence `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &presence))
	assert.Equal(t, "alice", presence.Users[0].UserID)

	// limit 超过上限时截断
	w = f.do(t, http.MethodGet, "/api/trips/trip-1/events?limit=500", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"events":[]}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/trips/trip-1/events", "bob", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis down")

	w = f.do(t, http.MethodGet, "/api/trips/trip-1/events?limit=abc", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.state.AssertExpectations(t)
}

func TestTripHandler_ConflictHistory(t *testing.T) {
	f := newHandlerFixture(t)
	f.logs.On("ListByTrip", mock.Anything, "trip-1", 10).Return([]domain.ConflictLog{{ConflictID: "c-7", TripID: "trip-1"}}, nil).Once()

	w := f.do(t, http.MethodGet, "/api/trips/trip-1/conflict-log?limit=10", "alice", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"c-7"`)
	f.logs.AssertExpectations(t)
}

func TestNewTripHandler_PanicsOnNilDependencies(t *testing.T) {
	access := service.NewTripAccessService(new(mocks.TripRepository))
	collab := service.NewCollaborationService(new(mocks.StateRepository), new(mocks.ConflictLogRepository), stubEnqueuer{})
	assert.Panics(t, func() { handlerhttp.NewTripHandler(nil, collab, &recordingDeliverer{}) })
	assert.Panics(t, func() { handlerhttp.NewTripHandler(access, nil, &recordingDeliverer{}) })
	assert.Panics(t, func() { handlerhttp.NewTripHandler(access, collab, nil) })
}
