package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/conflict"
	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
	"github.com/hasanmk52/terra-voyage-sub003/internal/tasks"
)

const (
	// PresenceTTL 是在线状态的过期时间，Hub 的心跳间隔必须小于它
	PresenceTTL = 90 * time.Second
	// 同一冲突指纹在这段时间内只会被宣布一次
	conflictFingerprintTTL = 10 * time.Minute
	recentEventLimit       = 100
	auditQueue             = "default"
	auditMaxRetry          = 5
)

// TaskEnqueuer 是 asynq.Client 中服务层用到的部分。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Membership 表示一条消息对连接的房间成员身份产生的影响。
type Membership int

const (
	MembershipUnchanged Membership = iota
	MembershipJoined
	MembershipLeft
)

// Outcome 描述处理一条客户端消息后需要本地投递的消息。
// 发往其他实例的副本已经由服务层发布。
type Outcome struct {
	Reply        []domain.Envelope // 只发给发送者
	Broadcast    []domain.Envelope // 发给房间内除发送者以外的用户
	BroadcastAll []domain.Envelope // 发给房间内所有用户
	Membership   Membership
	// Actor 是加入房间后生效的身份（join-trip 可以携带展示名和头像）
	Actor domain.Actor
}

// ResolveResult 是一次冲突解决请求的结果。
type ResolveResult struct {
	Conflict   domain.ConflictEvent
	Resolution domain.ConflictResolution
	Outcome    Outcome
}

// CollaborationService 负责行程房间内的实时协作逻辑：在线状态、事件转发、冲突检测与解决。
type CollaborationService struct {
	stateRepo  repository.StateRepository
	logRepo    repository.ConflictLogRepository
	enqueuer   TaskEnqueuer
	detector   *conflict.Detector
	resolver   *conflict.Resolver
	instanceID string
	now        func() time.Time
}

// CollaborationOption 配置 CollaborationService。
type CollaborationOption func(*CollaborationService)

// WithServiceClock 替换时间来源，测试用。
func WithServiceClock(now func() time.Time) CollaborationOption {
	return func(s *CollaborationService) { s.now = now }
}

// WithInstanceID 设置发布房间消息时使用的实例 id。
func WithInstanceID(id string) CollaborationOption {
	return func(s *CollaborationService) { s.instanceID = id }
}

// WithConflictWindow 设置冲突检测的时间窗口。
func WithConflictWindow(window time.Duration) CollaborationOption {
	return func(s *CollaborationService) { s.detector = conflict.NewDetector(window) }
}

// WithDetector 使用给定的检测器，测试中可以注入确定的 id 生成器。
func WithDetector(d *conflict.Detector) CollaborationOption {
	return func(s *CollaborationService) { s.detector = d }
}

// NewCollaborationService 创建 CollaborationService 实例。
func NewCollaborationService(
	stateRepo repository.StateRepository,
	logRepo repository.ConflictLogRepository,
	enqueuer TaskEnqueuer,
	opts ...CollaborationOption,
) *CollaborationService {
	if stateRepo == nil || logRepo == nil || enqueuer == nil {
		panic("StateRepository, ConflictLogRepository and TaskEnqueuer must be non-nil for CollaborationService")
	}
	s := &CollaborationService{
		stateRepo: stateRepo,
		logRepo:   logRepo,
		enqueuer:  enqueuer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.detector == nil {
		s.detector = conflict.NewDetector(conflict.DefaultWindow)
	}
	if s.instanceID == "" {
		s.instanceID = uuid.NewString()
	}
	s.resolver = conflict.NewResolver(
		conflict.WithClock(s.now),
		conflict.WithLogger(logrus.WithFields(logrus.Fields{"component": "conflict_resolver", "instance_id": s.instanceID})),
	)
	return s
}

// InstanceID 返回本实例的 id，Hub 用它过滤自己发布的消息。
func (s *CollaborationService) InstanceID() string { return s.instanceID }

// Join 记录用户在线，返回给发送者的在线列表和已有冲突，以及给其他人的上线通知。
func (s *CollaborationService) Join(ctx context.Context, tripID string, actor domain.Actor) (Outcome, error) {
	logCtx := logrus.WithFields(logrus.Fields{"trip_id": tripID, "user_id": actor.UserID})

	presence := actor.Presence(true, s.now().UTC())
	if err := s.stateRepo.SavePresence(ctx, tripID, presence, PresenceTTL); err != nil {
		return Outcome{}, internalError(logCtx, err, "Failed to save presence")
	}
	roster, err := s.stateRepo.ListPresence(ctx, tripID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to list presence, replying with the joining user only")
		roster = []domain.UserPresence{presence}
	}

	rosterEnv, err := domain.NewEnvelope(domain.MsgOnlineUsers, roster)
	if err != nil {
		return Outcome{}, internalError(logCtx, err, "Failed to encode online users")
	}
	updateEnv, err := domain.NewEnvelope(domain.MsgUserPresenceUpdated, presence)
	if err != nil {
		return Outcome{}, internalError(logCtx, err, "Failed to encode presence update")
	}

	out := Outcome{
		Reply:      []domain.Envelope{rosterEnv},
		Broadcast:  []domain.Envelope{updateEnv},
		Membership: MembershipJoined,
		Actor:      actor,
	}
	// 迟到的用户也要看到尚未解决的冲突
	for _, view := range s.ActiveConflicts(tripID, "") {
		env, err := domain.NewEnvelope(domain.MsgConflictDetected, view)
		if err != nil {
			return Outcome{}, internalError(logCtx, err, "Failed to encode active conflict")
		}
		out.Reply = append(out.Reply, env)
	}

	s.publish(ctx, tripID, updateEnv, actor.UserID)
	logCtx.Info("User joined trip")
	return out, nil
}

// Leave 删除用户的在线状态并通知其他人。
func (s *CollaborationService) Leave(ctx context.Context, tripID string, actor domain.Actor) (Outcome, error) {
	logCtx := logrus.WithFields(logrus.Fields{"trip_id": tripID, "user_id": actor.UserID})

	if err := s.stateRepo.DeletePresence(ctx, tripID, actor.UserID); err != nil {
		// 记录会在 TTL 后过期，离开通知照常发出
		logCtx.WithError(err).Warn("Failed to delete presence")
	}
	updateEnv, err := domain.NewEnvelope(domain.MsgUserPresenceUpdated, actor.Presence(false, s.now().UTC()))
	if err != nil {
		return Outcome{}, internalError(logCtx, err, "Failed to encode presence update")
	}
	s.publish(ctx, tripID, updateEnv, actor.UserID)
	logCtx.Info("User left trip")
	return Outcome{Broadcast: []domain.Envelope{updateEnv}, Membership: MembershipLeft, Actor: actor}, nil
}

// Heartbeat 刷新在线状态的过期时间。
func (s *CollaborationService) Heartbeat(ctx context.Context, tripID string, actor domain.Actor) error {
	if err := s.stateRepo.SavePresence(ctx, tripID, actor.Presence(true, s.now().UTC()), PresenceTTL); err != nil {
		logrus.WithFields(logrus.Fields{"trip_id": tripID, "user_id": actor.UserID}).WithError(err).Warn("Failed to refresh presence")
		return ErrInternalServer
	}
	return nil
}

// ProcessIncoming 处理一条来自客户端的消息。
func (s *CollaborationService) ProcessIncoming(ctx context.Context, tripID string, actor domain.Actor, env domain.Envelope) (Outcome, error) {
	logCtx := logrus.WithFields(logrus.Fields{"trip_id": tripID, "user_id": actor.UserID, "event": env.Event})

	switch env.Event {
	case domain.MsgJoinTrip:
		var p domain.JoinTripPayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		if p.UserName != "" {
			actor.UserName = p.UserName
		}
		if p.UserImage != "" {
			actor.UserImage = p.UserImage
		}
		return s.Join(ctx, tripID, actor)

	case domain.MsgLeaveTrip:
		var p domain.LeaveTripPayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		return s.Leave(ctx, tripID, actor)

	case domain.MsgActivityUpdated:
		var p domain.ActivityUpdatedPayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		return s.handleEvent(ctx, s.newEvent(domain.EventActivityUpdated, tripID, actor, domain.EventData{
			ActivityID: p.ActivityID,
			Changes:    p.Changes.Fields(),
		}))

	case domain.MsgTripUpdated:
		var p domain.TripUpdatedPayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		return s.handleEvent(ctx, s.newEvent(domain.EventTripUpdated, tripID, actor, domain.EventData{Changes: p.Changes.Fields()}))

	case domain.MsgCommentAdded:
		var p domain.CommentAddedPayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		return s.handleEvent(ctx, s.newEvent(domain.EventCommentAdded, tripID, actor, domain.EventData{
			ActivityID: p.ActivityID,
			Comment:    p.Comment.Fields(),
		}))

	case domain.MsgVoteAdded:
		var p domain.VoteAddedPayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		return s.handleEvent(ctx, s.newEvent(domain.EventVoteAdded, tripID, actor, domain.EventData{
			ActivityID: p.ActivityID,
			Vote:       p.Vote,
		}))

	case domain.MsgTypingStart, domain.MsgTypingStop:
		var p domain.TypingPayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		typing := env.Event == domain.MsgTypingStart
		location := p.Location
		if !typing {
			location = ""
		}
		return s.relay(ctx, tripID, actor, domain.MsgUserTyping, domain.UserTypingPayload{
			UserID:   actor.UserID,
			UserName: actor.UserName,
			Location: location,
			IsTyping: typing,
		})

	case domain.MsgCursorMove:
		var p domain.CursorMovePayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		return s.relay(ctx, tripID, actor, domain.MsgUserCursor, domain.UserCursorPayload{
			UserID:   actor.UserID,
			UserName: actor.UserName,
			Position: p.Position,
			Element:  p.Element,
		})

	case domain.MsgResolveConflict:
		var p domain.ResolveConflictPayload
		if err := decodeFor(env, tripID, &p, func() string { return p.TripID }); err != nil {
			return Outcome{}, err
		}
		res, err := s.ResolveConflict(ctx, tripID, p.ConflictID, actor, p.Strategy, p.UserInput)
		if err != nil {
			return Outcome{}, err
		}
		return res.Outcome, nil

	default:
		logCtx.Warn("Unsupported event from client")
		return Outcome{}, ErrUnsupportedEvent
	}
}

// ResolveConflict 用给定策略解决一个冲突。需要用户输入时只回复发送者；
// 成功解决后清理该实体已解决的冲突，投递审计任务并通知整个房间。
func (s *CollaborationService) ResolveConflict(
	ctx context.Context,
	tripID, conflictID string,
	actor domain.Actor,
	strategy domain.Strategy,
	input *domain.UserInput,
) (ResolveResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"trip_id": tripID, "user_id": actor.UserID, "conflict_id": conflictID})

	existing, ok := s.resolver.FindConflict(conflictID)
	if !ok || existing.TripID != tripID {
		return ResolveResult{}, ErrConflictNotFound
	}
	resolved, res, err := s.resolver.ResolveByID(conflictID, strategy, input, actor.UserID)
	if err != nil {
		return ResolveResult{}, mapRepoError(err)
	}

	replyEnv, err := domain.NewEnvelope(domain.MsgConflictResolution, domain.ConflictResolutionPayload{
		ConflictID: conflictID,
		Resolution: res,
	})
	if err != nil {
		return ResolveResult{}, internalError(logCtx, err, "Failed to encode conflict resolution")
	}
	result := ResolveResult{
		Conflict:   resolved,
		Resolution: res,
		Outcome:    Outcome{Reply: []domain.Envelope{replyEnv}},
	}
	if res.RequiresUserInput || res.AlreadyResolved {
		return result, nil
	}

	s.resolver.RemoveResolvedConflicts(resolved.EntityID)
	s.enqueueAudit(ctx, logCtx, resolved, res)

	doneEnv, err := domain.NewEnvelope(domain.MsgConflictResolved, domain.ConflictResolvedPayload{
		Conflict:   resolved,
		Resolution: res,
	})
	if err != nil {
		return ResolveResult{}, internalError(logCtx, err, "Failed to encode resolved conflict")
	}
	result.Outcome.BroadcastAll = []domain.Envelope{doneEnv}
	s.publish(ctx, tripID, doneEnv, "")
	return result, nil
}

// ActiveConflicts 返回行程内未解决的冲突，entityID 非空时只返回该实体的冲突。
func (s *CollaborationService) ActiveConflicts(tripID, entityID string) []domain.ConflictDetectedPayload {
	entityIDs := []string{entityID}
	if entityID == "" {
		entityIDs = s.resolver.EntityIDs()
	}
	views := make([]domain.ConflictDetectedPayload, 0)
	for _, id := range entityIDs {
		for _, c := range s.resolver.ActiveConflicts(id) {
			if c.TripID != tripID || c.Resolved {
				continue
			}
			views = append(views, domain.ConflictDetectedPayload{
				Conflict: c,
				Summary:  conflict.GenerateSummary(c),
				Severity: conflict.Severity(c),
			})
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Conflict.Timestamp.Before(views[j].Conflict.Timestamp)
	})
	return views
}

// SetStrategy 为行程内的实体设置冲突解决策略，覆盖按实体类型的默认值。
// 设置只对该行程的冲突生效。
func (s *CollaborationService) SetStrategy(tripID, entityID string, strategy domain.Strategy) error {
	if tripID == "" || entityID == "" {
		return ErrInvalidMessage
	}
	if !strategy.Known() {
		return ErrInvalidStrategy
	}
	s.resolver.SetResolutionStrategy(tripID, entityID, strategy)
	logrus.WithFields(logrus.Fields{"trip_id": tripID, "entity_id": entityID, "strategy": strategy}).Info("Resolution strategy set")
	return nil
}

// Strategy 返回行程内实体当前生效的策略和它是否来自显式设置。
func (s *CollaborationService) Strategy(tripID string, entityType domain.EntityType, entityID string) (domain.Strategy, bool) {
	if st, ok := s.resolver.ResolutionStrategy(tripID, entityID); ok {
		return st, true
	}
	return conflict.DefaultStrategy(entityType), false
}

// Presence 返回行程的在线用户。
func (s *CollaborationService) Presence(ctx context.Context, tripID string) ([]domain.UserPresence, error) {
	users, err := s.stateRepo.ListPresence(ctx, tripID)
	if err != nil {
		return nil, internalError(logrus.WithField("trip_id", tripID), err, "Failed to list presence")
	}
	return users, nil
}

// RecentEvents 返回行程最近的协作事件。
func (s *CollaborationService) RecentEvents(ctx context.Context, tripID string, limit int) ([]domain.CollaborationEvent, error) {
	events, err := s.stateRepo.RecentEvents(ctx, tripID, limit)
	if err != nil {
		return nil, internalError(logrus.WithField("trip_id", tripID), err, "Failed to load recent events")
	}
	return events, nil
}

// ConflictHistory 返回行程已解决冲突的审计记录。
func (s *CollaborationService) ConflictHistory(ctx context.Context, tripID string, limit int) ([]domain.ConflictLog, error) {
	logs, err := s.logRepo.ListByTrip(ctx, tripID, limit)
	if err != nil {
		return nil, internalError(logrus.WithField("trip_id", tripID), err, "Failed to list conflict history")
	}
	return logs, nil
}

// ApplyRemote 把其他实例宣布的冲突变化同步到本地解决器。其他事件忽略。
func (s *CollaborationService) ApplyRemote(ctx context.Context, env domain.Envelope) error {
	switch env.Event {
	case domain.MsgConflictDetected:
		var p domain.ConflictDetectedPayload
		if err := env.Decode(&p); err != nil {
			return ErrInvalidMessage
		}
		s.resolver.AddConflict(p.Conflict.EntityID, p.Conflict)
	case domain.MsgConflictResolved:
		var p domain.ConflictResolvedPayload
		if err := env.Decode(&p); err != nil {
			return ErrInvalidMessage
		}
		if s.resolver.ApplyResolved(p.Conflict) {
			s.resolver.RemoveResolvedConflicts(p.Conflict.EntityID)
		}
	}
	return nil
}

func (s *CollaborationService) newEvent(t domain.EventType, tripID string, actor domain.Actor, data domain.EventData) domain.CollaborationEvent {
	return domain.CollaborationEvent{
		Type:      t,
		TripID:    tripID,
		UserID:    actor.UserID,
		UserName:  actor.UserName,
		Timestamp: s.now().UTC(),
		Data:      data,
	}
}

// handleEvent 记录并转发协作事件；编辑类事件还会与窗口内的历史做冲突检测。
func (s *CollaborationService) handleEvent(ctx context.Context, ev domain.CollaborationEvent) (Outcome, error) {
	logCtx := logrus.WithFields(logrus.Fields{"trip_id": ev.TripID, "user_id": ev.UserID, "event_type": ev.Type})

	var recent []domain.CollaborationEvent
	if ev.Type.IsEdit() {
		var err error
		recent, err = s.stateRepo.RecentEvents(ctx, ev.TripID, recentEventLimit)
		if err != nil {
			logCtx.WithError(err).Warn("Failed to load recent events, skipping conflict detection")
		}
	}
	if err := s.stateRepo.PushEvent(ctx, ev.TripID, ev); err != nil {
		logCtx.WithError(err).Warn("Failed to push event to history")
	}

	evEnv, err := domain.NewEnvelope(domain.MsgCollaborationEvent, ev)
	if err != nil {
		return Outcome{}, internalError(logCtx, err, "Failed to encode collaboration event")
	}
	out := Outcome{Broadcast: []domain.Envelope{evEnv}}
	s.publish(ctx, ev.TripID, evEnv, ev.UserID)

	if ev.Type.IsEdit() && len(recent) > 0 {
		if view, ok := s.detectConflict(ctx, logCtx, ev, recent); ok {
			env, err := domain.NewEnvelope(domain.MsgConflictDetected, view)
			if err != nil {
				return Outcome{}, internalError(logCtx, err, "Failed to encode conflict")
			}
			out.BroadcastAll = append(out.BroadcastAll, env)
			s.publish(ctx, ev.TripID, env, "")
		}
	}
	return out, nil
}

// detectConflict 在同一实体、窗口内的历史编辑中查找包含 ev 的冲突。
// 每次编辑最多宣布一个冲突（成员最多的那个），同一冲突跨实例只宣布一次。
func (s *CollaborationService) detectConflict(
	ctx context.Context,
	logCtx *logrus.Entry,
	ev domain.CollaborationEvent,
	recent []domain.CollaborationEvent,
) (domain.ConflictDetectedPayload, bool) {
	entityType, entityID := ev.Target()
	cutoff := ev.Timestamp.Add(-s.detector.Window)

	candidates := make([]domain.CollaborationEvent, 0, len(recent)+1)
	for _, r := range recent {
		if !r.Type.IsEdit() || r.Timestamp.Before(cutoff) {
			continue
		}
		if t, id := r.Target(); t != entityType || id != entityID {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return domain.ConflictDetectedPayload{}, false
	}
	candidates = append(candidates, ev)

	for _, c := range s.detector.Detect(candidates) {
		if !involves(c, ev) {
			continue
		}
		first, err := s.stateRepo.MarkConflictSeen(ctx, c.TripID+"|"+c.Fingerprint(), conflictFingerprintTTL)
		if err != nil {
			logCtx.WithError(err).Warn("Failed to register conflict fingerprint, announcing anyway")
			first = true
		}
		if !first {
			logCtx.WithField("entity_id", c.EntityID).Debug("Conflict already announced by another instance")
			return domain.ConflictDetectedPayload{}, false
		}
		s.resolver.AddConflict(c.EntityID, c)
		view := domain.ConflictDetectedPayload{
			Conflict: c,
			Summary:  conflict.GenerateSummary(c),
			Severity: conflict.Severity(c),
		}
		logCtx.WithFields(logrus.Fields{
			"conflict_id": c.ID,
			"entity_type": c.EntityType,
			"entity_id":   c.EntityID,
			"severity":    view.Severity,
		}).Info("Conflict detected")
		return view, true
	}
	return domain.ConflictDetectedPayload{}, false
}

func involves(c domain.ConflictEvent, ev domain.CollaborationEvent) bool {
	if c.UserID == ev.UserID && c.Timestamp.Equal(ev.Timestamp) {
		return true
	}
	for _, u := range c.ConflictsWith {
		if u == ev.UserID {
			return true
		}
	}
	return false
}

// relay 把瞬时事件（输入中、光标）转发给房间内的其他人，不做记录。
func (s *CollaborationService) relay(ctx context.Context, tripID string, actor domain.Actor, event string, payload any) (Outcome, error) {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return Outcome{}, internalError(logrus.WithFields(logrus.Fields{"trip_id": tripID, "user_id": actor.UserID}), err, "Failed to encode relay event")
	}
	s.publish(ctx, tripID, env, actor.UserID)
	return Outcome{Broadcast: []domain.Envelope{env}}, nil
}

// publish 把消息发给其他实例，失败只记录日志。
func (s *CollaborationService) publish(ctx context.Context, tripID string, env domain.Envelope, excludeUserID string) {
	msg := domain.RoomMessage{
		Origin:        s.instanceID,
		TripID:        tripID,
		ExcludeUserID: excludeUserID,
		Envelope:      env,
	}
	if err := s.stateRepo.PublishRoomMessage(ctx, tripID, msg); err != nil {
		logrus.WithFields(logrus.Fields{"trip_id": tripID, "event": env.Event}).WithError(err).Warn("Failed to publish room message")
	}
}

func (s *CollaborationService) enqueueAudit(ctx context.Context, logCtx *logrus.Entry, c domain.ConflictEvent, res domain.ConflictResolution) {
	record, err := domain.NewConflictLog(c, res)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build conflict audit log")
		return
	}
	payload, err := tasks.NewConflictAuditTask(record)
	if err != nil {
		logCtx.WithError(err).Error("Failed to create conflict audit task payload")
		return
	}
	task := asynq.NewTask(tasks.TypeConflictAudit, payload)
	info, err := s.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(auditQueue),
		asynq.MaxRetry(auditMaxRetry),
		asynq.TaskID("audit:"+c.ID),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return
		}
		logCtx.WithError(err).Error("Failed to enqueue conflict audit task")
		return
	}
	logCtx.WithField("task_id", info.ID).Debug("Conflict audit task enqueued")
}

// decodeFor 解码消息负载并检查其中的行程 ID 与连接一致。
func decodeFor(env domain.Envelope, tripID string, v any, payloadTrip func() string) error {
	if err := env.Decode(v); err != nil {
		return ErrInvalidMessage
	}
	if payloadTrip() != tripID {
		return ErrTripMismatch
	}
	return nil
}

func internalError(logCtx *logrus.Entry, err error, msg string) error {
	logCtx.WithError(err).Error(msg)
	return ErrInternalServer
}
