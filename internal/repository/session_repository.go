package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// ErrSessionNotFound 表示指定的会话不存在。
var ErrSessionNotFound = errors.New("会话不存在")

// SessionRepository 管理以 session_id 为键的会话状态。
// 同一会话上的写操作串行执行；不同会话之间互不阻塞。
type SessionRepository interface {
	// GetOrCreate 返回会话快照；不存在时创建空会话。
	GetOrCreate(ctx context.Context, sessionID string) (*model.Session, error)
	// Get 返回会话快照；不存在时返回 ErrSessionNotFound。
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	// AddTurn 追加一条消息并刷新活跃时间，超过保留上限时淘汰最旧消息。
	AddTurn(ctx context.Context, sessionID string, turn model.ConversationTurn) error
	// AddRecommendation 追加一条推荐事件，空的 ID 列表也是合法事件。
	AddRecommendation(ctx context.Context, sessionID string, event model.RecommendationEvent) error
	// CommitAssistantTurn 在同一临界区内追加助手回复和推荐事件，
	// 保证两者要么同时可见要么都不可见。
	CommitAssistantTurn(ctx context.Context, sessionID string, turn model.ConversationTurn, event model.RecommendationEvent) error
	// LastRecommendation 返回最近一次推荐事件；没有时 ok 为 false。
	LastRecommendation(ctx context.Context, sessionID string) (model.RecommendationEvent, bool, error)
	// UpdatePreferences 按键合并偏好，同名键以新值覆盖。
	UpdatePreferences(ctx context.Context, sessionID string, prefs map[string]interface{}) error
	// Delete 删除会话，返回会话是否存在并被删除。
	Delete(ctx context.Context, sessionID string) (bool, error)
	// List 返回所有会话 ID。
	List(ctx context.Context) ([]string, error)
	// Stats 返回单个会话的统计摘要。
	Stats(ctx context.Context, sessionID string) (*model.SessionStats, error)
	// PurgeIdle 删除空闲超过 ttl 的会话，返回删除数量。
	PurgeIdle(ctx context.Context, ttl time.Duration) int
}

// sessionEntry 把会话数据和它的互斥锁绑在一起。
type sessionEntry struct {
	mu      sync.Mutex
	session *model.Session
}

type memorySessionRepository struct {
	mu           sync.RWMutex
	entries      map[string]*sessionEntry
	retentionCap int
	snapshots    *SessionSnapshotStore // 可为 nil
}

// NewSessionRepository 创建内存会话仓库。
// snapshots 非 nil 时启用 Redis 快照：写操作后异步落盘，
// 内存未命中时尝试从快照恢复（进程重启后的会话延续）。
func NewSessionRepository(retentionCap int, snapshots *SessionSnapshotStore) SessionRepository {
	return &memorySessionRepository{
		entries:      make(map[string]*sessionEntry),
		retentionCap: retentionCap,
		snapshots:    snapshots,
	}
}

// entry 取出会话项；create 为 true 时不存在则创建。
func (r *memorySessionRepository) entry(ctx context.Context, sessionID string, create bool) (*sessionEntry, error) {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	// 内存未命中时先尝试从快照恢复。
	if r.snapshots != nil {
		if sess, err := r.snapshots.Load(ctx, sessionID); err == nil && sess != nil {
			r.mu.Lock()
			if existing, ok := r.entries[sessionID]; ok {
				r.mu.Unlock()
				return existing, nil
			}
			e = &sessionEntry{session: sess}
			r.entries[sessionID] = e
			r.mu.Unlock()
			log.Infof("[SessionRepository] 会话 %s 已从快照恢复", sessionID)
			return e, nil
		}
	}

	if !create {
		return nil, ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 双重检查：并发的首次访问只能有一个创建者。
	if existing, ok := r.entries[sessionID]; ok {
		return existing, nil
	}
	now := time.Now()
	e = &sessionEntry{session: &model.Session{
		SessionID:            sessionID,
		CreatedAt:            now,
		LastActivity:         now,
		Turns:                []model.ConversationTurn{},
		RecommendationEvents: []model.RecommendationEvent{},
		Preferences:          map[string]interface{}{},
	}}
	r.entries[sessionID] = e
	return e, nil
}

func (r *memorySessionRepository) GetOrCreate(ctx context.Context, sessionID string) (*model.Session, error) {
	e, err := r.entry(ctx, sessionID, true)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

func (r *memorySessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	e, err := r.entry(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

func (r *memorySessionRepository) AddTurn(ctx context.Context, sessionID string, turn model.ConversationTurn) error {
	e, err := r.entry(ctx, sessionID, true)
	if err != nil {
		return err
	}
	e.mu.Lock()
	r.appendTurnLocked(e.session, turn)
	snapshot := e.session.Clone()
	e.mu.Unlock()
	r.persist(snapshot)
	return nil
}

func (r *memorySessionRepository) AddRecommendation(ctx context.Context, sessionID string, event model.RecommendationEvent) error {
	e, err := r.entry(ctx, sessionID, true)
	if err != nil {
		return err
	}
	e.mu.Lock()
	r.appendEventLocked(e.session, event)
	snapshot := e.session.Clone()
	e.mu.Unlock()
	r.persist(snapshot)
	return nil
}

func (r *memorySessionRepository) CommitAssistantTurn(ctx context.Context, sessionID string, turn model.ConversationTurn, event model.RecommendationEvent) error {
	e, err := r.entry(ctx, sessionID, true)
	if err != nil {
		return err
	}
	e.mu.Lock()
	r.appendTurnLocked(e.session, turn)
	r.appendEventLocked(e.session, event)
	snapshot := e.session.Clone()
	e.mu.Unlock()
	r.persist(snapshot)
	return nil
}

// appendEventLocked 调用方必须持有 e.mu。
func (r *memorySessionRepository) appendEventLocked(s *model.Session, event model.RecommendationEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.RecommendationEvents = append(s.RecommendationEvents, event)
	s.LastActivity = time.Now()
}

// appendTurnLocked 调用方必须持有 e.mu。
func (r *memorySessionRepository) appendTurnLocked(s *model.Session, turn model.ConversationTurn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	s.Turns = append(s.Turns, turn)
	if r.retentionCap > 0 && len(s.Turns) > r.retentionCap {
		s.Turns = s.Turns[len(s.Turns)-r.retentionCap:]
	}
	s.LastActivity = time.Now()
}

func (r *memorySessionRepository) LastRecommendation(ctx context.Context, sessionID string) (model.RecommendationEvent, bool, error) {
	e, err := r.entry(ctx, sessionID, false)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return model.RecommendationEvent{}, false, nil
		}
		return model.RecommendationEvent{}, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	events := e.session.RecommendationEvents
	if len(events) == 0 {
		return model.RecommendationEvent{}, false, nil
	}
	last := events[len(events)-1]
	return model.RecommendationEvent{
		FoodIDs:   append([]string(nil), last.FoodIDs...),
		Timestamp: last.Timestamp,
	}, true, nil
}

func (r *memorySessionRepository) UpdatePreferences(ctx context.Context, sessionID string, prefs map[string]interface{}) error {
	if len(prefs) == 0 {
		return nil
	}
	e, err := r.entry(ctx, sessionID, true)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.session.Preferences == nil {
		e.session.Preferences = map[string]interface{}{}
	}
	for k, v := range prefs {
		e.session.Preferences[k] = v
	}
	e.session.LastActivity = time.Now()
	snapshot := e.session.Clone()
	e.mu.Unlock()
	r.persist(snapshot)
	return nil
}

func (r *memorySessionRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	_, existed := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()
	if r.snapshots != nil {
		if err := r.snapshots.Delete(ctx, sessionID); err != nil {
			log.Warnf("[SessionRepository] 删除会话 %s 的快照失败: %v", sessionID, err)
		}
	}
	return existed, nil
}

func (r *memorySessionRepository) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memorySessionRepository) Stats(ctx context.Context, sessionID string) (*model.SessionStats, error) {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	stats := &model.SessionStats{
		SessionID:     sess.SessionID,
		TotalMessages: len(sess.Turns),
		CreatedAt:     model.LocalTime(sess.CreatedAt),
		LastActivity:  model.LocalTime(sess.LastActivity),
	}
	for _, turn := range sess.Turns {
		switch turn.Role {
		case model.RoleUser:
			stats.UserMessages++
		case model.RoleAssistant:
			stats.AssistantMessages++
		}
	}
	unique := make(map[string]struct{})
	for _, ev := range sess.RecommendationEvents {
		stats.TotalRecommendations += len(ev.FoodIDs)
		for _, id := range ev.FoodIDs {
			unique[id] = struct{}{}
		}
	}
	stats.UniqueFoodItems = len(unique)
	return stats, nil
}

func (r *memorySessionRepository) PurgeIdle(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	r.mu.Lock()
	var stale []string
	for id, e := range r.entries {
		e.mu.Lock()
		if e.session.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	for _, id := range stale {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if len(stale) > 0 {
		log.Infof("[SessionRepository] 清理了 %d 个空闲会话", len(stale))
	}
	return len(stale)
}

// persist 把会话快照写入 Redis，失败只记日志，不影响主流程。
func (r *memorySessionRepository) persist(sess *model.Session) {
	if r.snapshots == nil {
		return
	}
	if err := r.snapshots.Save(context.Background(), sess); err != nil {
		log.Warnf("[SessionRepository] 写入会话 %s 的快照失败: %v", sess.SessionID, err)
	}
}

// SessionSnapshotStore 用 Redis 保存会话的 JSON 快照。
// 快照带 TTL，空闲会话到期自动淘汰，与内存清理互为兜底。
type SessionSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionSnapshotStore 创建快照存储。
func NewSessionSnapshotStore(client *redis.Client, ttl time.Duration) *SessionSnapshotStore {
	return &SessionSnapshotStore{client: client, ttl: ttl}
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s", sessionID)
}

// Save 序列化会话并写入 Redis。
func (s *SessionSnapshotStore) Save(ctx context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	return s.client.Set(ctx, snapshotKey(sess.SessionID), data, s.ttl).Err()
}

// Load 读取会话快照，不存在时返回 (nil, nil)。
func (s *SessionSnapshotStore) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := s.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("反序列化会话失败: %w", err)
	}
	return &sess, nil
}

// Delete 删除会话快照。
func (s *SessionSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, snapshotKey(sessionID)).Err()
}
