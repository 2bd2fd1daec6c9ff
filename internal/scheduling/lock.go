package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"academic-portal/backend/internal/model"
)

// ── 资源键串行化 ──────────────────────────────────────────
//
// 检查与写入之间持有 (星期, 房间) 与 (星期, 教师) 两把锁，
// 同一重叠窗口内至多一个写者成功。多把锁一律按键排序后获取，避免死锁。
// ─────────────────────────────────────────────────────────────

// ErrLockTimeout 等待锁超时
var ErrLockTimeout = errors.New("获取排课资源锁超时")

// Locker 按资源键加锁
type Locker interface {
	// Lock 获取全部键的锁，返回的 unlock 释放全部锁
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// RoomLockKey 房间维度资源键
func RoomLockKey(day model.Weekday, roomNo string) string {
	return fmt.Sprintf("room:%d:%s", int(day), RoomKey(roomNo))
}

// TeacherLockKey 教师维度资源键
func TeacherLockKey(day model.Weekday, teacherID string) string {
	return fmt.Sprintf("teacher:%d:%s", int(day), teacherID)
}

// LockKeys 返回排课占用的资源键
func LockKeys(e *model.TimetableEntry) []string {
	return []string{RoomLockKey(e.DayOfWeek, e.RoomNo), TeacherLockKey(e.DayOfWeek, e.TeacherID)}
}

// normalizeKeys 去重并排序
func normalizeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// ════════════════════════════════════════════════════════════
// MemoryLocker：单进程部署
// ════════════════════════════════════════════════════════════

type refLock struct {
	ch   chan struct{} // 容量为 1 的信号量，支持随 ctx 取消
	refs int
}

// MemoryLocker 进程内按键互斥锁，无人等待的键会被回收
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

// NewMemoryLocker 创建进程内锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*refLock)}
}

func (l *MemoryLocker) acquire(key string) *refLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl, ok := l.locks[key]
	if !ok {
		rl = &refLock{ch: make(chan struct{}, 1)}
		l.locks[key] = rl
	}
	rl.refs++
	return rl
}

func (l *MemoryLocker) release(key string, rl *refLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, key)
	}
}

// Lock 实现 Locker
func (l *MemoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	held := make([]func(), 0, len(keys))
	unlockAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, key := range keys {
		rl := l.acquire(key)
		select {
		case rl.ch <- struct{}{}:
			k := key
			held = append(held, func() {
				<-rl.ch
				l.release(k, rl)
			})
		case <-ctx.Done():
			l.release(key, rl)
			unlockAll()
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		}
	}
	var once sync.Once
	return func() { once.Do(unlockAll) }, nil
}

// ════════════════════════════════════════════════════════════
// RedisLocker：多进程部署
// ════════════════════════════════════════════════════════════

// LockClient Redis 锁原语，由 pkg/redis.Client 实现
type LockClient interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker 基于 SET NX PX 的分布式锁
// TTL 防止持有者崩溃后死锁，wait 为单次加锁的最长等待时间
type RedisLocker struct {
	client LockClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisLocker 创建分布式锁
func NewRedisLocker(client LockClient, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{client: client, prefix: "timetable:lock:", ttl: ttl, wait: wait, logger: logger}
}

const (
	redisLockMinBackoff = 10 * time.Millisecond
	redisLockMaxBackoff = 200 * time.Millisecond
)

// Lock 实现 Locker
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	token := uuid.New().String()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	var held []string
	release := func() {
		// 释放不受请求 ctx 取消影响
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := l.client.Unlock(rctx, l.prefix+held[i], token); err != nil {
				l.logger.Warn("释放排课锁失败", zap.String("key", held[i]), zap.Error(err))
			}
		}
	}

	for _, key := range keys {
		if err := l.lockOne(ctx, l.prefix+key, token); err != nil {
			release()
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, err)
		}
		held = append(held, key)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) lockOne(ctx context.Context, key, token string) error {
	backoff := redisLockMinBackoff
	for {
		ok, err := l.client.TryLock(ctx, key, token, l.ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff *= 2; backoff > redisLockMaxBackoff {
			backoff = redisLockMaxBackoff
		}
	}
}
