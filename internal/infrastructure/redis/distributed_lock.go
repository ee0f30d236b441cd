package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/logger"
	"github.com/sanosuguru/go-event-price-tracker/internal/pkg/metrics"
)

var (
	ErrLockNotAcquired = errors.New("ロックを取得できませんでした")
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
)

// 所有者確認と削除をアトミックに行う
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// 所有者確認と有効期限の延長をアトミックに行う
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// LockOptions はロック取得の設定
type LockOptions struct {
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DistributedLock は Redis を使用した分散ロック
type DistributedLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// LockManager はイベント識別子ごとの分散ロックを管理する
// 同じイベントへの照合が複数プロセスから重なった場合に、DBの行ロック待ちより手前で待ち合わせる
type LockManager struct {
	client  *redis.Client
	opts    LockOptions
	metrics *metrics.Metrics
}

// NewLockManager は LockManager を作成する。m が nil の場合はメトリクスを記録しない
func NewLockManager(client *redis.Client, opts LockOptions, m *metrics.Metrics) *LockManager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	return &LockManager{client: client, opts: opts, metrics: m}
}

// Acquire は設定に従いリトライしながらロックを取得する
func (m *LockManager) Acquire(ctx context.Context, key string) (*DistributedLock, error) {
	start := time.Now()
	lock, err := m.acquireWithRetry(ctx, key)
	m.observe("acquire", start, err)
	return lock, err
}

func (m *LockManager) acquireWithRetry(ctx context.Context, key string) (*DistributedLock, error) {
	var lastErr error
	for i := 0; i < m.opts.MaxRetries; i++ {
		lock, err := m.tryAcquire(ctx, key)
		if err == nil {
			return lock, nil
		}
		lastErr = err
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		if i == m.opts.MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.opts.RetryDelay):
		}
	}
	return nil, lastErr
}

// tryAcquire は1回だけロック取得を試みる
func (m *LockManager) tryAcquire(ctx context.Context, key string) (*DistributedLock, error) {
	lockKey := "lock:reconcile:" + key
	token := uuid.NewString()

	ok, err := m.client.SetNX(ctx, lockKey, token, m.opts.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &DistributedLock{client: m.client, key: lockKey, token: token, ttl: m.opts.TTL}, nil
}

// Lock はロックを取得し、解放関数を返す
// 保持中は TTL の1/3ごとに有効期限を延長するため、照合が TTL より長引いてもロックは失われない
func (m *LockManager) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := m.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go m.keepAlive(lock, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return m.Release(ctx, lock)
	}, nil
}

// keepAlive は stop が閉じられるまでロックを延長し続ける
func (m *LockManager) keepAlive(lock *DistributedLock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := m.opts.TTL / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			start := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := lock.Extend(ctx, m.opts.TTL)
			cancel()
			m.observe("extend", start, err)
			if err != nil {
				logger.Warn("ロックの延長に失敗しました", zap.String("key", lock.Key()), zap.Error(err))
				if errors.Is(err, ErrLockNotOwned) {
					return
				}
			}
		}
	}
}

// Release はロックを解放する
func (m *LockManager) Release(ctx context.Context, lock *DistributedLock) error {
	start := time.Now()
	err := lock.Release(ctx)
	m.observe("release", start, err)
	return err
}

func (m *LockManager) observe(op string, start time.Time, err error) {
	if m.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.metrics.DistributedLockDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// Key はロックの Redis キーを返す
func (l *DistributedLock) Key() string {
	return l.key
}

// Release はロックを解放する。他者に取られていた場合は ErrLockNotOwned
func (l *DistributedLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("ロック解放に失敗: %w", err)
	}
	if result == 0 {
		return ErrLockNotOwned
	}
	return nil
}

// Extend はロックの有効期限を延長する
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("ロック延長に失敗: %w", err)
	}
	if result == 0 {
		return ErrLockNotOwned
	}
	l.ttl = ttl
	return nil
}
