package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 数据库事务 + 行锁已经保证了余额的正确性，这里的锁用于在多实例部署时
// 把同一付款人 / 同一悬赏帖的请求提前排队，减少事务之间的锁等待和回滚。
//
// 加锁：SET key value NX PX timeout
// 释放：Lua 脚本校验 value 后删除，防止误删其他持有者的锁
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// Key 返回锁的 key
func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// ============================================================================
// 便捷函数
// ============================================================================

// NewAccountLock 按付款用户维度加锁：同一用户的转账、消费排队执行，不同用户互不影响
func NewAccountLock(client *redis.Client, userID int64, owner string) *DistributedLock {
	return NewDistributedLock(client, fmt.Sprintf("ledger:lock:account:%d", userID), owner, 30*time.Second)
}

// NewSubjectLock 按悬赏帖维度加锁，防止同一悬赏被并发采纳
func NewSubjectLock(client *redis.Client, subjectID int64, owner string) *DistributedLock {
	return NewDistributedLock(client, fmt.Sprintf("ledger:lock:subject:%d", subjectID), owner, 30*time.Second)
}

// NewCheckinLock 按用户 + 日期加锁，防止重复签到请求同时进入事务
func NewCheckinLock(client *redis.Client, userID int64, date string, owner string) *DistributedLock {
	return NewDistributedLock(client, fmt.Sprintf("ledger:lock:checkin:%d:%s", userID, date), owner, 10*time.Second)
}
