package idgen

import (
	"fmt"
	"sync"
	"time"
)

// 雪花算法：1 位符号 | 41 位毫秒时间戳 | 10 位机器ID | 12 位序列号
// 单号 = 业务前缀 + 秒级时间 + ID 后 12 位，趋势递增，便于按时间排查流水
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// 单号前缀
const (
	PrefixRecharge = "RCH"
	PrefixEntry    = "LED"
	PrefixTransfer = "TRF"
)

// Snowflake ID 生成器，并发安全
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	initMu           sync.Mutex
)

// NewSnowflake 创建生成器
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init 初始化默认生成器，重复调用只有第一次生效
func Init(workerID int64) error {
	initMu.Lock()
	defer initMu.Unlock()
	if defaultGenerator != nil {
		return nil
	}
	g, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	defaultGenerator = g
	return nil
}

// NextID 生成下一个ID，未初始化时使用 workerID = 1
func NextID() int64 {
	initMu.Lock()
	if defaultGenerator == nil {
		defaultGenerator = &Snowflake{workerID: 1}
	}
	g := defaultGenerator
	initMu.Unlock()
	return g.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.timestamp {
		// 时钟回拨：沿用上次的时间戳继续递增序列号
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// Generate 生成带前缀的单号，例如 RCH20240115143052000123456789
func Generate(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%012d", prefix, time.Now().Format("20060102150405"), id%1000000000000)
}

// GenerateOrderNo 生成充值订单号
func GenerateOrderNo() string {
	return Generate(PrefixRecharge)
}

// GenerateEntryNo 生成流水号
func GenerateEntryNo() string {
	return Generate(PrefixEntry)
}

// GenerateTransferNo 生成转账单号
func GenerateTransferNo() string {
	return Generate(PrefixTransfer)
}
