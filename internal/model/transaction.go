package model

import (
	"time"
)

// ============================================================================
// 余额类型 / 交易类型常量
// ============================================================================

const (
	BalanceTypePaid = "PAID" // 付费硬币
	BalanceTypeFree = "FREE" // 免费硬币（批次）
)

const (
	OpTypeCheckin      = "checkin"       // 签到赠送
	OpTypeGrant        = "grant"         // 活动赠送
	OpTypeSpend        = "spend"         // 消费
	OpTypeRecharge     = "recharge"      // 充值
	OpTypeTransfer     = "transfer"      // 转账（打赏、礼物）
	OpTypeBountyReward = "bounty_reward" // 悬赏采纳
	OpTypeRefund       = "refund"        // 退款
	OpTypeExpire       = "expire"        // 批次过期回收
)

// ============================================================================
// 账本流水实体
// ============================================================================

// LedgerEntry 账本流水表
// 记录每一笔余额变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 与余额变动在同一个事务内写入，有变动必有流水，有流水必有变动
// 3. 同一账户同一余额类型下，所有 Delta 之和等于当前余额
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`                             // 流水号（全局唯一）
	UserID        int64     `gorm:"index:idx_entry_user_type,priority:1;not null" json:"user_id"`                       // 用户ID
	Delta         int64     `gorm:"not null" json:"delta"`                                                             // 变动金额（正数入账，负数出账）
	BalanceType   string    `gorm:"type:varchar(8);index:idx_entry_user_type,priority:2;not null" json:"balance_type"` // PAID / FREE
	OpType        string    `gorm:"type:varchar(32);not null" json:"op_type"`                                          // 交易类型
	RelatedID     string    `gorm:"type:varchar(64);index;not null;default:''" json:"related_id"`                      // 关联单号（订单号、转账号、批次号）
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                                                    // 交易前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                                                     // 交易后余额
	Description   string    `gorm:"type:varchar(256)" json:"description"`                                              // 备注
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// TransferRecord 转账记录，按幂等键唯一
// 保存首次执行的结果，相同幂等键的重试直接返回这里的结果
type TransferRecord struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IdempotencyKey   string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"idempotency_key"`
	TransferNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transfer_no"`
	FromUserID       int64     `gorm:"index;not null" json:"from_user_id"`
	ToUserID         int64     `gorm:"index;not null" json:"to_user_id"`
	Amount           int64     `gorm:"not null" json:"amount"`
	OpType           string    `gorm:"type:varchar(32);not null" json:"op_type"`
	FromBalanceAfter int64     `gorm:"not null" json:"from_balance_after"`
	ToBalanceAfter   int64     `gorm:"not null" json:"to_balance_after"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TransferRecord) TableName() string {
	return "transfer_record"
}
