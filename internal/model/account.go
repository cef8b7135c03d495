package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 用户账户表
// 只存储付费硬币余额和现金余额；免费硬币余额由 credit_batch 汇总得出，不落在账户上
type Account struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"uniqueIndex;not null" json:"user_id"` // 用户ID，业务方传入
	// 付费硬币余额（充值所得，可转账，不过期）
	PaidBalance int64 `gorm:"not null;default:0" json:"paid_balance"`
	// 现金余额（元）
	CashBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cash_balance"`
	Version     int             `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// UserProfile 用户成长数据（声望、经验），由采纳、签到等事件尽力更新
type UserProfile struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Reputation int64     `gorm:"not null;default:0" json:"reputation"`
	Experience int64     `gorm:"not null;default:0" json:"experience"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserProfile) TableName() string {
	return "user_profile"
}
