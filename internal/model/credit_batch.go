package model

import (
	"time"
)

// CreditBatch 免费硬币批次表
// 每次赠送（签到、活动）生成一个批次，带过期时间；消费时按过期时间先到先扣
//
// 不变量：0 <= RemainingAmount <= AmountGranted，IsDepleted 当且仅当 RemainingAmount == 0
type CreditBatch struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64     `gorm:"index:idx_batch_user_active,priority:1;not null" json:"user_id"`
	AmountGranted   int64     `gorm:"not null" json:"amount_granted"`
	RemainingAmount int64     `gorm:"not null" json:"remaining_amount"`
	IsDepleted      bool      `gorm:"index:idx_batch_user_active,priority:2;not null;default:false" json:"is_depleted"`
	Reason          string    `gorm:"type:varchar(64);not null" json:"reason"`
	GrantedAt       time.Time `gorm:"not null" json:"granted_at"`
	ExpireAt        time.Time `gorm:"index:idx_batch_user_active,priority:3;not null" json:"expire_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditBatch) TableName() string {
	return "credit_batch"
}

// CheckinRecord 每日签到记录，(user_id, checkin_date) 唯一
type CheckinRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex:uk_checkin_user_date,priority:1;not null" json:"user_id"`
	CheckinDate string    `gorm:"type:varchar(10);uniqueIndex:uk_checkin_user_date,priority:2;not null" json:"checkin_date"`
	BatchID     int64     `gorm:"not null" json:"batch_id"`
	Reward      int64     `gorm:"not null" json:"reward"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CheckinRecord) TableName() string {
	return "checkin_record"
}
