package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
	OrderStatusFailed  = "FAILED"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusFailed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// RechargeOrder 充值订单
// 创建时为 PENDING，支付网关回调确认后转为 PAID（只会发生一次），超时未支付转为 FAILED
type RechargeOrder struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	IdempotencyKey string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"idempotency_key"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	AmountCNY      decimal.Decimal `gorm:"column:amount_cny;type:decimal(20,2);not null" json:"amount_cny"`
	CoinsAmount    int64           `gorm:"not null" json:"coins_amount"`
	Method         string          `gorm:"type:varchar(32);not null" json:"method"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	ExpiredAt      time.Time       `gorm:"not null" json:"expired_at"`
	PaidAt         *time.Time      `json:"paid_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RechargeOrder) TableName() string {
	return "recharge_order"
}
