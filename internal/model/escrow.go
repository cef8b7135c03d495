package model

import (
	"time"
)

// EscrowSubject 悬赏主体（悬赏帖）
// 悬赏金额在采纳时才从发帖人付费余额转给被采纳者；Resolved 只能由采纳流程置为 true，
// 且与转账在同一事务提交，悬赏金额大于 0 时不会出现"已采纳但未转账"的状态
type EscrowSubject struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID           int64      `gorm:"uniqueIndex;not null" json:"post_id"`
	OwnerUserID      int64      `gorm:"index;not null" json:"owner_user_id"`
	BountyAmount     int64      `gorm:"not null;default:0" json:"bounty_amount"`
	Resolved         bool       `gorm:"not null;default:false" json:"resolved"`
	RecipientUserID  *int64     `json:"recipient_user_id"`
	AdoptedCommentID *int64     `json:"adopted_comment_id"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EscrowSubject) TableName() string {
	return "escrow_subject"
}
