package model

import (
	"time"
)

const (
	RelationLike     = "like"
	RelationFavorite = "favorite"
	RelationFollow   = "follow"
)

// ValidRelationKinds 支持的关系类型
var ValidRelationKinds = map[string]bool{
	RelationLike:     true,
	RelationFavorite: true,
	RelationFollow:   true,
}

// RelationToggle 点赞/收藏/关注关系，(actor_id, target_id, kind) 唯一
type RelationToggle struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID   int64     `gorm:"uniqueIndex:uk_relation,priority:1;not null" json:"actor_id"`
	TargetID  int64     `gorm:"uniqueIndex:uk_relation,priority:2;index;not null" json:"target_id"`
	Kind      string    `gorm:"type:varchar(16);uniqueIndex:uk_relation,priority:3;not null" json:"kind"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (RelationToggle) TableName() string {
	return "relation_toggle"
}
