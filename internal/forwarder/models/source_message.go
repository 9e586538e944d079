package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceMessage 源会话中记录到的消息
type SourceMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ChatID     int64              `bson:"chat_id"`     // 源会话 ID
	MessageID  int                `bson:"message_id"`  // 消息 ID
	HasContent bool               `bson:"has_content"` // 是否有可转发内容
	IsControl  bool               `bson:"is_control"`  // 是否为自用命令（以 . 开头）
	PostedAt   time.Time          `bson:"posted_at"`
	CreatedAt  time.Time          `bson:"created_at"`
}

// Eligible 是否可以进入转发消息池
func (m *SourceMessage) Eligible() bool {
	return m.HasContent && !m.IsControl
}

// IsControlText 判断文本是否为自用命令（如 .status / .help），此类消息不转发
func IsControlText(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), ".")
}

// PoolCursor 消息池轮换游标（丢失后从 0 重新开始）
type PoolCursor struct {
	AccountID int64     `bson:"account_id"`
	Cursor    int       `bson:"cursor"`
	UpdatedAt time.Time `bson:"updated_at"`
}
