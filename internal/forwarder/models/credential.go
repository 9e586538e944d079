package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Credential 账号的一个会话槽位
type Credential struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	AccountID       int64              `bson:"account_id"`                  // 所属账号
	Slot            int                `bson:"slot"`                        // 槽位编号（从 1 开始）
	Token           string             `bson:"token"`                       // 平台凭证，禁止写入日志
	SourceChatID    int64              `bson:"source_chat_id"`              // 待转发消息所在的源会话
	NeedsReauth     bool               `bson:"needs_reauth"`                // 凭证失效，需要重新登录
	ReauthFlaggedAt *time.Time         `bson:"reauth_flagged_at,omitempty"` // 标记失效时间
	UpdatedAt       time.Time          `bson:"updated_at"`
}

// RedactedToken 返回脱敏后的凭证，用于展示
func (c *Credential) RedactedToken() string {
	if len(c.Token) <= 6 {
		return "******"
	}
	return c.Token[:4] + "…" + c.Token[len(c.Token)-2:]
}
