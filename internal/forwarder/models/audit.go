package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 审计动作
const (
	AuditSendOK           = "send_ok"
	AuditFloodWait        = "flood_wait"
	AuditSendForbidden    = "send_forbidden"
	AuditSendFail         = "send_fail"
	AuditSendUnauthorized = "send_unauthorized"
	AuditTargetDisabled   = "target_disabled"
	AuditNoSession        = "no_session"
	AuditNeedsReauth      = "needs_reauth"
	AuditEmptyPool        = "empty_pool"
	AuditPoolFail         = "pool_fail"
	AuditCycleCrash       = "cycle_crash"
	AuditCursorReset      = "cursor_reset"
	AuditTargetEnabled    = "target_enabled"
	AuditTargetAdded      = "target_added"
	AuditTargetRemoved    = "target_removed"
	AuditForwardingOn     = "forwarding_on"
	AuditForwardingOff    = "forwarding_off"
	AuditIntervalSet      = "interval_set"
	AuditSessionBound     = "session_bound"
)

// AuditEntry 审计记录（只追加）
type AuditEntry struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty"`
	AccountID int64                  `bson:"account_id"`
	Action    string                 `bson:"action"`
	Payload   map[string]interface{} `bson:"payload,omitempty"`
	CreatedAt time.Time              `bson:"created_at"` // 创建时间（TTL索引）
}
