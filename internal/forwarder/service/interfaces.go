package service

import (
	"context"
	"errors"
	"time"

	"ads_forwarder/internal/forwarder/models"
)

var (
	// ErrInvalidInterval 转发间隔不在允许范围内
	ErrInvalidInterval = errors.New("interval must be one of 30, 45, 60 minutes")
	// ErrInvalidTarget 目标标识为空或格式错误
	ErrInvalidTarget = errors.New("invalid target id")
	// ErrInvalidSession 会话绑定参数不完整
	ErrInvalidSession = errors.New("invalid session binding")
)

// ControlService 转发运维操作接口
type ControlService interface {
	// Snapshot 返回账号的完整状态视图
	Snapshot(ctx context.Context, accountID int64) (*AccountStatus, error)

	// ResetCursor 消息池游标归零
	ResetCursor(ctx context.Context, accountID int64) error

	// EnableTarget 人工重新启用目标并清零失败计数
	EnableTarget(ctx context.Context, accountID int64, targetID string) error

	// AddTarget 添加目标（受数量上限约束）
	AddTarget(ctx context.Context, accountID int64, targetID, title string) (*models.Target, error)

	// RemoveTarget 删除目标
	RemoveTarget(ctx context.Context, accountID int64, targetID string) error

	// SetForwarding 开启或关闭转发，关闭时释放账号缓存
	SetForwarding(ctx context.Context, accountID int64, enabled bool) error

	// SetInterval 设置转发间隔
	SetInterval(ctx context.Context, accountID int64, minutes int) error

	// BindSession 绑定会话槽位（会话登录完成事件）
	BindSession(ctx context.Context, binding SessionBinding) error
}

// SessionBinding 会话绑定参数
type SessionBinding struct {
	AccountID    int64
	Username     string
	Slot         int
	Token        string
	SourceChatID int64
}

// SlotStatus 会话槽位状态
type SlotStatus struct {
	Slot            int
	Live            bool
	NeedsReauth     bool
	ReauthFlaggedAt *time.Time
	Token           string // 脱敏后的凭证
}

// TargetHealth 目标健康状态
type TargetHealth struct {
	TargetID          string
	Title             string
	Enabled           bool
	AutoDisabled      bool
	FailCount         int
	LastError         string
	LastSendAt        *time.Time
	CooldownRemaining time.Duration
	DisabledAt        *time.Time
}

// PoolStatus 消息池状态
type PoolStatus struct {
	Loaded bool
	Size   int
	Cursor int
}

// AccountStatus 账号状态视图
type AccountStatus struct {
	Account   *models.Account
	NextDueAt time.Time
	Slots     []SlotStatus
	Targets   []TargetHealth
	Pool      PoolStatus
	Recent    []*models.AuditEntry
}
