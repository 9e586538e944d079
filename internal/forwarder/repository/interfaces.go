package repository

import (
	"context"
	"errors"
	"time"

	"ads_forwarder/internal/forwarder/models"
)

var (
	// ErrNotFound 记录不存在（例如目标在周期执行期间被删除）
	ErrNotFound = errors.New("record not found")
	// ErrTargetCapReached 账号目标数量已达上限
	ErrTargetCapReached = errors.New("target cap reached")
	// ErrTargetExists 目标已存在
	ErrTargetExists = errors.New("target already exists")
	// ErrInvalidCooldown 冷却时长必须为正
	ErrInvalidCooldown = errors.New("cooldown must be positive")
)

// AccountRepository 账号数据访问接口
type AccountRepository interface {
	// Ensure 创建账号（已存在时只更新用户名）
	Ensure(ctx context.Context, accountID int64, username string) error

	// GetByAccountID 获取账号
	GetByAccountID(ctx context.Context, accountID int64) (*models.Account, error)

	// ListForwardingEnabled 列出所有开启转发的账号
	ListForwardingEnabled(ctx context.Context) ([]*models.Account, error)

	// SetForwardingEnabled 开启或关闭转发
	SetForwardingEnabled(ctx context.Context, accountID int64, enabled bool) error

	// SetInterval 设置转发间隔（分钟）
	SetInterval(ctx context.Context, accountID int64, minutes int) error

	// UpdateLastCycle 记录最近一次转发周期时间
	UpdateLastCycle(ctx context.Context, accountID int64, at time.Time) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// TargetRepository 目标健康状态存储
type TargetRepository interface {
	// DueTargets 返回到期目标：已启用、未冷却、间隔窗口内未发送；从未发送的在前，其余按最后发送时间升序
	DueTargets(ctx context.Context, accountID int64, now time.Time, interval time.Duration) ([]*models.Target, error)

	// MarkSent 记录发送成功时间（不修改失败计数）
	MarkSent(ctx context.Context, accountID int64, targetID string, at time.Time) error

	// SetCooldown 设置冷却截止时间为 at + d（仅用于限流）
	SetCooldown(ctx context.Context, accountID int64, targetID string, at time.Time, d time.Duration) error

	// IncrementFailure 原子地增加失败计数，达到阈值时在同一次更新中禁用目标
	IncrementFailure(ctx context.Context, accountID int64, targetID string, at time.Time, reason string) (models.FailureResult, error)

	// ResetFailure 发送成功后清零失败计数
	ResetFailure(ctx context.Context, accountID int64, targetID string, at time.Time) error

	// Enable 人工重新启用目标并清零失败计数
	Enable(ctx context.Context, accountID int64, targetID string, at time.Time) error

	// AddTarget 添加目标，超过 maxTargets 时返回 ErrTargetCapReached
	AddTarget(ctx context.Context, target *models.Target, maxTargets int) error

	// RemoveTarget 删除目标
	RemoveTarget(ctx context.Context, accountID int64, targetID string) error

	// ListByAccount 列出账号全部目标（含已禁用）
	ListByAccount(ctx context.Context, accountID int64) ([]*models.Target, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// CredentialRepository 会话凭证数据访问接口
type CredentialRepository interface {
	// Upsert 写入会话槽位（会清除重新登录标记）
	Upsert(ctx context.Context, cred *models.Credential) error

	// ListByAccount 按槽位顺序列出账号全部凭证
	ListByAccount(ctx context.Context, accountID int64) ([]*models.Credential, error)

	// MarkNeedsReauth 标记凭证失效
	MarkNeedsReauth(ctx context.Context, accountID int64, slot int, at time.Time) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// CursorRepository 消息池游标持久化
type CursorRepository interface {
	// Get 获取游标，不存在时 ok=false
	Get(ctx context.Context, accountID int64) (cursor int, ok bool, err error)

	// Save 保存游标
	Save(ctx context.Context, accountID int64, cursor int) error
}

// AuditRepository 审计记录
type AuditRepository interface {
	// Append 追加一条审计记录
	Append(ctx context.Context, entry *models.AuditEntry) error

	// ListRecent 按时间倒序返回账号最近的审计记录
	ListRecent(ctx context.Context, accountID int64, limit int) ([]*models.AuditEntry, error)

	// EnsureIndexes 确保索引存在，retentionDays 为 TTL 保留天数
	EnsureIndexes(ctx context.Context, retentionDays int) error
}

// SourceMessageRepository 源会话消息记录
type SourceMessageRepository interface {
	// Record 记录一条源会话消息（重复记录时覆盖）
	Record(ctx context.Context, msg *models.SourceMessage) error

	// ListByChat 按消息 ID 升序列出源会话的消息
	ListByChat(ctx context.Context, chatID int64) ([]*models.SourceMessage, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

var (
	_ AccountRepository       = (*MongoAccountRepository)(nil)
	_ TargetRepository        = (*MongoTargetRepository)(nil)
	_ CredentialRepository    = (*MongoCredentialRepository)(nil)
	_ CursorRepository        = (*MongoCursorRepository)(nil)
	_ AuditRepository         = (*MongoAuditRepository)(nil)
	_ SourceMessageRepository = (*MongoSourceMessageRepository)(nil)
)
