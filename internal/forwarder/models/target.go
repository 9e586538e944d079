package models

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FailureThreshold 连续失败达到该次数后目标被自动禁用
const FailureThreshold = 3

// Target 转发目标（群组或频道）
type Target struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	AccountID     int64              `bson:"account_id"`               // 所属账号
	TargetID      string             `bson:"target_id"`                // 目标 chat id（如 -100123）或 @username
	Title         string             `bson:"title,omitempty"`          // 展示名称
	Enabled       bool               `bson:"enabled"`                  // 是否启用
	LastSendAt    *time.Time         `bson:"last_send_at,omitempty"`   // 最后一次成功发送时间
	CooldownUntil *time.Time         `bson:"cooldown_until,omitempty"` // 冷却截止时间（限流后设置）
	FailCount     int                `bson:"fail_count"`               // 连续失败次数
	LastError     string             `bson:"last_error,omitempty"`     // 最近一次失败原因
	DisabledAt    *time.Time         `bson:"disabled_at,omitempty"`    // 自动禁用时间
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

// FailureResult 失败计数更新后的结果
type FailureResult struct {
	FailCount int
	Disabled  bool
}

// InCooldown 判断目标在 now 时刻是否仍处于冷却期
func (t *Target) InCooldown(now time.Time) bool {
	return t.CooldownUntil != nil && t.CooldownUntil.After(now)
}

// CooldownRemaining 返回剩余冷却时间
func (t *Target) CooldownRemaining(now time.Time) time.Duration {
	if !t.InCooldown(now) {
		return 0
	}
	return t.CooldownUntil.Sub(now)
}

// IsDue 判断目标是否可被选中：已启用、未冷却、且在间隔窗口内未发送
func (t *Target) IsDue(now time.Time, interval time.Duration) bool {
	if !t.Enabled || t.InCooldown(now) {
		return false
	}
	if t.LastSendAt == nil {
		return true
	}
	return !t.LastSendAt.After(now.Add(-interval))
}

// AutoDisabled 判断目标是否因连续失败被禁用
func (t *Target) AutoDisabled() bool {
	return !t.Enabled && t.FailCount >= FailureThreshold
}

// ApplyFailure 在内存中执行一次失败计数，语义与存储层原子更新一致
func (t *Target) ApplyFailure(at time.Time, reason string) FailureResult {
	t.FailCount++
	t.LastError = reason
	t.UpdatedAt = at
	if t.FailCount >= FailureThreshold && t.Enabled {
		t.Enabled = false
		disabledAt := at
		t.DisabledAt = &disabledAt
	}
	return FailureResult{FailCount: t.FailCount, Disabled: !t.Enabled}
}

// SortByStarvation 按饥饿程度排序：从未发送的在前，其余按最后发送时间升序
func SortByStarvation(targets []*Target) {
	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		switch {
		case a.LastSendAt == nil && b.LastSendAt == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.LastSendAt == nil:
			return true
		case b.LastSendAt == nil:
			return false
		case !a.LastSendAt.Equal(*b.LastSendAt):
			return a.LastSendAt.Before(*b.LastSendAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}

// FilterDue 过滤出到期目标并按饥饿程度排序
func FilterDue(targets []*Target, now time.Time, interval time.Duration) []*Target {
	due := make([]*Target, 0, len(targets))
	for _, t := range targets {
		if t != nil && t.IsDue(now, interval) {
			due = append(due, t)
		}
	}
	SortByStarvation(due)
	return due
}

// NormalizeTargetID 规范化目标标识：数字 chat id 原样保留，用户名补全 @ 前缀
func NormalizeTargetID(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "t.me/")
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return s
}
