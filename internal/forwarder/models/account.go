package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultIntervalMinutes 默认转发间隔（分钟）
const DefaultIntervalMinutes = 30

// allowedIntervals 允许配置的转发间隔（分钟）
var allowedIntervals = []int{30, 45, 60}

// Account 转发账号（一个终端用户连接的身份）
type Account struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	AccountID         int64              `bson:"account_id"`              // 账号所有者的 Telegram 用户 ID（唯一）
	Username          string             `bson:"username,omitempty"`      // 账号所有者用户名
	ForwardingEnabled bool               `bson:"forwarding_enabled"`      // 是否开启自动转发
	IntervalMinutes   int                `bson:"interval_minutes"`        // 转发间隔（分钟）
	LastCycleAt       *time.Time         `bson:"last_cycle_at,omitempty"` // 上一次转发周期时间
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

// NormalizeInterval 将间隔规范为允许值，非法值回退为默认 30 分钟
func NormalizeInterval(minutes int) int {
	for _, v := range allowedIntervals {
		if v == minutes {
			return minutes
		}
	}
	return DefaultIntervalMinutes
}

// IsAllowedInterval 判断间隔是否为允许值
func IsAllowedInterval(minutes int) bool {
	return NormalizeInterval(minutes) == minutes
}

// AllowedIntervals 返回允许的间隔列表副本
func AllowedIntervals() []int {
	return append([]int(nil), allowedIntervals...)
}

// Interval 返回账号的转发间隔
func (a *Account) Interval() time.Duration {
	return time.Duration(NormalizeInterval(a.IntervalMinutes)) * time.Minute
}

// IsDue 判断账号在 now 时刻是否到期
func (a *Account) IsDue(now time.Time) bool {
	if a.LastCycleAt == nil {
		return true
	}
	return now.Sub(*a.LastCycleAt) >= a.Interval()
}

// NextDueAt 返回账号下一次到期时间（从未运行过则为零值）
func (a *Account) NextDueAt() time.Time {
	if a.LastCycleAt == nil {
		return time.Time{}
	}
	return a.LastCycleAt.Add(a.Interval())
}
