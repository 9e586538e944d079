// Package messaging 定义调度核心与平台账号通信层之间的契约。
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads_forwarder/internal/forwarder/models"
)

// ErrAuth 凭证已失效，需要用户重新登录
var ErrAuth = errors.New("credential is no longer authorized")

// MessageDescriptor 账号自有消息的描述
type MessageDescriptor struct {
	ID         int
	HasContent bool
}

// Outcome 单次发送的结果类型
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeRateLimited
	OutcomeForbidden
	OutcomeError
)

// String 返回审计与指标使用的结果名称
func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "error"
	}
}

// SendResult 发送结果：Sent | RateLimited{RetryAfter} | Forbidden | Error
type SendResult struct {
	Outcome    Outcome
	RetryAfter time.Duration // 仅 RateLimited 有效
	Err        error         // Forbidden / Error 的原始错误
}

// Sent 发送成功
func Sent() SendResult { return SendResult{Outcome: OutcomeSent} }

// RateLimited 平台要求等待 retryAfter 后再试
func RateLimited(retryAfter time.Duration) SendResult {
	return SendResult{Outcome: OutcomeRateLimited, RetryAfter: retryAfter}
}

// Forbidden 无权限向目标发送
func Forbidden(err error) SendResult { return SendResult{Outcome: OutcomeForbidden, Err: err} }

// Failed 其它错误（超时、网络等）
func Failed(err error) SendResult { return SendResult{Outcome: OutcomeError, Err: err} }

// Unauthorized 发送时凭证已失效（账号级问题，与目标无关）
func (r SendResult) Unauthorized() bool {
	return r.Outcome == OutcomeError && errors.Is(r.Err, ErrAuth)
}

// Reason 返回便于记录的失败原因
func (r SendResult) Reason() string {
	switch {
	case r.Outcome == OutcomeRateLimited:
		return fmt.Sprintf("rate limited for %s", r.RetryAfter)
	case r.Err != nil:
		return r.Err.Error()
	default:
		return r.Outcome.String()
	}
}

// Connection 一个已连接的账号会话
type Connection interface {
	// Slot 返回该连接对应的会话槽位
	Slot() int

	// ListOwnMessages 按从旧到新的顺序列出账号自有的消息
	ListOwnMessages(ctx context.Context) ([]MessageDescriptor, error)

	// Send 把 messageID 对应的消息发送到 targetID
	Send(ctx context.Context, targetID string, messageID int) SendResult

	// Close 释放连接
	Close() error
}

// Connector 根据凭证建立连接；凭证失效时返回包装了 ErrAuth 的错误
type Connector interface {
	Connect(ctx context.Context, cred *models.Credential) (Connection, error)
}
