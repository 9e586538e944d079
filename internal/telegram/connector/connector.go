// Package connector 基于 Telegram Bot API 实现账号会话连接。
package connector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ads_forwarder/internal/forwarder/messaging"
	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// defaultRetryAfter 平台未给出等待时间时使用的限流时长
const defaultRetryAfter = 5 * time.Second

// 这些 bad request 描述意味着账号无权向目标发送
var forbiddenHints = []string{
	"chat not found",
	"not enough rights",
	"need administrator rights",
	"chat_write_forbidden",
	"have no rights to send",
	"user is deactivated",
	"channel_private",
}

// SourceLister 读取源会话中记录的消息
type SourceLister interface {
	ListByChat(ctx context.Context, chatID int64) ([]*models.SourceMessage, error)
}

// Forwarder Telegram 转发接口（*bot.Bot 实现）
type Forwarder interface {
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*botModels.Message, error)
}

// Connector 为每个凭证创建独立的 Bot API 客户端
type Connector struct {
	sources SourceLister
	opts    []bot.Option
}

// New 创建连接器，opts 会追加到每个客户端的选项中
func New(sources SourceLister, opts ...bot.Option) *Connector {
	return &Connector{sources: sources, opts: opts}
}

// Connect 创建客户端并通过 getMe 校验凭证
func (c *Connector) Connect(ctx context.Context, cred *models.Credential) (messaging.Connection, error) {
	if cred == nil || cred.Token == "" {
		return nil, fmt.Errorf("empty credential: %w", messaging.ErrAuth)
	}

	opts := append([]bot.Option{bot.WithSkipGetMe()}, c.opts...)
	client, err := bot.New(cred.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot client: %w", err)
	}

	me, err := client.GetMe(ctx)
	if err != nil {
		if errors.Is(err, bot.ErrorUnauthorized) {
			return nil, fmt.Errorf("slot %d: %w", cred.Slot, messaging.ErrAuth)
		}
		return nil, fmt.Errorf("failed to call getMe: %w", err)
	}

	logger.Account(cred.AccountID).WithField("slot", cred.Slot).Debugf("Session connected as @%s", me.Username)
	return NewConnection(client, c.sources, cred.Slot, cred.SourceChatID), nil
}

// Connection 一个凭证槽位对应的连接
type Connection struct {
	api          Forwarder
	sources      SourceLister
	slot         int
	sourceChatID int64
}

// NewConnection 创建连接
func NewConnection(api Forwarder, sources SourceLister, slot int, sourceChatID int64) *Connection {
	return &Connection{
		api:          api,
		sources:      sources,
		slot:         slot,
		sourceChatID: sourceChatID,
	}
}

var _ messaging.Connection = (*Connection)(nil)

// Slot 返回槽位编号
func (c *Connection) Slot() int { return c.slot }

// ListOwnMessages 返回源会话中记录的消息（按消息 ID 升序）
func (c *Connection) ListOwnMessages(ctx context.Context) ([]messaging.MessageDescriptor, error) {
	if c.sourceChatID == 0 {
		return nil, nil
	}
	messages, err := c.sources.ListByChat(ctx, c.sourceChatID)
	if err != nil {
		return nil, err
	}

	out := make([]messaging.MessageDescriptor, 0, len(messages))
	for _, m := range messages {
		out = append(out, messaging.MessageDescriptor{ID: m.MessageID, HasContent: m.Eligible()})
	}
	return out, nil
}

// Send 把源会话中的消息转发到目标
func (c *Connection) Send(ctx context.Context, targetID string, messageID int) messaging.SendResult {
	_, err := c.api.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     chatRef(targetID),
		FromChatID: c.sourceChatID,
		MessageID:  messageID,
	})
	if err == nil {
		return messaging.Sent()
	}
	return classifySendError(err)
}

// Close 释放连接；Bot API 客户端无长连接
func (c *Connection) Close() error { return nil }

// chatRef 数字 ID 按 int64 传递，其余按 @username 传递
func chatRef(targetID string) any {
	if id, err := strconv.ParseInt(targetID, 10, 64); err == nil {
		return id
	}
	return targetID
}

// classifySendError 把 Bot API 错误映射为发送结果
func classifySendError(err error) messaging.SendResult {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		retryAfter := time.Duration(tooMany.RetryAfter) * time.Second
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfter
		}
		return messaging.RateLimited(retryAfter)
	}

	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return messaging.Forbidden(fmt.Errorf("chat migrated to %d: %w", migrate.MigrateToChatID, err))
	}

	if errors.Is(err, bot.ErrorUnauthorized) {
		return messaging.Failed(fmt.Errorf("%w: %v", messaging.ErrAuth, err))
	}

	if errors.Is(err, bot.ErrorForbidden) {
		return messaging.Forbidden(err)
	}

	if errors.Is(err, bot.ErrorBadRequest) {
		desc := strings.ToLower(err.Error())
		for _, hint := range forbiddenHints {
			if strings.Contains(desc, hint) {
				return messaging.Forbidden(err)
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return messaging.Failed(fmt.Errorf("send timed out: %w", err))
	}
	return messaging.Failed(err)
}
