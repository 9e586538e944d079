package telegram

import (
	"context"
	"errors"
	"strings"

	"ads_forwarder/internal/forwarder/repository"
	"ads_forwarder/internal/forwarder/service"
	"ads_forwarder/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// sendMessage 发送消息（统一错误处理，使用 HTML 格式）
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, replyTo ...int) {
	if b.bot == nil {
		return
	}
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: botModels.ParseModeHTML,
	}

	if len(replyTo) > 0 && replyTo[0] > 0 {
		params.ReplyParameters = &botModels.ReplyParameters{
			MessageID: replyTo[0],
		}
	}

	if _, err := b.bot.SendMessage(ctx, params); err != nil {
		logger.L().Errorf("Failed to send message to chat %d: %v", chatID, err)
	}
}

// sendErrorMessage 发送错误消息
func (b *Bot) sendErrorMessage(ctx context.Context, chatID int64, message string, replyTo ...int) {
	b.sendMessage(ctx, chatID, "❌ "+message, replyTo...)
}

// sendSuccessMessage 发送成功消息
func (b *Bot) sendSuccessMessage(ctx context.Context, chatID int64, message string, replyTo ...int) {
	b.sendMessage(ctx, chatID, "✅ "+message, replyTo...)
}

// commandArgs 返回命令后的参数（去掉 /cmd 与 @botname）
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// describeError 把业务错误转换为用户可读的提示
func describeError(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "记录不存在（账号未绑定或目标不存在）"
	case errors.Is(err, repository.ErrTargetCapReached):
		return "目标数量已达上限"
	case errors.Is(err, repository.ErrTargetExists):
		return "目标已存在"
	case errors.Is(err, service.ErrInvalidInterval):
		return "间隔只能是 30、45 或 60 分钟"
	case errors.Is(err, service.ErrInvalidTarget):
		return "目标格式错误，请使用 @username 或数字 ID"
	default:
		return "操作失败，请稍后重试"
	}
}
