package telegram

import (
	"context"

	"ads_forwarder/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// RequireOwner 中间件：仅允许 Owner 执行
func (b *Bot) RequireOwner(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		if !b.isOwner(update.Message.From.ID) {
			logger.L().Warnf("Non-owner user %d attempted to use owner command", update.Message.From.ID)
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "此命令仅限 Bot Owner 使用")
			return
		}

		next(ctx, botInstance, update)
	}
}

// recoverHandler 中间件：捕获 handler panic，避免影响其它更新
func (b *Bot) recoverHandler(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		defer func() {
			if r := recover(); r != nil {
				logger.L().Errorf("Handler panic recovered: %v", r)
				if update.Message != nil {
					b.sendErrorMessage(ctx, update.Message.Chat.ID, "服务器内部错误，请稍后重试")
				}
			}
		}()
		next(ctx, botInstance, update)
	}
}
