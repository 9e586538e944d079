package telegram

import (
	"context"
	"strings"
	"time"

	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// handleUpdate 默认处理器：记录频道帖子，作为账号的转发消息来源
func (b *Bot) handleUpdate(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.ChannelPost == nil || b.sources == nil {
		return
	}

	msg := sourceMessageFromPost(update.ChannelPost)
	if err := b.sources.Record(ctx, msg); err != nil {
		logger.L().Warnf("Failed to record channel post: chat_id=%d message_id=%d err=%v", msg.ChatID, msg.MessageID, err)
		return
	}
	logger.L().Debugf("Recorded channel post: chat_id=%d message_id=%d control=%v", msg.ChatID, msg.MessageID, msg.IsControl)
}

// sourceMessageFromPost 把频道帖子转换为源消息记录
func sourceMessageFromPost(post *botModels.Message) *models.SourceMessage {
	text := post.Text
	if text == "" {
		text = post.Caption
	}

	hasContent := strings.TrimSpace(text) != "" ||
		len(post.Photo) > 0 ||
		post.Video != nil ||
		post.Document != nil ||
		post.Animation != nil ||
		post.Audio != nil ||
		post.Voice != nil ||
		post.Sticker != nil

	postedAt := time.Now()
	if post.Date > 0 {
		postedAt = time.Unix(int64(post.Date), 0)
	}

	return &models.SourceMessage{
		ChatID:     post.Chat.ID,
		MessageID:  post.ID,
		HasContent: hasContent,
		IsControl:  models.IsControlText(text),
		PostedAt:   postedAt,
	}
}
