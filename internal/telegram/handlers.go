package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"ads_forwarder/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

const helpText = `📮 <b>转发管理</b>

/use &lt;账号ID&gt; - 切换当前操作的账号
/status - 查看账号状态
/forward_on - 开启自动转发
/forward_off - 关闭自动转发
/interval &lt;30|45|60&gt; - 设置转发间隔（分钟）
/add_target &lt;@username|ID&gt; [名称] - 添加目标
/remove_target &lt;@username|ID&gt; - 删除目标
/enable_target &lt;@username|ID&gt; - 重新启用目标
/reset_cursor - 消息轮换从第一条重新开始`

// registerHandlers 注册所有命令处理器
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact,
		b.recoverHandler(b.handleStart))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact,
		b.recoverHandler(b.handleStart))

	owner := func(h bot.HandlerFunc) bot.HandlerFunc { return b.recoverHandler(b.RequireOwner(h)) }

	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/use", bot.MatchTypePrefix, owner(b.handleUse))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, owner(b.handleStatus))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/reset_cursor", bot.MatchTypePrefix, owner(b.handleResetCursor))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/enable_target", bot.MatchTypePrefix, owner(b.handleEnableTarget))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/add_target", bot.MatchTypePrefix, owner(b.handleAddTarget))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/remove_target", bot.MatchTypePrefix, owner(b.handleRemoveTarget))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/forward_on", bot.MatchTypePrefix, owner(b.handleForwardOn))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/forward_off", bot.MatchTypePrefix, owner(b.handleForwardOff))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/interval", bot.MatchTypePrefix, owner(b.handleInterval))

	logger.L().Debug("All admin handlers registered")
}

// handleStart 处理 /start 与 /help 命令
func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, helpText)
}

// handleUse 处理 /use 命令
func (b *Bot) handleUse(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	args := commandArgs(msg.Text)
	if len(args) != 1 {
		b.sendErrorMessage(ctx, msg.Chat.ID, "用法: /use &lt;账号ID&gt;", msg.ID)
		return
	}
	accountID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || accountID <= 0 {
		b.sendErrorMessage(ctx, msg.Chat.ID, "账号ID必须是正整数", msg.ID)
		return
	}

	b.setActiveAccount(msg.From.ID, accountID)
	b.sendSuccessMessage(ctx, msg.Chat.ID, fmt.Sprintf("当前账号: <code>%d</code>", accountID), msg.ID)
}

// handleStatus 处理 /status 命令
func (b *Bot) handleStatus(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	accountID := b.activeAccount(msg.From.ID)

	status, err := b.control.Snapshot(ctx, accountID)
	if err != nil {
		logger.Account(accountID).WithError(err).Warn("Failed to build status")
		b.sendErrorMessage(ctx, msg.Chat.ID, describeError(err), msg.ID)
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, formatStatus(status, time.Now()), msg.ID)
}

// handleResetCursor 处理 /reset_cursor 命令
func (b *Bot) handleResetCursor(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	accountID := b.activeAccount(msg.From.ID)

	if err := b.control.ResetCursor(ctx, accountID); err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, describeError(err), msg.ID)
		return
	}
	b.sendSuccessMessage(ctx, msg.Chat.ID, "消息轮换已重置到第一条", msg.ID)
}

// handleEnableTarget 处理 /enable_target 命令
func (b *Bot) handleEnableTarget(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	args := commandArgs(msg.Text)
	if len(args) != 1 {
		b.sendErrorMessage(ctx, msg.Chat.ID, "用法: /enable_target &lt;@username|ID&gt;", msg.ID)
		return
	}

	accountID := b.activeAccount(msg.From.ID)
	if err := b.control.EnableTarget(ctx, accountID, args[0]); err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, describeError(err), msg.ID)
		return
	}
	b.sendSuccessMessage(ctx, msg.Chat.ID, fmt.Sprintf("目标 %s 已重新启用", html.EscapeString(args[0])), msg.ID)
}

// handleAddTarget 处理 /add_target 命令
func (b *Bot) handleAddTarget(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	args := commandArgs(msg.Text)
	if len(args) == 0 {
		b.sendErrorMessage(ctx, msg.Chat.ID, "用法: /add_target &lt;@username|ID&gt; [名称]", msg.ID)
		return
	}

	accountID := b.activeAccount(msg.From.ID)
	title := strings.Join(args[1:], " ")
	target, err := b.control.AddTarget(ctx, accountID, args[0], title)
	if err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, describeError(err), msg.ID)
		return
	}
	b.sendSuccessMessage(ctx, msg.Chat.ID, fmt.Sprintf("已添加目标 <code>%s</code>", html.EscapeString(target.TargetID)), msg.ID)
}

// handleRemoveTarget 处理 /remove_target 命令
func (b *Bot) handleRemoveTarget(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	args := commandArgs(msg.Text)
	if len(args) != 1 {
		b.sendErrorMessage(ctx, msg.Chat.ID, "用法: /remove_target &lt;@username|ID&gt;", msg.ID)
		return
	}

	accountID := b.activeAccount(msg.From.ID)
	if err := b.control.RemoveTarget(ctx, accountID, args[0]); err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, describeError(err), msg.ID)
		return
	}
	b.sendSuccessMessage(ctx, msg.Chat.ID, fmt.Sprintf("已删除目标 %s", html.EscapeString(args[0])), msg.ID)
}

// handleForwardOn 处理 /forward_on 命令
func (b *Bot) handleForwardOn(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.setForwarding(ctx, update.Message, true)
}

// handleForwardOff 处理 /forward_off 命令
func (b *Bot) handleForwardOff(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.setForwarding(ctx, update.Message, false)
}

func (b *Bot) setForwarding(ctx context.Context, msg *botModels.Message, enabled bool) {
	accountID := b.activeAccount(msg.From.ID)
	if err := b.control.SetForwarding(ctx, accountID, enabled); err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, describeError(err), msg.ID)
		return
	}
	if enabled {
		b.sendSuccessMessage(ctx, msg.Chat.ID, "自动转发已开启", msg.ID)
	} else {
		b.sendSuccessMessage(ctx, msg.Chat.ID, "自动转发已关闭", msg.ID)
	}
}

// handleInterval 处理 /interval 命令
func (b *Bot) handleInterval(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	args := commandArgs(msg.Text)
	if len(args) != 1 {
		b.sendErrorMessage(ctx, msg.Chat.ID, "用法: /interval &lt;30|45|60&gt;", msg.ID)
		return
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, "间隔必须是数字", msg.ID)
		return
	}

	accountID := b.activeAccount(msg.From.ID)
	if err := b.control.SetInterval(ctx, accountID, minutes); err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, describeError(err), msg.ID)
		return
	}
	b.sendSuccessMessage(ctx, msg.Chat.ID, fmt.Sprintf("转发间隔已设置为 %d 分钟", minutes), msg.ID)
}
