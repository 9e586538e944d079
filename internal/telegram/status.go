package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"ads_forwarder/internal/forwarder/service"
)

const recentAuditLimit = 5

// formatStatus 把账号状态格式化为 HTML 文本
func formatStatus(status *service.AccountStatus, now time.Time) string {
	if status == nil || status.Account == nil {
		return "⚠️ 账号未绑定"
	}
	account := status.Account

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>账号 %d</b>", account.AccountID)
	if account.Username != "" {
		fmt.Fprintf(&sb, " (@%s)", html.EscapeString(account.Username))
	}
	sb.WriteString("\n\n")

	if account.ForwardingEnabled {
		sb.WriteString("🟢 自动转发: 开启\n")
	} else {
		sb.WriteString("⚪️ 自动转发: 关闭\n")
	}
	fmt.Fprintf(&sb, "⏱ 间隔: %d 分钟\n", account.IntervalMinutes)
	if account.LastCycleAt != nil {
		fmt.Fprintf(&sb, "🕒 上次周期: %s 前\n", formatDuration(now.Sub(*account.LastCycleAt)))
	} else {
		sb.WriteString("🕒 上次周期: 从未执行\n")
	}
	if account.ForwardingEnabled {
		if wait := status.NextDueAt.Sub(now); wait > 0 {
			fmt.Fprintf(&sb, "⏭ 下次周期: %s 后\n", formatDuration(wait))
		} else {
			sb.WriteString("⏭ 下次周期: 已到期\n")
		}
	}

	sb.WriteString("\n🔑 <b>会话</b>\n")
	if len(status.Slots) == 0 {
		sb.WriteString("  未绑定会话\n")
	}
	for _, slot := range status.Slots {
		state := "空闲"
		switch {
		case slot.NeedsReauth:
			state = "需要重新登录"
		case slot.Live:
			state = "已连接"
		}
		fmt.Fprintf(&sb, "  #%d %s <code>%s</code>\n", slot.Slot, state, html.EscapeString(slot.Token))
	}

	sb.WriteString("\n📦 <b>消息池</b>\n")
	if status.Pool.Loaded {
		fmt.Fprintf(&sb, "  %d 条消息，当前第 %d 条\n", status.Pool.Size, status.Pool.Cursor+1)
	} else {
		fmt.Fprintf(&sb, "  未加载，游标 %d\n", status.Pool.Cursor)
	}

	fmt.Fprintf(&sb, "\n🎯 <b>目标</b> (%d)\n", len(status.Targets))
	for _, t := range status.Targets {
		sb.WriteString("  " + formatTarget(t, now) + "\n")
	}

	if len(status.Recent) > 0 {
		sb.WriteString("\n📝 <b>最近记录</b>\n")
		for i, entry := range status.Recent {
			if i >= recentAuditLimit {
				break
			}
			fmt.Fprintf(&sb, "  %s %s\n", entry.CreatedAt.Format("01-02 15:04"), html.EscapeString(entry.Action))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func formatTarget(t service.TargetHealth, now time.Time) string {
	name := html.EscapeString(t.TargetID)
	if t.Title != "" {
		name = fmt.Sprintf("%s (%s)", html.EscapeString(t.Title), name)
	}

	switch {
	case t.AutoDisabled:
		return fmt.Sprintf("⛔️ %s 已自动禁用，失败 %d 次: %s", name, t.FailCount, html.EscapeString(t.LastError))
	case !t.Enabled:
		return fmt.Sprintf("⏸ %s 已禁用", name)
	case t.CooldownRemaining > 0:
		return fmt.Sprintf("🧊 %s 冷却中，剩余 %s", name, formatDuration(t.CooldownRemaining))
	case t.LastSendAt != nil:
		suffix := ""
		if t.FailCount > 0 {
			suffix = fmt.Sprintf("，失败 %d 次", t.FailCount)
		}
		return fmt.Sprintf("✅ %s 上次发送 %s 前%s", name, formatDuration(now.Sub(*t.LastSendAt)), suffix)
	default:
		return fmt.Sprintf("🆕 %s 尚未发送", name)
	}
}

// formatDuration 将持续时间格式化为人类可读的字符串
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d天", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d小时", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d分钟", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d秒", seconds))
	}

	return strings.Join(parts, " ")
}
