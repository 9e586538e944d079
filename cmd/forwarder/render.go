package main

import (
	"fmt"
	"strings"
	"time"

	"ads_forwarder/internal/forwarder/service"
)

// renderStatus 以纯文本渲染账号状态
func renderStatus(status *service.AccountStatus, now time.Time) string {
	if status == nil || status.Account == nil {
		return "Account not found\n"
	}
	account := status.Account

	var sb strings.Builder
	fmt.Fprintf(&sb, "Account %d", account.AccountID)
	if account.Username != "" {
		fmt.Fprintf(&sb, " (@%s)", account.Username)
	}
	sb.WriteString("\n")

	state := "off"
	if account.ForwardingEnabled {
		state = "on"
	}
	fmt.Fprintf(&sb, "  Forwarding: %s, every %d min\n", state, account.IntervalMinutes)
	if account.LastCycleAt != nil {
		fmt.Fprintf(&sb, "  Last cycle: %s (%s ago)\n", account.LastCycleAt.Format(time.RFC3339), ago(now, *account.LastCycleAt))
	} else {
		sb.WriteString("  Last cycle: never\n")
	}
	if account.ForwardingEnabled {
		fmt.Fprintf(&sb, "  Next due:   %s\n", status.NextDueAt.Format(time.RFC3339))
	}

	sb.WriteString("\nSessions\n")
	if len(status.Slots) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, slot := range status.Slots {
		state := "idle"
		switch {
		case slot.NeedsReauth:
			state = "needs re-login"
		case slot.Live:
			state = "live"
		}
		fmt.Fprintf(&sb, "  #%d %-14s %s\n", slot.Slot, state, slot.Token)
	}

	sb.WriteString("\nMessage pool\n")
	if status.Pool.Loaded {
		fmt.Fprintf(&sb, "  %d messages, cursor %d\n", status.Pool.Size, status.Pool.Cursor)
	} else {
		fmt.Fprintf(&sb, "  not loaded, cursor %d\n", status.Pool.Cursor)
	}

	fmt.Fprintf(&sb, "\nTargets (%d)\n", len(status.Targets))
	for _, t := range status.Targets {
		fmt.Fprintf(&sb, "  %-24s %s\n", t.TargetID, targetState(t, now))
	}

	if len(status.Recent) > 0 {
		sb.WriteString("\nRecent activity\n")
		for _, entry := range status.Recent {
			fmt.Fprintf(&sb, "  %s  %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Action)
		}
	}
	return sb.String()
}

func targetState(t service.TargetHealth, now time.Time) string {
	switch {
	case t.AutoDisabled:
		return fmt.Sprintf("auto-disabled after %d failures: %s", t.FailCount, t.LastError)
	case !t.Enabled:
		return "disabled"
	case t.CooldownRemaining > 0:
		return fmt.Sprintf("cooldown %s", t.CooldownRemaining.Round(time.Second))
	case t.LastSendAt != nil:
		s := fmt.Sprintf("sent %s ago", ago(now, *t.LastSendAt))
		if t.FailCount > 0 {
			s += fmt.Sprintf(", %d failures", t.FailCount)
		}
		return s
	default:
		return "never sent"
	}
}

func ago(now, at time.Time) time.Duration {
	d := now.Sub(at).Round(time.Second)
	if d < 0 {
		return 0
	}
	return d
}
