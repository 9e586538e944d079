package telegram

import (
	"strings"
	"testing"
	"time"

	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/forwarder/service"
)

func TestFormatStatus_Unbound(t *testing.T) {
	if got := formatStatus(nil, time.Now()); got != "⚠️ 账号未绑定" {
		t.Fatalf("unexpected text for nil status: %q", got)
	}
}

func TestFormatStatus_Full(t *testing.T) {
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	lastCycle := now.Add(-10 * time.Minute)
	lastSend := now.Add(-90 * time.Second)

	status := &service.AccountStatus{
		Account: &models.Account{
			AccountID:         42,
			Username:          "ads<bot>",
			ForwardingEnabled: true,
			IntervalMinutes:   30,
			LastCycleAt:       &lastCycle,
		},
		NextDueAt: lastCycle.Add(30 * time.Minute),
		Slots: []service.SlotStatus{
			{Slot: 0, Live: true, Token: "abcd…wxyz"},
			{Slot: 1, NeedsReauth: true, Token: "efgh…stuv"},
		},
		Pool: service.PoolStatus{Loaded: true, Size: 4, Cursor: 2},
		Targets: []service.TargetHealth{
			{TargetID: "@alpha", Enabled: true, LastSendAt: &lastSend, FailCount: 1},
			{TargetID: "-100123", Title: "Beta", Enabled: true, CooldownRemaining: 45 * time.Second},
			{TargetID: "@gamma", AutoDisabled: true, FailCount: 3, LastError: "forbidden"},
			{TargetID: "@delta", Enabled: true},
		},
		Recent: []*models.AuditEntry{
			{Action: models.AuditSendOK, CreatedAt: now.Add(-time.Minute)},
		},
	}

	got := formatStatus(status, now)

	wants := []string{
		"📊 <b>账号 42</b> (@ads&lt;bot&gt;)",
		"🟢 自动转发: 开启",
		"⏱ 间隔: 30 分钟",
		"🕒 上次周期: 10分钟 前",
		"⏭ 下次周期: 20分钟 后",
		"#0 已连接 <code>abcd…wxyz</code>",
		"#1 需要重新登录 <code>efgh…stuv</code>",
		"4 条消息，当前第 3 条",
		"🎯 <b>目标</b> (4)",
		"✅ @alpha 上次发送 1分钟 30秒 前，失败 1 次",
		"🧊 Beta (-100123) 冷却中，剩余 45秒",
		"⛔️ @gamma 已自动禁用，失败 3 次: forbidden",
		"🆕 @delta 尚未发送",
		"11-03 11:59 send_ok",
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("status text missing %q\n---\n%s", want, got)
		}
	}
}

func TestFormatStatus_DisabledAccount(t *testing.T) {
	now := time.Now()
	status := &service.AccountStatus{
		Account: &models.Account{AccountID: 7, IntervalMinutes: 45},
		Pool:    service.PoolStatus{Cursor: 1},
	}

	got := formatStatus(status, now)

	for _, want := range []string{"⚪️ 自动转发: 关闭", "从未执行", "未绑定会话", "未加载，游标 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("status text missing %q\n---\n%s", want, got)
		}
	}
	if strings.Contains(got, "下次周期") {
		t.Errorf("disabled account should not show next cycle:\n%s", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		-time.Second:                 "0秒",
		0:                            "0秒",
		45 * time.Second:             "45秒",
		90 * time.Minute:             "1小时 30分钟",
		26*time.Hour + 5*time.Second: "1天 2小时 5秒",
		1500 * time.Millisecond:      "2秒",
	}
	for in, want := range cases {
		if got := formatDuration(in); got != want {
			t.Errorf("formatDuration(%s) = %q, want %q", in, got, want)
		}
	}
}
