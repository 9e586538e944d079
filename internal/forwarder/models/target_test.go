package models

import (
	"testing"
	"time"
)

func tptr(t time.Time) *time.Time { return &t }

func TestTargetIsDue(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	interval := 30 * time.Minute

	tests := []struct {
		name   string
		target Target
		want   bool
	}{
		{name: "never sent", target: Target{Enabled: true}, want: true},
		{name: "disabled", target: Target{Enabled: false}, want: false},
		{name: "sent exactly one interval ago", target: Target{Enabled: true, LastSendAt: tptr(now.Add(-interval))}, want: true},
		{name: "sent recently", target: Target{Enabled: true, LastSendAt: tptr(now.Add(-10 * time.Minute))}, want: false},
		{name: "cooldown ahead", target: Target{Enabled: true, CooldownUntil: tptr(now.Add(time.Second))}, want: false},
		{name: "cooldown ends now", target: Target{Enabled: true, CooldownUntil: tptr(now)}, want: true},
		{name: "cooldown passed", target: Target{Enabled: true, CooldownUntil: tptr(now.Add(-time.Minute))}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.IsDue(now, interval); got != tt.want {
				t.Fatalf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterDueExcludesCoolingTargets(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	targets := []*Target{
		{TargetID: "a", Enabled: true, CooldownUntil: tptr(now.Add(130 * time.Second))},
		{TargetID: "b", Enabled: true},
		nil,
	}

	due := FilterDue(targets, now, 30*time.Minute)
	if len(due) != 1 || due[0].TargetID != "b" {
		t.Fatalf("unexpected due targets: %+v", due)
	}

	due = FilterDue(targets, now.Add(131*time.Second), 30*time.Minute)
	if len(due) != 2 {
		t.Fatalf("expected cooled down target to return, got %d", len(due))
	}
}

func TestSortByStarvation(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	targets := []*Target{
		{TargetID: "recent", LastSendAt: tptr(base.Add(3 * time.Hour)), CreatedAt: base},
		{TargetID: "never-late", CreatedAt: base.Add(2 * time.Minute)},
		{TargetID: "oldest", LastSendAt: tptr(base.Add(time.Hour)), CreatedAt: base},
		{TargetID: "never-early", CreatedAt: base.Add(time.Minute)},
		{TargetID: "middle", LastSendAt: tptr(base.Add(2 * time.Hour)), CreatedAt: base},
	}

	SortByStarvation(targets)

	want := []string{"never-early", "never-late", "oldest", "middle", "recent"}
	for i, id := range want {
		if targets[i].TargetID != id {
			t.Fatalf("position %d: got %s, want %s", i, targets[i].TargetID, id)
		}
	}
}

func TestApplyFailureDisablesAtThreshold(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	target := &Target{Enabled: true}

	for i := 1; i < FailureThreshold; i++ {
		res := target.ApplyFailure(at, "forbidden")
		if res.Disabled || res.FailCount != i {
			t.Fatalf("failure %d: unexpected result %+v", i, res)
		}
	}

	res := target.ApplyFailure(at, "forbidden")
	if !res.Disabled || res.FailCount != FailureThreshold {
		t.Fatalf("expected disable at threshold, got %+v", res)
	}
	if target.Enabled || target.DisabledAt == nil || !target.AutoDisabled() {
		t.Fatalf("expected target to be auto disabled: %+v", target)
	}
	if target.IsDue(at.Add(24*time.Hour), 30*time.Minute) {
		t.Fatalf("disabled target must never be due")
	}
}

func TestNormalizeTargetID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "-1001234567890", want: "-1001234567890"},
		{in: "  @channel ", want: "@channel"},
		{in: "channel", want: "@channel"},
		{in: "https://t.me/somegroup", want: "@somegroup"},
		{in: "  ", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizeTargetID(tt.in); got != tt.want {
			t.Fatalf("NormalizeTargetID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
