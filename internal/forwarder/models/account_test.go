package models

import (
	"testing"
	"time"
)

func TestNormalizeInterval(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 30, want: 30},
		{in: 45, want: 45},
		{in: 60, want: 60},
		{in: 0, want: DefaultIntervalMinutes},
		{in: 15, want: DefaultIntervalMinutes},
		{in: -5, want: DefaultIntervalMinutes},
	}
	for _, tt := range tests {
		if got := NormalizeInterval(tt.in); got != tt.want {
			t.Fatalf("NormalizeInterval(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAccountIsDue(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		account Account
		want    bool
	}{
		{name: "never run", account: Account{IntervalMinutes: 30}, want: true},
		{name: "ten minutes ago", account: Account{IntervalMinutes: 30, LastCycleAt: tptr(now.Add(-10 * time.Minute))}, want: false},
		{name: "exactly interval", account: Account{IntervalMinutes: 30, LastCycleAt: tptr(now.Add(-30 * time.Minute))}, want: true},
		{name: "invalid interval falls back to 30", account: Account{IntervalMinutes: 7, LastCycleAt: tptr(now.Add(-20 * time.Minute))}, want: false},
		{name: "sixty minute interval", account: Account{IntervalMinutes: 60, LastCycleAt: tptr(now.Add(-45 * time.Minute))}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.IsDue(now); got != tt.want {
				t.Fatalf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsControlText(t *testing.T) {
	if !IsControlText("  .status") {
		t.Fatalf("expected dot-prefixed text to be a control message")
	}
	if IsControlText("Big sale today.") {
		t.Fatalf("plain text must not be a control message")
	}
	if IsControlText("") {
		t.Fatalf("empty text must not be a control message")
	}
}
