package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ads_forwarder/internal/forwarder/messaging"
	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/forwarder/repository"
	"ads_forwarder/internal/forwarder/session"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memTargets 内存版目标健康状态存储，语义与 Mongo 实现一致
type memTargets struct {
	mu       sync.Mutex
	targets  map[string]*models.Target
	mutated  int
	missing  map[string]bool
	failNext error
}

func newMemTargets(targets ...*models.Target) *memTargets {
	s := &memTargets{targets: make(map[string]*models.Target), missing: make(map[string]bool)}
	for _, t := range targets {
		s.targets[t.TargetID] = t
	}
	return s
}

func (s *memTargets) get(id string) models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.targets[id]
}

func (s *memTargets) DueTargets(ctx context.Context, accountID int64, now time.Time, interval time.Duration) ([]*models.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}
	all := make([]*models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		cp := *t
		all = append(all, &cp)
	}
	return models.FilterDue(all, now, interval), nil
}

func (s *memTargets) lookup(id string) (*models.Target, error) {
	if s.missing[id] {
		return nil, fmt.Errorf("target %s: %w", id, repository.ErrNotFound)
	}
	t, ok := s.targets[id]
	if !ok {
		return nil, fmt.Errorf("target %s: %w", id, repository.ErrNotFound)
	}
	s.mutated++
	return t, nil
}

func (s *memTargets) MarkSent(ctx context.Context, accountID int64, targetID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(targetID)
	if err != nil {
		return err
	}
	t.LastSendAt = &at
	return nil
}

func (s *memTargets) SetCooldown(ctx context.Context, accountID int64, targetID string, at time.Time, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return repository.ErrInvalidCooldown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(targetID)
	if err != nil {
		return err
	}
	until := at.Add(d)
	t.CooldownUntil = &until
	return nil
}

func (s *memTargets) IncrementFailure(ctx context.Context, accountID int64, targetID string, at time.Time, reason string) (models.FailureResult, error) {
	if err := ctx.Err(); err != nil {
		return models.FailureResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(targetID)
	if err != nil {
		return models.FailureResult{}, err
	}
	return t.ApplyFailure(at, reason), nil
}

func (s *memTargets) ResetFailure(ctx context.Context, accountID int64, targetID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(targetID)
	if err != nil {
		return err
	}
	t.FailCount = 0
	t.LastError = ""
	return nil
}

func (s *memTargets) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutated
}

type memAccounts struct {
	mu      sync.Mutex
	account *models.Account
	touches int
}

func (a *memAccounts) UpdateLastCycle(ctx context.Context, accountID int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touches++
	a.account.LastCycleAt = &at
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (a *memAudit) Append(ctx context.Context, entry *models.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type sentMessage struct {
	TargetID  string
	MessageID int
}

// scriptedConn 按目标返回预设结果的连接
type scriptedConn struct {
	mu       sync.Mutex
	slot     int
	messages []messaging.MessageDescriptor
	results  map[string][]messaging.SendResult
	sent     []sentMessage
	panicOn  string
	onSend   func()
}

func newScriptedConn(ids ...int) *scriptedConn {
	c := &scriptedConn{slot: 1, results: make(map[string][]messaging.SendResult)}
	for _, id := range ids {
		c.messages = append(c.messages, messaging.MessageDescriptor{ID: id, HasContent: true})
	}
	return c
}

func (c *scriptedConn) script(targetID string, results ...messaging.SendResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[targetID] = append(c.results[targetID], results...)
}

func (c *scriptedConn) Slot() int { return c.slot }

func (c *scriptedConn) ListOwnMessages(ctx context.Context) ([]messaging.MessageDescriptor, error) {
	return c.messages, nil
}

func (c *scriptedConn) Send(ctx context.Context, targetID string, messageID int) messaging.SendResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if targetID == c.panicOn {
		panic("connection exploded")
	}
	c.sent = append(c.sent, sentMessage{TargetID: targetID, MessageID: messageID})
	if c.onSend != nil {
		c.onSend()
	}
	queue := c.results[targetID]
	if len(queue) == 0 {
		return messaging.Sent()
	}
	res := queue[0]
	c.results[targetID] = queue[1:]
	return res
}

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) sends() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// staticSessions 固定返回一个连接（或没有连接）
type staticSessions struct {
	mu      sync.Mutex
	conn    messaging.Connection
	revoked []int
}

func (s *staticSessions) Revoke(ctx context.Context, accountID int64, slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked = append(s.revoked, slot)
}

func (s *staticSessions) revokedSlots() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.revoked...)
}

func (s *staticSessions) EnsureConnected(ctx context.Context, accountID int64) ([]messaging.Connection, error) {
	if s.conn == nil {
		return nil, nil
	}
	return []messaging.Connection{s.conn}, nil
}

func (s *staticSessions) FirstUsable(accountID int64) (messaging.Connection, error) {
	if s.conn == nil {
		return nil, session.ErrNoUsableSession
	}
	return s.conn, nil
}
