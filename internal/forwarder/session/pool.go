// Package session 维护每个账号的已连接会话。
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"ads_forwarder/internal/forwarder/messaging"
	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/logger"

	"golang.org/x/sync/singleflight"
)

// ErrNoUsableSession 账号没有可用的会话
var ErrNoUsableSession = errors.New("no usable session")

const defaultReconnectBackoff = 60 * time.Second

// CredentialStore 会话凭证存储
type CredentialStore interface {
	ListByAccount(ctx context.Context, accountID int64) ([]*models.Credential, error)
	MarkNeedsReauth(ctx context.Context, accountID int64, slot int, at time.Time) error
}

// AuditSink 审计记录写入
type AuditSink interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// Pool 账号会话池
type Pool struct {
	connector messaging.Connector
	creds     CredentialStore
	audit     AuditSink
	backoff   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	conns    map[int64][]messaging.Connection
	failedAt map[int64]time.Time
	connects singleflight.Group
}

// NewPool 创建会话池，backoff 为零连接账号的重连间隔
func NewPool(connector messaging.Connector, creds CredentialStore, audit AuditSink, backoff time.Duration) *Pool {
	if backoff <= 0 {
		backoff = defaultReconnectBackoff
	}
	return &Pool{
		connector: connector,
		creds:     creds,
		audit:     audit,
		backoff:   backoff,
		now:       time.Now,
		conns:     make(map[int64][]messaging.Connection),
		failedAt:  make(map[int64]time.Time),
	}
}

// EnsureConnected 返回账号的存活连接；冷缓存时连接每个未失效的槽位
func (p *Pool) EnsureConnected(ctx context.Context, accountID int64) ([]messaging.Connection, error) {
	if live, ok := p.cached(accountID); ok {
		return live, nil
	}

	p.mu.Lock()
	failed, recentlyFailed := p.failedAt[accountID]
	p.mu.Unlock()
	if recentlyFailed && p.now().Sub(failed) < p.backoff {
		return nil, nil
	}

	v, err, _ := p.connects.Do(strconv.FormatInt(accountID, 10), func() (interface{}, error) {
		if live, ok := p.cached(accountID); ok {
			return live, nil
		}
		return p.connect(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	live, _ := v.([]messaging.Connection)
	return live, nil
}

func (p *Pool) cached(accountID int64) ([]messaging.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	live, ok := p.conns[accountID]
	if !ok || len(live) == 0 {
		return nil, false
	}
	out := make([]messaging.Connection, len(live))
	copy(out, live)
	return out, true
}

func (p *Pool) connect(ctx context.Context, accountID int64) ([]messaging.Connection, error) {
	log := logger.Account(accountID)

	creds, err := p.creds.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	var live []messaging.Connection
	for _, cred := range creds {
		if cred.NeedsReauth {
			continue
		}

		conn, err := p.connector.Connect(ctx, cred)
		if err == nil {
			live = append(live, conn)
			continue
		}

		if errors.Is(err, messaging.ErrAuth) {
			p.flagReauth(ctx, cred.AccountID, cred.Slot)
			continue
		}
		log.WithField("slot", cred.Slot).WithError(err).Warn("Session connect failed, slot skipped")
	}

	sort.SliceStable(live, func(i, j int) bool { return live[i].Slot() < live[j].Slot() })

	p.mu.Lock()
	if len(live) > 0 {
		p.conns[accountID] = live
		delete(p.failedAt, accountID)
	} else {
		p.failedAt[accountID] = p.now()
	}
	p.mu.Unlock()

	if len(live) > 0 {
		log.Infof("Connected %d/%d session slots", len(live), len(creds))
	}
	return live, nil
}

func (p *Pool) flagReauth(ctx context.Context, accountID int64, slot int) {
	at := p.now()
	log := logger.Account(accountID).WithField("slot", slot)
	log.Warn("Session credential is no longer authorized, flagged for re-login")

	if err := p.creds.MarkNeedsReauth(ctx, accountID, slot, at); err != nil {
		log.WithError(err).Error("Failed to flag credential for re-login")
	}
	if p.audit == nil {
		return
	}
	entry := &models.AuditEntry{
		AccountID: accountID,
		Action:    models.AuditNeedsReauth,
		Payload:   map[string]interface{}{"slot": slot},
		CreatedAt: at,
	}
	if err := p.audit.Append(ctx, entry); err != nil {
		log.WithError(err).Warn("Failed to append audit entry")
	}
}

// Revoke 已连接的槽位在使用中失去授权：标记重新登录并清除账号缓存
// 下次周期只会重连其余槽位
func (p *Pool) Revoke(ctx context.Context, accountID int64, slot int) {
	p.flagReauth(ctx, accountID, slot)
	p.Evict(accountID)
}

// FirstUsable 返回槽位最小的存活连接
func (p *Pool) FirstUsable(accountID int64) (messaging.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	live := p.conns[accountID]
	if len(live) == 0 {
		return nil, ErrNoUsableSession
	}
	return live[0], nil
}

// LiveSlots 返回存活连接的槽位编号
func (p *Pool) LiveSlots(accountID int64) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	slots := make([]int, 0, len(p.conns[accountID]))
	for _, conn := range p.conns[accountID] {
		slots = append(slots, conn.Slot())
	}
	return slots
}

// Evict 关闭并移除账号的全部连接
func (p *Pool) Evict(accountID int64) {
	p.mu.Lock()
	live := p.conns[accountID]
	delete(p.conns, accountID)
	delete(p.failedAt, accountID)
	p.mu.Unlock()

	closeAll(accountID, live)
}

// Retain 只保留 accountIDs 中账号的连接，返回被清除的账号数量
func (p *Pool) Retain(accountIDs []int64) int {
	keep := make(map[int64]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		keep[id] = struct{}{}
	}

	evicted := make(map[int64][]messaging.Connection)
	p.mu.Lock()
	for id, live := range p.conns {
		if _, ok := keep[id]; !ok {
			evicted[id] = live
			delete(p.conns, id)
		}
	}
	for id := range p.failedAt {
		if _, ok := keep[id]; !ok {
			delete(p.failedAt, id)
		}
	}
	p.mu.Unlock()

	for id, live := range evicted {
		closeAll(id, live)
	}
	return len(evicted)
}

// Close 关闭全部连接
func (p *Pool) Close() {
	p.mu.Lock()
	all := p.conns
	p.conns = make(map[int64][]messaging.Connection)
	p.failedAt = make(map[int64]time.Time)
	p.mu.Unlock()

	for id, live := range all {
		closeAll(id, live)
	}
}

func closeAll(accountID int64, live []messaging.Connection) {
	for _, conn := range live {
		if err := conn.Close(); err != nil {
			logger.Account(accountID).WithField("slot", conn.Slot()).WithError(err).Warn("Failed to close session")
		}
	}
}
