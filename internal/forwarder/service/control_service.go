package service

import (
	"context"
	"fmt"
	"time"

	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/forwarder/repository"
	"ads_forwarder/internal/logger"
)

const recentAuditLimit = 10

// PoolControl 消息池的运维操作
type PoolControl interface {
	Reset(ctx context.Context, accountID int64)
	Invalidate(accountID int64)
	Snapshot(accountID int64) (size, cursor int, loaded bool)
}

// SessionControl 会话池的运维操作
type SessionControl interface {
	Evict(accountID int64)
	LiveSlots(accountID int64) []int
}

// ForwardControlService 转发运维服务
type ForwardControlService struct {
	accounts  repository.AccountRepository
	targets   repository.TargetRepository
	creds     repository.CredentialRepository
	audit     repository.AuditRepository
	pool      PoolControl
	sessions  SessionControl
	targetCap int
	now       func() time.Time
}

// NewControlService 创建运维服务
func NewControlService(
	accounts repository.AccountRepository,
	targets repository.TargetRepository,
	creds repository.CredentialRepository,
	audit repository.AuditRepository,
	pool PoolControl,
	sessions SessionControl,
	targetCap int,
) *ForwardControlService {
	return &ForwardControlService{
		accounts:  accounts,
		targets:   targets,
		creds:     creds,
		audit:     audit,
		pool:      pool,
		sessions:  sessions,
		targetCap: targetCap,
		now:       time.Now,
	}
}

var _ ControlService = (*ForwardControlService)(nil)

// Snapshot 返回账号状态视图
func (s *ForwardControlService) Snapshot(ctx context.Context, accountID int64) (*AccountStatus, error) {
	account, err := s.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	creds, err := s.creds.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	targets, err := s.targets.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	recent, err := s.audit.ListRecent(ctx, accountID, recentAuditLimit)
	if err != nil {
		logger.Account(accountID).WithError(err).Warn("Failed to load recent audit entries")
	}

	now := s.now()
	status := &AccountStatus{
		Account:   account,
		NextDueAt: account.NextDueAt(),
		Recent:    recent,
	}

	live := make(map[int]bool)
	if s.sessions != nil {
		for _, slot := range s.sessions.LiveSlots(accountID) {
			live[slot] = true
		}
	}
	for _, cred := range creds {
		status.Slots = append(status.Slots, SlotStatus{
			Slot:            cred.Slot,
			Live:            live[cred.Slot],
			NeedsReauth:     cred.NeedsReauth,
			ReauthFlaggedAt: cred.ReauthFlaggedAt,
			Token:           cred.RedactedToken(),
		})
	}

	for _, t := range targets {
		status.Targets = append(status.Targets, TargetHealth{
			TargetID:          t.TargetID,
			Title:             t.Title,
			Enabled:           t.Enabled,
			AutoDisabled:      t.AutoDisabled(),
			FailCount:         t.FailCount,
			LastError:         t.LastError,
			LastSendAt:        t.LastSendAt,
			CooldownRemaining: t.CooldownRemaining(now),
			DisabledAt:        t.DisabledAt,
		})
	}

	if s.pool != nil {
		size, cursor, loaded := s.pool.Snapshot(accountID)
		status.Pool = PoolStatus{Loaded: loaded, Size: size, Cursor: cursor}
	}

	return status, nil
}

// ResetCursor 消息池游标归零
func (s *ForwardControlService) ResetCursor(ctx context.Context, accountID int64) error {
	if _, err := s.accounts.GetByAccountID(ctx, accountID); err != nil {
		return err
	}
	s.pool.Reset(ctx, accountID)
	s.record(ctx, accountID, models.AuditCursorReset, nil)
	return nil
}

// EnableTarget 人工重新启用目标
func (s *ForwardControlService) EnableTarget(ctx context.Context, accountID int64, targetID string) error {
	id := models.NormalizeTargetID(targetID)
	if id == "" {
		return ErrInvalidTarget
	}
	if err := s.targets.Enable(ctx, accountID, id, s.now()); err != nil {
		return err
	}
	s.record(ctx, accountID, models.AuditTargetEnabled, map[string]interface{}{"target": id})
	return nil
}

// AddTarget 添加目标
func (s *ForwardControlService) AddTarget(ctx context.Context, accountID int64, targetID, title string) (*models.Target, error) {
	id := models.NormalizeTargetID(targetID)
	if id == "" {
		return nil, ErrInvalidTarget
	}
	if _, err := s.accounts.GetByAccountID(ctx, accountID); err != nil {
		return nil, err
	}

	target := &models.Target{
		AccountID: accountID,
		TargetID:  id,
		Title:     title,
		CreatedAt: s.now(),
	}
	if err := s.targets.AddTarget(ctx, target, s.targetCap); err != nil {
		return nil, err
	}

	s.record(ctx, accountID, models.AuditTargetAdded, map[string]interface{}{"target": id})
	return target, nil
}

// RemoveTarget 删除目标
func (s *ForwardControlService) RemoveTarget(ctx context.Context, accountID int64, targetID string) error {
	id := models.NormalizeTargetID(targetID)
	if id == "" {
		return ErrInvalidTarget
	}
	if err := s.targets.RemoveTarget(ctx, accountID, id); err != nil {
		return err
	}
	s.record(ctx, accountID, models.AuditTargetRemoved, map[string]interface{}{"target": id})
	return nil
}

// SetForwarding 开启或关闭转发
func (s *ForwardControlService) SetForwarding(ctx context.Context, accountID int64, enabled bool) error {
	if err := s.accounts.SetForwardingEnabled(ctx, accountID, enabled); err != nil {
		return err
	}

	action := models.AuditForwardingOn
	if !enabled {
		action = models.AuditForwardingOff
		s.pool.Invalidate(accountID)
		s.sessions.Evict(accountID)
	}
	s.record(ctx, accountID, action, nil)
	return nil
}

// SetInterval 设置转发间隔
func (s *ForwardControlService) SetInterval(ctx context.Context, accountID int64, minutes int) error {
	if !models.IsAllowedInterval(minutes) {
		return fmt.Errorf("%d: %w", minutes, ErrInvalidInterval)
	}
	if err := s.accounts.SetInterval(ctx, accountID, minutes); err != nil {
		return err
	}
	s.record(ctx, accountID, models.AuditIntervalSet, map[string]interface{}{"minutes": minutes})
	return nil
}

// BindSession 绑定会话槽位，账号不存在时创建
func (s *ForwardControlService) BindSession(ctx context.Context, binding SessionBinding) error {
	if binding.AccountID == 0 || binding.Slot <= 0 || binding.Token == "" {
		return ErrInvalidSession
	}

	if err := s.accounts.Ensure(ctx, binding.AccountID, binding.Username); err != nil {
		return err
	}
	cred := &models.Credential{
		AccountID:    binding.AccountID,
		Slot:         binding.Slot,
		Token:        binding.Token,
		SourceChatID: binding.SourceChatID,
	}
	if err := s.creds.Upsert(ctx, cred); err != nil {
		return err
	}

	// 已缓存的连接使用旧凭证，下次周期重新连接
	s.sessions.Evict(binding.AccountID)
	s.pool.Invalidate(binding.AccountID)

	s.record(ctx, binding.AccountID, models.AuditSessionBound, map[string]interface{}{"slot": binding.Slot})
	logger.Account(binding.AccountID).WithField("slot", binding.Slot).Info("Session slot bound")
	return nil
}

func (s *ForwardControlService) record(ctx context.Context, accountID int64, action string, payload map[string]interface{}) {
	entry := &models.AuditEntry{
		AccountID: accountID,
		Action:    action,
		Payload:   payload,
		CreatedAt: s.now(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		logger.Account(accountID).WithError(err).Warn("Failed to append audit entry")
	}
}
