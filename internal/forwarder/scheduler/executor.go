// Package scheduler 实现转发周期执行与调度循环。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"ads_forwarder/internal/config"
	"ads_forwarder/internal/forwarder/messaging"
	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/forwarder/msgpool"
	"ads_forwarder/internal/forwarder/repository"
	"ads_forwarder/internal/logger"
	"ads_forwarder/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CycleResult 周期执行结果
type CycleResult string

const (
	ResultNotDue     CycleResult = "not_due"
	ResultNoSession  CycleResult = "no_session"
	ResultEmptyPool  CycleResult = "empty_pool"
	ResultPoolError  CycleResult = "pool_fail"
	ResultStoreError CycleResult = "store_fail"
	ResultNoTargets  CycleResult = "no_targets"
	ResultRevoked    CycleResult = "session_revoked"
	ResultSent       CycleResult = "sent"
	ResultNoneSent   CycleResult = "none_sent"
	ResultCrashed    CycleResult = "crashed"
)

// SendRecord 一次发送的记录
type SendRecord struct {
	TargetID     string
	MessageID    int
	Outcome      messaging.Outcome
	RetryAfter   time.Duration
	FailCount    int
	Disabled     bool
	Unauthorized bool // 会话凭证在发送时失效，目标状态未被修改
}

// CycleReport 一个周期的执行报告
type CycleReport struct {
	CycleID   string
	AccountID int64
	Result    CycleResult
	StartedAt time.Time
	Sends     []SendRecord
}

// SentCount 返回成功发送的次数
func (r CycleReport) SentCount() int {
	n := 0
	for _, s := range r.Sends {
		if s.Outcome == messaging.OutcomeSent {
			n++
		}
	}
	return n
}

// SessionProvider 账号会话来源
type SessionProvider interface {
	EnsureConnected(ctx context.Context, accountID int64) ([]messaging.Connection, error)
	FirstUsable(accountID int64) (messaging.Connection, error)
	// Revoke 标记槽位需要重新登录并清除账号的连接缓存
	Revoke(ctx context.Context, accountID int64, slot int)
}

// MessagePool 账号消息池
type MessagePool interface {
	EnsureLoaded(ctx context.Context, accountID int64, lister msgpool.Lister) error
	Current(accountID int64) (int, error)
	Advance(ctx context.Context, accountID int64) (int, error)
	Invalidate(accountID int64)
}

// HealthStore 目标健康状态存储
type HealthStore interface {
	DueTargets(ctx context.Context, accountID int64, now time.Time, interval time.Duration) ([]*models.Target, error)
	MarkSent(ctx context.Context, accountID int64, targetID string, at time.Time) error
	SetCooldown(ctx context.Context, accountID int64, targetID string, at time.Time, d time.Duration) error
	IncrementFailure(ctx context.Context, accountID int64, targetID string, at time.Time, reason string) (models.FailureResult, error)
	ResetFailure(ctx context.Context, accountID int64, targetID string, at time.Time) error
}

// CycleStore 记录账号周期时间
type CycleStore interface {
	UpdateLastCycle(ctx context.Context, accountID int64, at time.Time) error
}

// AuditSink 审计记录写入
type AuditSink interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// Executor 执行单个账号的转发周期
type Executor struct {
	sessions SessionProvider
	pool     MessagePool
	targets  HealthStore
	accounts CycleStore
	audit    AuditSink
	cfg      config.ForwardConfig
	limiter  *rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor 创建周期执行器
func NewExecutor(
	sessions SessionProvider,
	pool MessagePool,
	targets HealthStore,
	accounts CycleStore,
	audit AuditSink,
	cfg config.ForwardConfig,
) *Executor {
	var limiter *rate.Limiter
	if cfg.SendRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), 1)
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = config.DefaultForwardConfig().SendTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = config.SendModeSweep
	}

	return &Executor{
		sessions: sessions,
		pool:     pool,
		targets:  targets,
		accounts: accounts,
		audit:    audit,
		cfg:      cfg,
		limiter:  limiter,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunCycle 执行一个转发周期，所有错误都在内部处理
func (e *Executor) RunCycle(ctx context.Context, account *models.Account) (report CycleReport) {
	start := e.now()
	report = CycleReport{
		CycleID:   uuid.NewString(),
		AccountID: account.AccountID,
		StartedAt: start,
	}
	log := logger.Account(account.AccountID).WithField("cycle_id", report.CycleID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Cycle panic recovered: %v\n%s", r, debug.Stack())
			e.record(ctx, log, account.AccountID, models.AuditCycleCrash, map[string]interface{}{
				"error": fmt.Sprint(r),
			})
			e.touch(ctx, log, account.AccountID, start)
			report.Result = ResultCrashed
		}
		if report.Result != ResultNotDue {
			metrics.IncCycle(string(report.Result))
		}
	}()

	if !account.IsDue(start) {
		report.Result = ResultNotDue
		return report
	}

	report.Result = e.runDue(ctx, log, account, start, &report)
	return report
}

func (e *Executor) runDue(ctx context.Context, log *logrus.Entry, account *models.Account, start time.Time, report *CycleReport) CycleResult {
	accountID := account.AccountID

	if _, err := e.sessions.EnsureConnected(ctx, accountID); err != nil {
		log.WithError(err).Warn("Failed to connect sessions")
	}
	conn, err := e.sessions.FirstUsable(accountID)
	if err != nil {
		log.Warn("No usable session, cycle skipped")
		e.record(ctx, log, accountID, models.AuditNoSession, map[string]interface{}{"error": err.Error()})
		return ResultNoSession
	}
	log = log.WithField("slot", conn.Slot())

	if err := e.pool.EnsureLoaded(ctx, accountID, conn); err != nil {
		log.WithError(err).Warn("Failed to load message pool")
		e.record(ctx, log, accountID, models.AuditPoolFail, map[string]interface{}{"error": err.Error()})
		e.touch(ctx, log, accountID, start)
		return ResultPoolError
	}

	messageID, err := e.pool.Current(accountID)
	if err != nil {
		if errors.Is(err, msgpool.ErrEmptyPool) {
			log.Info("Message pool is empty, nothing to forward")
			e.record(ctx, log, accountID, models.AuditEmptyPool, nil)
			e.pool.Invalidate(accountID)
			e.touch(ctx, log, accountID, start)
			return ResultEmptyPool
		}
		log.WithError(err).Warn("Failed to read message pool")
		e.record(ctx, log, accountID, models.AuditPoolFail, map[string]interface{}{"error": err.Error()})
		e.touch(ctx, log, accountID, start)
		return ResultPoolError
	}

	due, err := e.targets.DueTargets(ctx, accountID, start, account.Interval())
	if err != nil {
		log.WithError(err).Error("Failed to query due targets")
		return ResultStoreError
	}
	if len(due) == 0 {
		log.Debug("No due targets")
		return ResultNoTargets
	}

	revoked := false
	selected := due
	if e.cfg.Mode == config.SendModeSingle {
		selected = due[:1]
	}

	for i, target := range selected {
		if i > 0 && e.cfg.TargetDelay > 0 {
			if err := e.sleep(ctx, e.cfg.TargetDelay); err != nil {
				log.WithError(err).Info("Sweep interrupted")
				break
			}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				log.WithError(err).Info("Sweep interrupted")
				break
			}
		}
		rec := e.sendOne(ctx, log, conn, accountID, target, messageID)
		report.Sends = append(report.Sends, rec)
		if rec.Unauthorized {
			revoked = true
			break
		}
	}

	result := ResultNoneSent
	if report.SentCount() > 0 {
		result = ResultSent
		if _, err := e.pool.Advance(context.WithoutCancel(ctx), accountID); err != nil {
			log.WithError(err).Warn("Failed to advance message pool")
		}
	}

	if revoked {
		log.Warnf("Session slot %d lost authorization, remaining targets skipped", conn.Slot())
		e.sessions.Revoke(context.WithoutCancel(ctx), accountID, conn.Slot())
		if report.SentCount() == 0 {
			// 未发送任何消息时不更新周期时间，下次调度用其余槽位重试
			return ResultRevoked
		}
	}

	e.touch(ctx, log, accountID, start)
	log.Infof("Cycle finished: %d/%d sent", report.SentCount(), len(report.Sends))
	return result
}

func (e *Executor) sendOne(ctx context.Context, log *logrus.Entry, conn messaging.Connection, accountID int64, target *models.Target, messageID int) SendRecord {
	log = log.WithField("target_id", target.TargetID)

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	res := conn.Send(sendCtx, target.TargetID, messageID)
	cancel()

	// 关闭时 ctx 可能已取消，状态写入仍需完成
	store := context.WithoutCancel(ctx)
	at := e.now()
	rec := SendRecord{TargetID: target.TargetID, MessageID: messageID, Outcome: res.Outcome}

	if res.Unauthorized() {
		metrics.IncSend("unauthorized")
		rec.Unauthorized = true
		e.record(store, log, accountID, models.AuditSendUnauthorized, map[string]interface{}{
			"target": target.TargetID,
			"slot":   conn.Slot(),
			"error":  res.Reason(),
		})
		return rec
	}
	metrics.IncSend(res.Outcome.String())
	ctx = store

	switch res.Outcome {
	case messaging.OutcomeSent:
		if err := e.targets.MarkSent(ctx, accountID, target.TargetID, at); err != nil {
			logStoreError(log, err, "mark sent")
		}
		if err := e.targets.ResetFailure(ctx, accountID, target.TargetID, at); err != nil {
			logStoreError(log, err, "reset failure")
		}
		log.WithField("message_id", messageID).Info("Message forwarded")
		e.record(ctx, log, accountID, models.AuditSendOK, map[string]interface{}{
			"target":     target.TargetID,
			"message_id": messageID,
		})

	case messaging.OutcomeRateLimited:
		cooldown := res.RetryAfter + e.cfg.CooldownMargin
		if cooldown <= 0 {
			cooldown = time.Second
		}
		rec.RetryAfter = res.RetryAfter
		if err := e.targets.SetCooldown(ctx, accountID, target.TargetID, at, cooldown); err != nil {
			logStoreError(log, err, "set cooldown")
		}
		log.Warnf("Rate limited, target cooling down for %s", cooldown)
		e.record(ctx, log, accountID, models.AuditFloodWait, map[string]interface{}{
			"target":  target.TargetID,
			"seconds": int(res.RetryAfter / time.Second),
		})

	default:
		action := models.AuditSendFail
		if res.Outcome == messaging.OutcomeForbidden {
			action = models.AuditSendForbidden
		}
		reason := res.Reason()

		failure, err := e.targets.IncrementFailure(ctx, accountID, target.TargetID, at, reason)
		if err != nil {
			logStoreError(log, err, "increment failure")
		}
		rec.FailCount = failure.FailCount
		rec.Disabled = failure.Disabled

		log.WithField("fails", failure.FailCount).Warnf("Send failed: %s", reason)
		e.record(ctx, log, accountID, action, map[string]interface{}{
			"target":   target.TargetID,
			"error":    reason,
			"fails":    failure.FailCount,
			"disabled": failure.Disabled,
		})

		if failure.Disabled {
			metrics.IncTargetDisabled()
			log.Warnf("Target disabled after %d consecutive failures", failure.FailCount)
			e.record(ctx, log, accountID, models.AuditTargetDisabled, map[string]interface{}{
				"target": target.TargetID,
				"fails":  failure.FailCount,
				"reason": reason,
			})
		}
	}

	return rec
}

func logStoreError(log *logrus.Entry, err error, op string) {
	if errors.Is(err, repository.ErrNotFound) {
		log.Infof("Target removed during cycle, %s skipped", op)
		return
	}
	log.WithError(err).Errorf("Failed to %s", op)
}

func (e *Executor) touch(ctx context.Context, log *logrus.Entry, accountID int64, at time.Time) {
	if err := e.accounts.UpdateLastCycle(context.WithoutCancel(ctx), accountID, at); err != nil {
		log.WithError(err).Error("Failed to update last cycle time")
	}
}

func (e *Executor) record(ctx context.Context, log *logrus.Entry, accountID int64, action string, payload map[string]interface{}) {
	if e.audit == nil {
		return
	}
	entry := &models.AuditEntry{
		AccountID: accountID,
		Action:    action,
		Payload:   payload,
		CreatedAt: e.now(),
	}
	if err := e.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.WithError(err).Warn("Failed to append audit entry")
	}
}
