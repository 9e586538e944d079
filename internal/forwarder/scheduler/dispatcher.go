package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"ads_forwarder/internal/config"
	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/logger"
	"ads_forwarder/internal/metrics"
)

// ErrDispatcherStopped 调度器已停止，不能再次启动
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// AccountLister 列出开启转发的账号
type AccountLister interface {
	ListForwardingEnabled(ctx context.Context) ([]*models.Account, error)
}

// Retainer 按账号列表清理缓存
type Retainer interface {
	Retain(accountIDs []int64) int
}

// TickReport 一次调度的汇总
type TickReport struct {
	Accounts int
	Evicted  int
	Cycles   []CycleReport
	Err      error
}

// Dispatcher 调度循环：周期性地为每个开启转发的账号执行周期
type Dispatcher struct {
	accounts AccountLister
	pool     *CyclePool
	caches   []Retainer
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher 创建调度器，caches 会在每次调度时按开启账号清理
func NewDispatcher(accounts AccountLister, runner CycleRunner, cfg config.ForwardConfig, caches ...Retainer) *Dispatcher {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = config.DefaultForwardConfig().TickInterval
	}
	return &Dispatcher{
		accounts: accounts,
		pool:     NewCyclePool(cfg.Workers, runner),
		caches:   caches,
		interval: interval,
	}
}

// Start 在后台启动调度循环，Stop 之后调用无效
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		logger.L().Warn("Dispatcher already stopped, start ignored")
		return
	}
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Run(ctx)
	}()
}

// Stop 停止调度循环并等待正在执行的周期结束，调度器不可再次启动
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.stopped = true
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		d.wg.Wait()
	}
	d.pool.Shutdown()
}

// Run 循环执行 Tick，直到 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) {
	logger.L().Infof("Dispatcher started, tick interval %s", d.interval)
	for {
		d.Tick(ctx)

		select {
		case <-ctx.Done():
			logger.L().Info("Dispatcher stopped")
			return
		case <-time.After(d.interval):
		}
	}
}

// Tick 执行一次调度：列出账号、清理缓存、并发执行周期并等待全部完成
func (d *Dispatcher) Tick(ctx context.Context) TickReport {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return TickReport{Err: ErrDispatcherStopped}
	}

	start := time.Now()
	defer metrics.ObserveTick(start)

	accounts, err := d.accounts.ListForwardingEnabled(ctx)
	if err != nil {
		logger.L().WithError(err).Error("Failed to list forwarding accounts")
		return TickReport{Err: err}
	}

	report := TickReport{Accounts: len(accounts)}

	ids := make([]int64, 0, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, acc.AccountID)
	}
	for _, cache := range d.caches {
		report.Evicted += cache.Retain(ids)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, acc := range accounts {
		wg.Add(1)
		submitted := d.pool.Submit(ctx, acc, func(cr CycleReport) {
			mu.Lock()
			report.Cycles = append(report.Cycles, cr)
			mu.Unlock()
			wg.Done()
		})
		if !submitted {
			wg.Done()
			break
		}
	}
	wg.Wait()

	return report
}
