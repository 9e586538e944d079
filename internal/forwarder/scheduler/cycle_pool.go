package scheduler

import (
	"context"
	"sync"
	"time"

	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/logger"
)

// CycleRunner 执行单个账号的周期
type CycleRunner interface {
	RunCycle(ctx context.Context, account *models.Account) CycleReport
}

// cycleJob 周期任务
type cycleJob struct {
	ctx     context.Context
	account *models.Account
	done    func(CycleReport)
}

// CyclePool 周期工作池，限制全局同时执行的周期数量
type CyclePool struct {
	jobs    chan cycleJob
	wg      sync.WaitGroup
	workers int
	runner  CycleRunner
	quit    chan struct{}
	once    sync.Once
}

// NewCyclePool 创建工作池
// workers: worker 协程数量，即全局并发上限
func NewCyclePool(workers int, runner CycleRunner) *CyclePool {
	if workers <= 0 {
		workers = 1
	}
	pool := &CyclePool{
		jobs:    make(chan cycleJob),
		quit:    make(chan struct{}),
		workers: workers,
		runner:  runner,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.L().Infof("Cycle pool started with %d workers", workers)
	return pool
}

func (p *CyclePool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			p.execute(id, job)
		case <-p.quit:
			logger.L().Debugf("Cycle worker %d stopped", id)
			return
		}
	}
}

func (p *CyclePool) execute(id int, job cycleJob) {
	report := CycleReport{AccountID: job.account.AccountID, StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			logger.Account(job.account.AccountID).Errorf("Cycle worker %d: panic recovered: %v", id, r)
			report.Result = ResultCrashed
		}
		if job.done != nil {
			job.done(report)
		}
	}()

	report = p.runner.RunCycle(job.ctx, job.account)
}

// Submit 提交任务，队列满时阻塞直到有空闲 worker、ctx 取消或工作池关闭
// 返回 false 表示任务未被接收
func (p *CyclePool) Submit(ctx context.Context, account *models.Account, done func(CycleReport)) bool {
	select {
	case <-p.quit:
		return false
	default:
	}

	select {
	case p.jobs <- cycleJob{ctx: ctx, account: account, done: done}:
		return true
	case <-ctx.Done():
		return false
	case <-p.quit:
		return false
	}
}

// Shutdown 关闭工作池并等待正在执行的周期完成
func (p *CyclePool) Shutdown() {
	p.once.Do(func() {
		close(p.quit)
		p.wg.Wait()
		logger.L().Info("Cycle pool shut down")
	})
}
