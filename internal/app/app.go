package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ads_forwarder/internal/config"
	"ads_forwarder/internal/forwarder/msgpool"
	"ads_forwarder/internal/forwarder/repository"
	"ads_forwarder/internal/forwarder/scheduler"
	"ads_forwarder/internal/forwarder/service"
	"ads_forwarder/internal/forwarder/session"
	"ads_forwarder/internal/logger"
	"ads_forwarder/internal/metrics"
	"ads_forwarder/internal/mongo"
	"ads_forwarder/internal/telegram"
	"ads_forwarder/internal/telegram/connector"
)

const indexTimeout = 30 * time.Second

// Repositories 所有 MongoDB 数据访问层
type Repositories struct {
	Accounts    *repository.MongoAccountRepository
	Targets     *repository.MongoTargetRepository
	Credentials *repository.MongoCredentialRepository
	Cursors     *repository.MongoCursorRepository
	Audit       *repository.MongoAuditRepository
	Sources     *repository.MongoSourceMessageRepository
}

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	cfg *config.Config

	MongoDB    *mongo.Client
	Repos      Repositories
	Messages   *msgpool.Cache
	Sessions   *session.Pool
	Control    *service.ForwardControlService
	Dispatcher *scheduler.Dispatcher
	AdminBot   *telegram.Bot

	metricsServer *http.Server
	botCancel     context.CancelFunc
}

// New 初始化应用及其所有服务（不启动调度）
// 按顺序初始化各个服务，任何服务初始化失败都会返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	// 初始化 MongoDB
	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	db := mongoClient.Database()
	app.Repos = Repositories{
		Accounts:    repository.NewMongoAccountRepository(db),
		Targets:     repository.NewMongoTargetRepository(db),
		Credentials: repository.NewMongoCredentialRepository(db),
		Cursors:     repository.NewMongoCursorRepository(db),
		Audit:       repository.NewMongoAuditRepository(db),
		Sources:     repository.NewMongoSourceMessageRepository(db),
	}

	if err := app.ensureIndexes(); err != nil {
		app.Close(context.Background()) // 清理已初始化的服务
		return nil, err
	}

	app.Messages = msgpool.NewCache(app.Repos.Cursors)
	app.Sessions = session.NewPool(
		connector.New(app.Repos.Sources),
		app.Repos.Credentials,
		app.Repos.Audit,
		cfg.Forward.ReconnectBackoff,
	)

	executor := scheduler.NewExecutor(
		app.Sessions,
		app.Messages,
		app.Repos.Targets,
		app.Repos.Accounts,
		app.Repos.Audit,
		cfg.Forward,
	)
	app.Dispatcher = scheduler.NewDispatcher(app.Repos.Accounts, executor, cfg.Forward, app.Messages, app.Sessions)

	app.Control = service.NewControlService(
		app.Repos.Accounts,
		app.Repos.Targets,
		app.Repos.Credentials,
		app.Repos.Audit,
		app.Messages,
		app.Sessions,
		cfg.Forward.TargetCap,
	)

	return app, nil
}

// indexStep 单个集合的索引初始化
type indexStep struct {
	name string
	fn   func(context.Context) error
}

// indexSteps 所有需要建立索引的集合
func (a *App) indexSteps() []indexStep {
	return []indexStep{
		{"accounts", a.Repos.Accounts.EnsureIndexes},
		{"targets", a.Repos.Targets.EnsureIndexes},
		{"credentials", a.Repos.Credentials.EnsureIndexes},
		{"pool_cursors", a.Repos.Cursors.EnsureIndexes},
		{"audit", func(ctx context.Context) error {
			return a.Repos.Audit.EnsureIndexes(ctx, a.cfg.AuditRetentionDays)
		}},
		{"source_messages", a.Repos.Sources.EnsureIndexes},
	}
}

func (a *App) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	for _, step := range a.indexSteps() {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s indexes failed: %w", step.name, err)
		}
	}
	logger.L().Info("MongoDB indexes ensured")
	return nil
}

// Start 启动调度器、指标服务以及（配置了 Token 时）管理 Bot
func (a *App) Start(ctx context.Context) error {
	if a.cfg.TelegramToken != "" {
		adminBot, err := telegram.InitFromConfig(a.cfg, a.Control, a.Repos.Sources)
		if err != nil {
			return fmt.Errorf("init Telegram bot failed: %w", err)
		}
		a.AdminBot = adminBot

		botCtx, cancel := context.WithCancel(ctx)
		a.botCancel = cancel
		go adminBot.Start(botCtx)
	} else {
		logger.L().Warn("TELEGRAM_TOKEN not set, admin bot disabled")
	}

	a.metricsServer = metrics.StartServer(a.cfg.MetricsAddr)
	a.Dispatcher.Start()

	logger.L().Infof("Forwarder started: workers=%d mode=%s tick=%s",
		a.cfg.Forward.Workers, a.cfg.Forward.Mode, a.cfg.Forward.TickInterval)
	return nil
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	if a.botCancel != nil {
		a.botCancel()
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logger.L().Warnf("Failed to shutdown metrics server: %v", err)
		}
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}
