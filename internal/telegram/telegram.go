package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ads_forwarder/internal/config"
	"ads_forwarder/internal/forwarder/models"
	"ads_forwarder/internal/forwarder/service"
	"ads_forwarder/internal/logger"

	"github.com/go-telegram/bot"
)

// Config Telegram 管理 Bot 配置
type Config struct {
	Token    string  // Bot Token
	OwnerIDs []int64 // Owner 用户 IDs
	Debug    bool    // 是否开启调试模式
}

// SourceRecorder 记录源频道消息
type SourceRecorder interface {
	Record(ctx context.Context, msg *models.SourceMessage) error
}

// Bot 转发管理 Bot
type Bot struct {
	bot       *bot.Bot
	control   service.ControlService
	sources   SourceRecorder
	ownerIDs  map[int64]struct{}
	startTime time.Time

	mu     sync.RWMutex
	active map[int64]int64 // 管理员当前操作的账号
}

// New 创建管理 Bot 实例
func New(cfg Config, control service.ControlService, sources SourceRecorder) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	telegramBot := newBot(cfg.OwnerIDs, control, sources)

	opts := []bot.Option{
		bot.WithDefaultHandler(telegramBot.handleUpdate),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	telegramBot.bot = b

	telegramBot.registerHandlers()

	logger.L().Info("Telegram admin bot initialized successfully")
	return telegramBot, nil
}

func newBot(ownerIDs []int64, control service.ControlService, sources SourceRecorder) *Bot {
	owners := make(map[int64]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}
	return &Bot{
		control:   control,
		sources:   sources,
		ownerIDs:  owners,
		startTime: time.Now(),
		active:    make(map[int64]int64),
	}
}

// InitFromConfig 从应用配置初始化管理 Bot
func InitFromConfig(cfg *config.Config, control service.ControlService, sources SourceRecorder) (*Bot, error) {
	telegramCfg := Config{
		Token:    cfg.TelegramToken,
		OwnerIDs: cfg.BotOwnerIDs,
	}
	return New(telegramCfg, control, sources)
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行）
func (b *Bot) Start(ctx context.Context) {
	logger.L().Info("Starting Telegram admin bot...")
	b.bot.Start(ctx)
	logger.L().Info("Telegram admin bot stopped")
}

// activeAccount 返回管理员当前操作的账号，默认为管理员本人
func (b *Bot) activeAccount(userID int64) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if id, ok := b.active[userID]; ok {
		return id
	}
	return userID
}

func (b *Bot) setActiveAccount(userID, accountID int64) {
	b.mu.Lock()
	b.active[userID] = accountID
	b.mu.Unlock()
}

func (b *Bot) isOwner(userID int64) bool {
	_, ok := b.ownerIDs[userID]
	return ok
}
