package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SendMode 单个周期内的发送方式
type SendMode string

const (
	// SendModeSweep 依次发送所有到期目标，目标之间固定间隔（历史默认行为）
	SendModeSweep SendMode = "sweep"
	// SendModeSingle 每个周期只发送优先级最高的一个目标
	SendModeSingle SendMode = "single"
)

// Config 应用程序配置
type Config struct {
	TelegramToken      string  // 管理 Bot Token（为空则不启动管理 Bot）
	BotOwnerIDs        []int64 // Bot 管理员 ID 列表
	MongoURI           string  // MongoDB 连接 URI
	MongoDBName        string  // MongoDB 数据库名称
	MetricsAddr        string  // Prometheus 指标监听地址（为空则不启动）
	AuditRetentionDays int     // 审计记录保留天数（过期自动删除）
	Forward            ForwardConfig
}

// ForwardConfig 转发调度相关配置
type ForwardConfig struct {
	TickInterval     time.Duration // 调度轮询间隔
	Workers          int           // 全局并发上限
	SendTimeout      time.Duration // 单次发送超时
	TargetDelay      time.Duration // sweep 模式下目标之间的间隔
	Mode             SendMode      // 发送方式
	CooldownMargin   time.Duration // FloodWait 之外额外增加的冷却时间
	TargetCap        int           // 每个账号最多目标数
	SendRatePerSec   float64       // 全局发送速率（条/秒），<=0 表示不限制
	ReconnectBackoff time.Duration // 账号无可用会话时的重连间隔
}

// DefaultForwardConfig 返回默认转发配置
func DefaultForwardConfig() ForwardConfig {
	return ForwardConfig{
		TickInterval:     15 * time.Second,
		Workers:          3,
		SendTimeout:      60 * time.Second,
		TargetDelay:      30 * time.Second,
		Mode:             SendModeSweep,
		CooldownMargin:   10 * time.Second,
		TargetCap:        5,
		SendRatePerSec:   20,
		ReconnectBackoff: 60 * time.Second,
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "ads_forwarder"
	}

	cfg := &Config{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDBName:   mongoDBName,
		MetricsAddr:   strings.TrimSpace(os.Getenv("METRICS_ADDR")),
	}

	// 解析BOT_OWNER_IDS
	ownerIDsStr := os.Getenv("BOT_OWNER_IDS")
	if ownerIDsStr != "" {
		var err error
		cfg.BotOwnerIDs, err = parseOwnerIDs(ownerIDsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
	}

	// 解析AUDIT_RETENTION_DAYS（默认30天）
	retentionDaysStr := os.Getenv("AUDIT_RETENTION_DAYS")
	if retentionDaysStr == "" {
		cfg.AuditRetentionDays = 30
	} else {
		days, err := strconv.Atoi(retentionDaysStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse AUDIT_RETENTION_DAYS: %w", err)
		}
		if days < 1 {
			return nil, fmt.Errorf("AUDIT_RETENTION_DAYS must be >= 1, got %d", days)
		}
		cfg.AuditRetentionDays = days
	}

	forwardCfg, err := loadForwardConfig()
	if err != nil {
		return nil, err
	}
	cfg.Forward = forwardCfg

	return cfg, nil
}

func loadForwardConfig() (ForwardConfig, error) {
	cfg := DefaultForwardConfig()

	durations := []struct {
		env    string
		target *time.Duration
		min    int
	}{
		{"FORWARD_TICK_SECONDS", &cfg.TickInterval, 1},
		{"FORWARD_SEND_TIMEOUT_SECONDS", &cfg.SendTimeout, 1},
		{"FORWARD_TARGET_DELAY_SECONDS", &cfg.TargetDelay, 0},
		{"FORWARD_COOLDOWN_MARGIN_SECONDS", &cfg.CooldownMargin, 0},
		{"SESSION_RECONNECT_SECONDS", &cfg.ReconnectBackoff, 0},
	}
	for _, d := range durations {
		seconds, ok, err := lookupInt(d.env)
		if err != nil {
			return ForwardConfig{}, err
		}
		if !ok {
			continue
		}
		if seconds < d.min {
			return ForwardConfig{}, fmt.Errorf("%s must be >= %d, got %d", d.env, d.min, seconds)
		}
		*d.target = time.Duration(seconds) * time.Second
	}

	if workers, ok, err := lookupInt("FORWARD_WORKERS"); err != nil {
		return ForwardConfig{}, err
	} else if ok {
		if workers < 1 {
			return ForwardConfig{}, fmt.Errorf("FORWARD_WORKERS must be >= 1, got %d", workers)
		}
		cfg.Workers = workers
	}

	if capacity, ok, err := lookupInt("FORWARD_TARGET_CAP"); err != nil {
		return ForwardConfig{}, err
	} else if ok {
		if capacity < 1 {
			return ForwardConfig{}, fmt.Errorf("FORWARD_TARGET_CAP must be >= 1, got %d", capacity)
		}
		cfg.TargetCap = capacity
	}

	if rateStr := strings.TrimSpace(os.Getenv("FORWARD_SEND_RATE")); rateStr != "" {
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil {
			return ForwardConfig{}, fmt.Errorf("failed to parse FORWARD_SEND_RATE: %w", err)
		}
		cfg.SendRatePerSec = rate
	}

	if modeStr := strings.TrimSpace(os.Getenv("FORWARD_SEND_MODE")); modeStr != "" {
		mode, err := ParseSendMode(modeStr)
		if err != nil {
			return ForwardConfig{}, err
		}
		cfg.Mode = mode
	}

	return cfg, nil
}

// ParseSendMode 解析发送方式（大小写不敏感）
func ParseSendMode(s string) (SendMode, error) {
	switch SendMode(strings.ToLower(strings.TrimSpace(s))) {
	case SendModeSweep:
		return SendModeSweep, nil
	case SendModeSingle:
		return SendModeSingle, nil
	default:
		return "", fmt.Errorf("invalid FORWARD_SEND_MODE %q (expected sweep or single)", s)
	}
}

func lookupInt(env string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse %s: %w", env, err)
	}
	return v, true, nil
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
