// Package msgpool 缓存每个账号可转发的消息列表与轮换游标。
package msgpool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"ads_forwarder/internal/forwarder/messaging"
	"ads_forwarder/internal/logger"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrEmptyPool 账号没有可转发的消息
	ErrEmptyPool = errors.New("message pool is empty")
	// ErrNotLoaded 消息池尚未加载
	ErrNotLoaded = errors.New("message pool not loaded")
)

// Lister 列出账号自有消息（从旧到新）
type Lister interface {
	ListOwnMessages(ctx context.Context) ([]messaging.MessageDescriptor, error)
}

// CursorStore 游标持久化，丢失时从 0 开始
type CursorStore interface {
	Get(ctx context.Context, accountID int64) (int, bool, error)
	Save(ctx context.Context, accountID int64, cursor int) error
}

type pool struct {
	ids    []int
	cursor int
}

// Cache 账号消息池缓存
type Cache struct {
	mu      sync.Mutex
	pools   map[int64]*pool
	loads   singleflight.Group
	cursors CursorStore
}

// NewCache 创建消息池缓存，cursors 可以为 nil
func NewCache(cursors CursorStore) *Cache {
	return &Cache{
		pools:   make(map[int64]*pool),
		cursors: cursors,
	}
}

// EnsureLoaded 冷缓存时加载消息列表，已加载时不做任何事
func (c *Cache) EnsureLoaded(ctx context.Context, accountID int64, lister Lister) error {
	if c.loaded(accountID) {
		return nil
	}

	_, err, _ := c.loads.Do(strconv.FormatInt(accountID, 10), func() (interface{}, error) {
		if c.loaded(accountID) {
			return nil, nil
		}

		descriptors, err := lister.ListOwnMessages(ctx)
		if err != nil {
			return nil, fmt.Errorf("list own messages: %w", err)
		}

		ids := make([]int, 0, len(descriptors))
		for _, d := range descriptors {
			if d.HasContent {
				ids = append(ids, d.ID)
			}
		}

		cursor := c.restoreCursor(ctx, accountID, len(ids))

		c.mu.Lock()
		c.pools[accountID] = &pool{ids: ids, cursor: cursor}
		c.mu.Unlock()

		logger.Account(accountID).Debugf("Message pool loaded: %d messages, cursor %d", len(ids), cursor)
		return nil, nil
	})
	return err
}

func (c *Cache) restoreCursor(ctx context.Context, accountID int64, size int) int {
	if c.cursors == nil || size == 0 {
		return 0
	}
	cursor, ok, err := c.cursors.Get(ctx, accountID)
	if err != nil {
		logger.Account(accountID).WithError(err).Warn("Failed to restore pool cursor, starting at 0")
		return 0
	}
	if !ok || cursor < 0 {
		return 0
	}
	return cursor % size
}

func (c *Cache) loaded(accountID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pools[accountID]
	return ok
}

// Current 返回当前游标指向的消息 ID
func (c *Cache) Current(accountID int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[accountID]
	if !ok {
		return 0, ErrNotLoaded
	}
	if len(p.ids) == 0 {
		return 0, ErrEmptyPool
	}
	return p.ids[p.cursor], nil
}

// Advance 游标前进一位（循环），返回新的游标
func (c *Cache) Advance(ctx context.Context, accountID int64) (int, error) {
	c.mu.Lock()
	p, ok := c.pools[accountID]
	if !ok {
		c.mu.Unlock()
		return 0, ErrNotLoaded
	}
	if len(p.ids) == 0 {
		c.mu.Unlock()
		return 0, ErrEmptyPool
	}
	p.cursor = (p.cursor + 1) % len(p.ids)
	cursor := p.cursor
	c.mu.Unlock()

	c.persist(ctx, accountID, cursor)
	return cursor, nil
}

// Reset 游标归零，不清除消息列表；未加载时只写入持久化游标
func (c *Cache) Reset(ctx context.Context, accountID int64) {
	c.mu.Lock()
	if p, ok := c.pools[accountID]; ok {
		p.cursor = 0
	}
	c.mu.Unlock()

	c.persist(ctx, accountID, 0)
}

func (c *Cache) persist(ctx context.Context, accountID int64, cursor int) {
	if c.cursors == nil {
		return
	}
	if err := c.cursors.Save(ctx, accountID, cursor); err != nil {
		logger.Account(accountID).WithError(err).Warn("Failed to persist pool cursor")
	}
}

// Invalidate 丢弃账号的消息池，下次使用时重新加载
func (c *Cache) Invalidate(accountID int64) {
	c.mu.Lock()
	delete(c.pools, accountID)
	c.mu.Unlock()
}

// Retain 只保留 accountIDs 中的账号，返回被清除的数量
func (c *Cache) Retain(accountIDs []int64) int {
	keep := make(map[int64]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		keep[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id := range c.pools {
		if _, ok := keep[id]; !ok {
			delete(c.pools, id)
			evicted++
		}
	}
	return evicted
}

// Snapshot 返回消息池大小、游标与是否已加载
func (c *Cache) Snapshot(accountID int64) (size, cursor int, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[accountID]
	if !ok {
		return 0, 0, false
	}
	return len(p.ids), p.cursor, true
}
