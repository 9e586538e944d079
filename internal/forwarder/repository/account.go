package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads_forwarder/internal/forwarder/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAccountRepository 账号数据访问层
type MongoAccountRepository struct {
	collection *mongo.Collection
}

// NewMongoAccountRepository 创建账号 Repository
func NewMongoAccountRepository(db *mongo.Database) *MongoAccountRepository {
	return &MongoAccountRepository{
		collection: db.Collection("accounts"),
	}
}

// Ensure 创建账号（已存在时只更新用户名）
func (r *MongoAccountRepository) Ensure(ctx context.Context, accountID int64, username string) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"username":   username,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"account_id":         accountID,
			"forwarding_enabled": false,
			"interval_minutes":   models.DefaultIntervalMinutes,
			"created_at":         now,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"account_id": accountID}, update, opts); err != nil {
		return fmt.Errorf("failed to ensure account: %w", err)
	}
	return nil
}

// GetByAccountID 获取账号
func (r *MongoAccountRepository) GetByAccountID(ctx context.Context, accountID int64) (*models.Account, error) {
	var account models.Account
	err := r.collection.FindOne(ctx, bson.M{"account_id": accountID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// ListForwardingEnabled 列出所有开启转发的账号
func (r *MongoAccountRepository) ListForwardingEnabled(ctx context.Context) ([]*models.Account, error) {
	opts := options.Find().SetSort(bson.D{{Key: "account_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"forwarding_enabled": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list forwarding accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var accounts []*models.Account
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	return accounts, nil
}

// SetForwardingEnabled 开启或关闭转发
func (r *MongoAccountRepository) SetForwardingEnabled(ctx context.Context, accountID int64, enabled bool) error {
	return r.updateFields(ctx, accountID, bson.M{"forwarding_enabled": enabled}, "set forwarding")
}

// SetInterval 设置转发间隔，非法值回退为默认值
func (r *MongoAccountRepository) SetInterval(ctx context.Context, accountID int64, minutes int) error {
	return r.updateFields(ctx, accountID, bson.M{"interval_minutes": models.NormalizeInterval(minutes)}, "set interval")
}

// UpdateLastCycle 记录最近一次转发周期时间
func (r *MongoAccountRepository) UpdateLastCycle(ctx context.Context, accountID int64, at time.Time) error {
	return r.updateFields(ctx, accountID, bson.M{"last_cycle_at": at}, "update last cycle")
}

func (r *MongoAccountRepository) updateFields(ctx context.Context, accountID int64, fields bson.M, op string) error {
	fields["updated_at"] = time.Now()
	result, err := r.collection.UpdateOne(ctx, bson.M{"account_id": accountID}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "forwarding_enabled", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for accounts: %w", err)
	}
	return nil
}
