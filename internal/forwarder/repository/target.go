package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads_forwarder/internal/forwarder/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTargetRepository 目标健康状态存储（MongoDB 实现）
type MongoTargetRepository struct {
	collection *mongo.Collection
}

// NewMongoTargetRepository 创建目标 Repository
func NewMongoTargetRepository(db *mongo.Database) *MongoTargetRepository {
	return &MongoTargetRepository{
		collection: db.Collection("targets"),
	}
}

func targetFilter(accountID int64, targetID string) bson.M {
	return bson.M{"account_id": accountID, "target_id": targetID}
}

// DueTargets 返回到期目标
// 缺失字段与 null 等价，排序在内存中完成，不依赖数据库的 null 排序规则
func (r *MongoTargetRepository) DueTargets(ctx context.Context, accountID int64, now time.Time, interval time.Duration) ([]*models.Target, error) {
	filter := bson.M{
		"account_id": accountID,
		"enabled":    true,
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"cooldown_until": nil},
				bson.M{"cooldown_until": bson.M{"$lte": now}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"last_send_at": nil},
				bson.M{"last_send_at": bson.M{"$lte": now.Add(-interval)}},
			}},
		},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query due targets: %w", err)
	}
	defer cursor.Close(ctx)

	var targets []*models.Target
	if err := cursor.All(ctx, &targets); err != nil {
		return nil, fmt.Errorf("failed to decode due targets: %w", err)
	}

	models.SortByStarvation(targets)
	return targets, nil
}

// MarkSent 记录发送成功时间
func (r *MongoTargetRepository) MarkSent(ctx context.Context, accountID int64, targetID string, at time.Time) error {
	return r.update(ctx, accountID, targetID, bson.M{
		"$set": bson.M{"last_send_at": at, "updated_at": at},
	}, "mark sent")
}

// SetCooldown 设置冷却截止时间
func (r *MongoTargetRepository) SetCooldown(ctx context.Context, accountID int64, targetID string, at time.Time, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s: %w", d, ErrInvalidCooldown)
	}
	return r.update(ctx, accountID, targetID, bson.M{
		"$set": bson.M{"cooldown_until": at.Add(d), "updated_at": at},
	}, "set cooldown")
}

// IncrementFailure 原子地增加失败计数并在达到阈值时禁用目标
func (r *MongoTargetRepository) IncrementFailure(ctx context.Context, accountID int64, targetID string, at time.Time, reason string) (models.FailureResult, error) {
	reached := bson.M{"$gte": bson.A{"$fail_count", models.FailureThreshold}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "fail_count", Value: bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$fail_count", 0}}, 1}}},
			{Key: "last_error", Value: bson.M{"$literal": reason}},
			{Key: "updated_at", Value: at},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "disabled_at", Value: bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{reached, "$enabled"}},
				at,
				"$disabled_at",
			}}},
			{Key: "enabled", Value: bson.M{"$cond": bson.A{reached, false, "$enabled"}}},
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var target models.Target
	err := r.collection.FindOneAndUpdate(ctx, targetFilter(accountID, targetID), pipeline, opts).Decode(&target)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.FailureResult{}, fmt.Errorf("target %s: %w", targetID, ErrNotFound)
		}
		return models.FailureResult{}, fmt.Errorf("failed to increment failure: %w", err)
	}

	return models.FailureResult{FailCount: target.FailCount, Disabled: !target.Enabled}, nil
}

// ResetFailure 清零失败计数
func (r *MongoTargetRepository) ResetFailure(ctx context.Context, accountID int64, targetID string, at time.Time) error {
	return r.update(ctx, accountID, targetID, bson.M{
		"$set":   bson.M{"fail_count": 0, "updated_at": at},
		"$unset": bson.M{"last_error": ""},
	}, "reset failure")
}

// Enable 人工重新启用目标
func (r *MongoTargetRepository) Enable(ctx context.Context, accountID int64, targetID string, at time.Time) error {
	return r.update(ctx, accountID, targetID, bson.M{
		"$set":   bson.M{"enabled": true, "fail_count": 0, "updated_at": at},
		"$unset": bson.M{"disabled_at": "", "last_error": ""},
	}, "enable target")
}

func (r *MongoTargetRepository) update(ctx context.Context, accountID int64, targetID string, update bson.M, op string) error {
	result, err := r.collection.UpdateOne(ctx, targetFilter(accountID, targetID), update)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("target %s: %w", targetID, ErrNotFound)
	}
	return nil
}

// AddTarget 添加目标
// 上限检查与插入不在同一事务内，并发添加时可能短暂超出上限
func (r *MongoTargetRepository) AddTarget(ctx context.Context, target *models.Target, maxTargets int) error {
	if target == nil || target.TargetID == "" {
		return errors.New("target id is required")
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"account_id": target.AccountID})
	if err != nil {
		return fmt.Errorf("failed to count targets: %w", err)
	}
	if maxTargets > 0 && count >= int64(maxTargets) {
		return fmt.Errorf("account %d has %d targets: %w", target.AccountID, count, ErrTargetCapReached)
	}

	now := time.Now()
	if target.CreatedAt.IsZero() {
		target.CreatedAt = now
	}
	target.UpdatedAt = now
	target.Enabled = true

	result, err := r.collection.InsertOne(ctx, target)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("target %s: %w", target.TargetID, ErrTargetExists)
		}
		return fmt.Errorf("failed to insert target: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		target.ID = oid
	}
	return nil
}

// RemoveTarget 删除目标
func (r *MongoTargetRepository) RemoveTarget(ctx context.Context, accountID int64, targetID string) error {
	result, err := r.collection.DeleteOne(ctx, targetFilter(accountID, targetID))
	if err != nil {
		return fmt.Errorf("failed to remove target: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("target %s: %w", targetID, ErrNotFound)
	}
	return nil
}

// ListByAccount 列出账号全部目标
func (r *MongoTargetRepository) ListByAccount(ctx context.Context, accountID int64) ([]*models.Target, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer cursor.Close(ctx)

	var targets []*models.Target
	if err := cursor.All(ctx, &targets); err != nil {
		return nil, fmt.Errorf("failed to decode targets: %w", err)
	}
	return targets, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoTargetRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "account_id", Value: 1},
				{Key: "target_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "account_id", Value: 1},
				{Key: "enabled", Value: 1},
				{Key: "last_send_at", Value: 1},
			},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for targets: %w", err)
	}
	return nil
}
