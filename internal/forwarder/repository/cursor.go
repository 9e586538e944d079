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

// MongoCursorRepository 消息池游标持久化
type MongoCursorRepository struct {
	collection *mongo.Collection
}

// NewMongoCursorRepository 创建游标 Repository
func NewMongoCursorRepository(db *mongo.Database) *MongoCursorRepository {
	return &MongoCursorRepository{
		collection: db.Collection("pool_cursors"),
	}
}

// Get 获取游标
func (r *MongoCursorRepository) Get(ctx context.Context, accountID int64) (int, bool, error) {
	var doc models.PoolCursor
	err := r.collection.FindOne(ctx, bson.M{"account_id": accountID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get pool cursor: %w", err)
	}
	return doc.Cursor, true, nil
}

// Save 保存游标
func (r *MongoCursorRepository) Save(ctx context.Context, accountID int64, cursor int) error {
	update := bson.M{
		"$set": bson.M{
			"cursor":     cursor,
			"updated_at": time.Now(),
		},
		"$setOnInsert": bson.M{"account_id": accountID},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"account_id": accountID}, update, opts); err != nil {
		return fmt.Errorf("failed to save pool cursor: %w", err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoCursorRepository) EnsureIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "account_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create indexes for pool_cursors: %w", err)
	}
	return nil
}
