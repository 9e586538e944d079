package repository

import (
	"context"
	"fmt"
	"time"

	"ads_forwarder/internal/forwarder/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultAuditRetentionDays = 30

// MongoAuditRepository 审计记录数据访问层（只追加）
type MongoAuditRepository struct {
	collection *mongo.Collection
}

// NewMongoAuditRepository 创建审计 Repository
func NewMongoAuditRepository(db *mongo.Database) *MongoAuditRepository {
	return &MongoAuditRepository{
		collection: db.Collection("audit"),
	}
}

// Append 追加一条审计记录
func (r *MongoAuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListRecent 按时间倒序返回最近的审计记录
func (r *MongoAuditRepository) ListRecent(ctx context.Context, accountID int64, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}
	return entries, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoAuditRepository) EnsureIndexes(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		retentionDays = defaultAuditRetentionDays
	}
	ttl := int32(retentionDays * 24 * 60 * 60)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "account_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(ttl),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for audit: %w", err)
	}
	return nil
}
