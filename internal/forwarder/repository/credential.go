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

// MongoCredentialRepository 会话凭证数据访问层
type MongoCredentialRepository struct {
	collection *mongo.Collection
}

// NewMongoCredentialRepository 创建凭证 Repository
func NewMongoCredentialRepository(db *mongo.Database) *MongoCredentialRepository {
	return &MongoCredentialRepository{
		collection: db.Collection("credentials"),
	}
}

// Upsert 写入会话槽位，重新绑定后清除失效标记
func (r *MongoCredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.Token == "" {
		return errors.New("credential token is required")
	}
	if cred.Slot <= 0 {
		return fmt.Errorf("invalid credential slot %d", cred.Slot)
	}

	now := time.Now()
	filter := bson.M{"account_id": cred.AccountID, "slot": cred.Slot}
	update := bson.M{
		"$set": bson.M{
			"token":          cred.Token,
			"source_chat_id": cred.SourceChatID,
			"needs_reauth":   false,
			"updated_at":     now,
		},
		"$unset": bson.M{"reauth_flagged_at": ""},
		"$setOnInsert": bson.M{
			"account_id": cred.AccountID,
			"slot":       cred.Slot,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	cred.NeedsReauth = false
	cred.ReauthFlaggedAt = nil
	cred.UpdatedAt = now
	return nil
}

// ListByAccount 按槽位顺序列出凭证
func (r *MongoCredentialRepository) ListByAccount(ctx context.Context, accountID int64) ([]*models.Credential, error) {
	opts := options.Find().SetSort(bson.D{{Key: "slot", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer cursor.Close(ctx)

	var creds []*models.Credential
	if err := cursor.All(ctx, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}

// MarkNeedsReauth 标记凭证失效
func (r *MongoCredentialRepository) MarkNeedsReauth(ctx context.Context, accountID int64, slot int, at time.Time) error {
	filter := bson.M{"account_id": accountID, "slot": slot}
	update := bson.M{
		"$set": bson.M{
			"needs_reauth":      true,
			"reauth_flagged_at": at,
			"updated_at":        at,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark needs reauth: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("credential %d/%d: %w", accountID, slot, ErrNotFound)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoCredentialRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "account_id", Value: 1},
				{Key: "slot", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for credentials: %w", err)
	}
	return nil
}
