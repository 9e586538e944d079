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

// MongoSourceMessageRepository 源会话消息数据访问层
type MongoSourceMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoSourceMessageRepository 创建源消息 Repository
func NewMongoSourceMessageRepository(db *mongo.Database) *MongoSourceMessageRepository {
	return &MongoSourceMessageRepository{
		collection: db.Collection("source_messages"),
	}
}

// Record 记录一条源会话消息
func (r *MongoSourceMessageRepository) Record(ctx context.Context, msg *models.SourceMessage) error {
	if msg == nil || msg.ChatID == 0 || msg.MessageID == 0 {
		return errors.New("source message requires chat id and message id")
	}

	now := time.Now()
	if msg.PostedAt.IsZero() {
		msg.PostedAt = now
	}
	filter := bson.M{"chat_id": msg.ChatID, "message_id": msg.MessageID}
	update := bson.M{
		"$set": bson.M{
			"has_content": msg.HasContent,
			"is_control":  msg.IsControl,
			"posted_at":   msg.PostedAt,
		},
		"$setOnInsert": bson.M{
			"chat_id":    msg.ChatID,
			"message_id": msg.MessageID,
			"created_at": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to record source message: %w", err)
	}
	return nil
}

// ListByChat 按消息 ID 升序列出源会话消息
func (r *MongoSourceMessageRepository) ListByChat(ctx context.Context, chatID int64) ([]*models.SourceMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "message_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list source messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.SourceMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode source messages: %w", err)
	}
	return messages, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoSourceMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for source_messages: %w", err)
	}
	return nil
}
