package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoAccountRepositoryListForwardingEnabled(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoAccountRepository{collection: mt.Coll}
		now := time.Now().UTC().Truncate(time.Second)

		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			mt.DB.Name()+"."+mt.Coll.Name(),
			mtest.FirstBatch,
			bson.D{
				{Key: "account_id", Value: int64(1001)},
				{Key: "forwarding_enabled", Value: true},
				{Key: "interval_minutes", Value: 45},
				{Key: "last_cycle_at", Value: now},
			},
			bson.D{
				{Key: "account_id", Value: int64(1002)},
				{Key: "forwarding_enabled", Value: true},
				{Key: "interval_minutes", Value: 30},
			},
		))

		accounts, err := repo.ListForwardingEnabled(context.Background())
		if err != nil {
			t.Fatalf("ListForwardingEnabled failed: %v", err)
		}
		if len(accounts) != 2 {
			t.Fatalf("unexpected account count: %d", len(accounts))
		}
		if accounts[0].Interval() != 45*time.Minute || accounts[0].LastCycleAt == nil {
			t.Fatalf("unexpected first account: %+v", accounts[0])
		}
		if accounts[1].LastCycleAt != nil {
			t.Fatalf("expected nil last cycle for second account")
		}
	})
}

func TestMongoAccountRepositoryGetByAccountID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("not found", func(mt *mtest.T) {
		repo := &MongoAccountRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+mt.Coll.Name(), mtest.FirstBatch))

		_, err := repo.GetByAccountID(context.Background(), 404)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoAccountRepositoryUpdateLastCycle(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoAccountRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.UpdateLastCycle(context.Background(), 1001, time.Now()); err != nil {
			t.Fatalf("UpdateLastCycle failed: %v", err)
		}
	})

	mt.Run("missing account", func(mt *mtest.T) {
		repo := &MongoAccountRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.SetForwardingEnabled(context.Background(), 404, true)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
