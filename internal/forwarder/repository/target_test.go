package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ads_forwarder/internal/forwarder/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoTargetRepositoryDueTargets(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("never sent first then oldest", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		now := time.Now().UTC().Truncate(time.Second)

		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			targetNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "account_id", Value: int64(7)},
				{Key: "target_id", Value: "@recent"},
				{Key: "enabled", Value: true},
				{Key: "last_send_at", Value: now.Add(-40 * time.Minute)},
				{Key: "fail_count", Value: 0},
				{Key: "created_at", Value: now.Add(-48 * time.Hour)},
			},
			bson.D{
				{Key: "account_id", Value: int64(7)},
				{Key: "target_id", Value: "@fresh"},
				{Key: "enabled", Value: true},
				{Key: "fail_count", Value: 0},
				{Key: "created_at", Value: now.Add(-time.Hour)},
			},
			bson.D{
				{Key: "account_id", Value: int64(7)},
				{Key: "target_id", Value: "@old"},
				{Key: "enabled", Value: true},
				{Key: "last_send_at", Value: now.Add(-5 * time.Hour)},
				{Key: "fail_count", Value: 1},
				{Key: "created_at", Value: now.Add(-48 * time.Hour)},
			},
		))

		targets, err := repo.DueTargets(context.Background(), 7, now, 30*time.Minute)
		if err != nil {
			t.Fatalf("DueTargets failed: %v", err)
		}

		want := []string{"@fresh", "@old", "@recent"}
		if len(targets) != len(want) {
			t.Fatalf("unexpected target count: got %d, want %d", len(targets), len(want))
		}
		for i, id := range want {
			if targets[i].TargetID != id {
				t.Fatalf("position %d: got %s, want %s", i, targets[i].TargetID, id)
			}
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "mock find error",
		}))

		if _, err := repo.DueTargets(context.Background(), 7, time.Now(), 30*time.Minute); err == nil {
			t.Fatalf("expected error but got nil")
		}
	})
}

func TestMongoTargetRepositoryIncrementFailure(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("below threshold keeps target enabled", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{
			Key: "value",
			Value: bson.D{
				{Key: "account_id", Value: int64(7)},
				{Key: "target_id", Value: "@group"},
				{Key: "enabled", Value: true},
				{Key: "fail_count", Value: 2},
				{Key: "last_error", Value: "forbidden"},
			},
		}))

		res, err := repo.IncrementFailure(context.Background(), 7, "@group", time.Now(), "forbidden")
		if err != nil {
			t.Fatalf("IncrementFailure failed: %v", err)
		}
		if res.FailCount != 2 || res.Disabled {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	mt.Run("threshold disables target", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		now := time.Now().UTC().Truncate(time.Second)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{
			Key: "value",
			Value: bson.D{
				{Key: "account_id", Value: int64(7)},
				{Key: "target_id", Value: "@group"},
				{Key: "enabled", Value: false},
				{Key: "fail_count", Value: models.FailureThreshold},
				{Key: "disabled_at", Value: now},
			},
		}))

		res, err := repo.IncrementFailure(context.Background(), 7, "@group", now, "forbidden")
		if err != nil {
			t.Fatalf("IncrementFailure failed: %v", err)
		}
		if !res.Disabled || res.FailCount != models.FailureThreshold {
			t.Fatalf("expected disabled target, got %+v", res)
		}
	})

	mt.Run("vanished target", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := repo.IncrementFailure(context.Background(), 7, "@gone", time.Now(), "forbidden")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoTargetRepositorySetCooldown(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("rejects non positive duration", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		for _, d := range []time.Duration{0, -time.Second} {
			if err := repo.SetCooldown(context.Background(), 7, "@group", time.Now(), d); !errors.Is(err, ErrInvalidCooldown) {
				t.Fatalf("SetCooldown(%s): expected ErrInvalidCooldown, got %v", d, err)
			}
		}
	})

	mt.Run("success", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.SetCooldown(context.Background(), 7, "@group", time.Now(), 130*time.Second); err != nil {
			t.Fatalf("SetCooldown failed: %v", err)
		}
	})
}

func TestMongoTargetRepositoryMarkSentNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("no matched document", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.MarkSent(context.Background(), 7, "@gone", time.Now())
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoTargetRepositoryAddTarget(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("cap reached", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			targetNamespace(mt),
			mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(5)}},
		))

		err := repo.AddTarget(context.Background(), &models.Target{AccountID: 7, TargetID: "@sixth"}, 5)
		if !errors.Is(err, ErrTargetCapReached) {
			t.Fatalf("expected ErrTargetCapReached, got %v", err)
		}
	})

	mt.Run("duplicate", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, targetNamespace(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{
				Index:   0,
				Code:    11000,
				Message: "E11000 duplicate key error",
			}),
		)

		err := repo.AddTarget(context.Background(), &models.Target{AccountID: 7, TargetID: "@group"}, 5)
		if !errors.Is(err, ErrTargetExists) {
			t.Fatalf("expected ErrTargetExists, got %v", err)
		}
	})

	mt.Run("success", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, targetNamespace(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: int32(2)}}),
			mtest.CreateSuccessResponse(),
		)

		target := &models.Target{AccountID: 7, TargetID: "@group"}
		if err := repo.AddTarget(context.Background(), target, 5); err != nil {
			t.Fatalf("AddTarget failed: %v", err)
		}
		if !target.Enabled || target.CreatedAt.IsZero() {
			t.Fatalf("expected enabled target with creation time: %+v", target)
		}
	})

	mt.Run("empty id", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		err := repo.AddTarget(context.Background(), &models.Target{AccountID: 7}, 5)
		if err == nil || !strings.Contains(err.Error(), "target id is required") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoTargetRepositoryRemoveTarget(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("not found", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		if err := repo.RemoveTarget(context.Background(), 7, "@gone"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("success", func(mt *mtest.T) {
		repo := newTargetRepoForTest(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		if err := repo.RemoveTarget(context.Background(), 7, "@group"); err != nil {
			t.Fatalf("RemoveTarget failed: %v", err)
		}
	})
}

func newTargetRepoForTest(mt *mtest.T) *MongoTargetRepository {
	return &MongoTargetRepository{collection: mt.Coll}
}

func targetNamespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}
