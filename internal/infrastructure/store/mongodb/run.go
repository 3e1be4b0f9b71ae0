package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/metrics"
)

const runsCollection = "runs"

type RunRepo struct {
	col    *mongo.Collection
	logger *slog.Logger
}

func NewRunRepo(ctx context.Context, db *mongo.Database, logger *slog.Logger) (*RunRepo, error) {
	col := db.Collection(runsCollection)

	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create run indexes: %w", err)
	}

	return &RunRepo{col: col, logger: logger}, nil
}

func (r *RunRepo) Create(ctx context.Context, run *entity.Run) error {
	metrics.IncStoreOp("mongo", "create")

	now := time.Now().UTC()
	doc := *run
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, &doc); err != nil {
		metrics.IncError("mongo_run_repo", "create_error")
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

func (r *RunRepo) GetByID(ctx context.Context, id string) (*entity.Run, error) {
	metrics.IncStoreOp("mongo", "get")

	var run entity.Run
	err := r.col.FindOne(ctx, bson.M{"id": id}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
		}
		metrics.IncError("mongo_run_repo", "get_error")
		return nil, fmt.Errorf("find run %s: %w", id, err)
	}
	return &run, nil
}

func (r *RunRepo) List(ctx context.Context) ([]*entity.Run, error) {
	metrics.IncStoreOp("mongo", "list")
	return r.find(ctx, bson.D{}, "list")
}

// ListByStatus returns runs in creation order, oldest first.
func (r *RunRepo) ListByStatus(ctx context.Context, status entity.RunStatus) ([]*entity.Run, error) {
	metrics.IncStoreOp("mongo", "list")
	return r.find(ctx, bson.M{"status": status}, "list_by_status")
}

func (r *RunRepo) find(ctx context.Context, filter any, op string) ([]*entity.Run, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		metrics.IncError("mongo_run_repo", op+"_error")
		return nil, fmt.Errorf("find runs: %w", err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			r.logger.Warn("close cursor", "err", err)
		}
	}()

	var runs []*entity.Run
	for cur.Next(ctx) {
		var run entity.Run
		if err := cur.Decode(&run); err != nil {
			metrics.IncError("mongo_run_repo", op+"_decode_error")
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_run_repo", op+"_cursor_error")
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (r *RunRepo) UpdateStatus(ctx context.Context, id string, status entity.RunStatus) error {
	metrics.IncStoreOp("mongo", "put")
	return r.update(ctx, id, bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}, "update_status")
}

func (r *RunRepo) SaveResult(ctx context.Context, id string, state *entity.WorkflowState) error {
	metrics.IncStoreOp("mongo", "put")
	now := time.Now().UTC()
	return r.update(ctx, id, bson.M{
		"status":       entity.RunStatusCompleted,
		"state":        state,
		"error":        "",
		"updated_at":   now,
		"completed_at": now,
	}, "save_result")
}

func (r *RunRepo) MarkFailed(ctx context.Context, id, reason string, state *entity.WorkflowState) error {
	metrics.IncStoreOp("mongo", "put")
	now := time.Now().UTC()
	set := bson.M{
		"status":       entity.RunStatusFailed,
		"error":        reason,
		"updated_at":   now,
		"completed_at": now,
	}
	if state != nil {
		set["state"] = state
	}
	return r.update(ctx, id, set, "mark_failed")
}

func (r *RunRepo) update(ctx context.Context, id string, set bson.M, op string) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		metrics.IncError("mongo_run_repo", op+"_error")
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *RunRepo) Delete(ctx context.Context, id string) error {
	metrics.IncStoreOp("mongo", "delete")

	res, err := r.col.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		metrics.IncError("mongo_run_repo", "delete_error")
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *RunRepo) CountByStatus(ctx context.Context, status entity.RunStatus) (int, error) {
	metrics.IncStoreOp("mongo", "count")

	count, err := r.col.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		metrics.IncError("mongo_run_repo", "count_by_status_error")
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return int(count), nil
}
