package data

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"docintel/internal/domain"
)

// TaskRepo 任务仓储的 Mongo 实现
type TaskRepo struct {
	coll *mongo.Collection
}

// Create 创建任务
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	if _, err := r.coll.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID 根据ID获取任务
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// UpdateStatus 写任务状态与明细
func (r *TaskRepo) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, detail string) error {
	update := bson.M{"$set": bson.M{"status": status}}
	if detail != "" {
		update["$set"].(bson.M)["detail"] = detail
	}
	res, err := r.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}
