package data

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"docintel/internal/domain"
)

// WorkflowRepo 检索工作流仓储的 Mongo 实现
type WorkflowRepo struct {
	coll *mongo.Collection
}

// Create 创建工作流
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.SearchCriteriaWorkflow) error {
	if _, err := r.coll.InsertOne(ctx, wf); err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetByID 根据ID获取工作流
func (r *WorkflowRepo) GetByID(ctx context.Context, id string) (*domain.SearchCriteriaWorkflow, error) {
	var wf domain.SearchCriteriaWorkflow
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&wf)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find workflow: %w", err)
	}
	return &wf, nil
}

// ListByWorkspace 列出工作区全部工作流
func (r *WorkflowRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.SearchCriteriaWorkflow, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"workspace_id": workspaceID})
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	var workflows []*domain.SearchCriteriaWorkflow
	if err := cursor.All(ctx, &workflows); err != nil {
		return nil, fmt.Errorf("decode workflows: %w", err)
	}
	return workflows, nil
}

// Delete 删除工作流
func (r *WorkflowRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrWorkflowNotFound
	}
	return nil
}
