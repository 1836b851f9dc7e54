package data

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"docintel/internal/domain"
)

// WorkspaceRepo 工作区仓储的 Mongo 实现
type WorkspaceRepo struct {
	coll *mongo.Collection
}

// Create 创建工作区
func (r *WorkspaceRepo) Create(ctx context.Context, ws *domain.Workspace) error {
	if _, err := r.coll.InsertOne(ctx, ws); err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

// GetByID 根据ID获取工作区
func (r *WorkspaceRepo) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	var ws domain.Workspace
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "active": true}).Decode(&ws)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find workspace: %w", err)
	}
	return &ws, nil
}

// IncrementUsage 用 $inc 原子累加用量计数
func (r *WorkspaceRepo) IncrementUsage(ctx context.Context, workspaceID string, fields, extractions int64) error {
	update := bson.M{"$inc": bson.M{
		"statistics.num_fields":      fields,
		"statistics.num_extractions": extractions,
	}}
	if _, err := r.coll.UpdateByID(ctx, workspaceID, update); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}
