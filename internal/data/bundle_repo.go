package data

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"docintel/internal/domain"
)

// FieldBundleRepo 字段集仓储的 Mongo 实现
type FieldBundleRepo struct {
	coll *mongo.Collection
}

// Create 创建字段集
func (r *FieldBundleRepo) Create(ctx context.Context, bundle *domain.FieldBundle) error {
	if _, err := r.coll.InsertOne(ctx, bundle); err != nil {
		return fmt.Errorf("insert field bundle: %w", err)
	}
	return nil
}

// GetByID 根据ID获取字段集
func (r *FieldBundleRepo) GetByID(ctx context.Context, id string) (*domain.FieldBundle, error) {
	var bundle domain.FieldBundle
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "active": true}).Decode(&bundle)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrBundleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find field bundle: %w", err)
	}
	return &bundle, nil
}

// GetDefault 获取工作区的 DEFAULT 字段集
func (r *FieldBundleRepo) GetDefault(ctx context.Context, workspaceID string) (*domain.FieldBundle, error) {
	var bundle domain.FieldBundle
	err := r.coll.FindOne(ctx, bson.M{
		"workspace_id": workspaceID,
		"bundle_type":  domain.BundleTypeDefault,
		"active":       true,
	}).Decode(&bundle)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrBundleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find default bundle: %w", err)
	}
	return &bundle, nil
}

// AddFieldID 追加字段到规范顺序尾部; $addToSet 保证幂等
func (r *FieldBundleRepo) AddFieldID(ctx context.Context, bundleID, fieldID string) error {
	res, err := r.coll.UpdateByID(ctx, bundleID, bson.M{"$addToSet": bson.M{"field_ids": fieldID}})
	if err != nil {
		return fmt.Errorf("add field to bundle: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrBundleNotFound
	}
	return nil
}

// RemoveFieldID 从规范顺序中移除字段
func (r *FieldBundleRepo) RemoveFieldID(ctx context.Context, bundleID, fieldID string) error {
	res, err := r.coll.UpdateByID(ctx, bundleID, bson.M{"$pull": bson.M{"field_ids": fieldID}})
	if err != nil {
		return fmt.Errorf("remove field from bundle: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrBundleNotFound
	}
	return nil
}
