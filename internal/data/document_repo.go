package data

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docintel/internal/domain"
)

// DocumentRepo 文档仓储的 Mongo 实现
type DocumentRepo struct {
	coll *mongo.Collection
}

// Create 创建文档
func (r *DocumentRepo) Create(ctx context.Context, doc *domain.Document) error {
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetByID 根据ID获取文档
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "is_deleted": false}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &doc, nil
}

// CountByWorkspace 统计未删除文档数
func (r *DocumentRepo) CountByWorkspace(ctx context.Context, workspaceID string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"workspace_id": workspaceID, "is_deleted": false})
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// ListByWorkspace 按文件名升序分页列出未删除文档
// 批次划分依赖稳定顺序, 排序键与唯一 _id 连用保证全序
func (r *DocumentRepo) ListByWorkspace(ctx context.Context, workspaceID string, offset, limit int) ([]*domain.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, bson.M{"workspace_id": workspaceID, "is_deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var docs []*domain.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

// UpdateStatus 条件状态迁移; 当前状态不等于 from 时返回 ErrConflict
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id string, from, to domain.DocumentStatus) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to}},
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrConflict
	}
	return nil
}

// SetDeleted 软删除
func (r *DocumentRepo) SetDeleted(ctx context.Context, id string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"is_deleted": true}})
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
