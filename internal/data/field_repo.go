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

// FieldRepo 字段仓储的 Mongo 实现
type FieldRepo struct {
	coll *mongo.Collection
}

// Create 创建字段
func (r *FieldRepo) Create(ctx context.Context, field *domain.Field) error {
	if _, err := r.coll.InsertOne(ctx, field); err != nil {
		return fmt.Errorf("insert field: %w", err)
	}
	return nil
}

// GetByID 根据ID获取字段
func (r *FieldRepo) GetByID(ctx context.Context, id string) (*domain.Field, error) {
	var field domain.Field
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "active": true}).Decode(&field)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrFieldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find field: %w", err)
	}
	return &field, nil
}

// GetMany 批量获取
func (r *FieldRepo) GetMany(ctx context.Context, ids []string) ([]*domain.Field, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}, "active": true})
	if err != nil {
		return nil, fmt.Errorf("find fields: %w", err)
	}
	var fields []*domain.Field
	if err := cursor.All(ctx, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

// Update 整体更新
func (r *FieldRepo) Update(ctx context.Context, field *domain.Field) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": field.ID}, field)
	if err != nil {
		return fmt.Errorf("replace field: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrFieldNotFound
	}
	return nil
}

// Delete 删除字段
func (r *FieldRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrFieldNotFound
	}
	return nil
}

// ListByBundle 列出字段集全部字段
func (r *FieldRepo) ListByBundle(ctx context.Context, bundleID string) ([]*domain.Field, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"parent_bundle_id": bundleID, "active": true})
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	var fields []*domain.Field
	if err := cursor.All(ctx, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

// ExistsByName 同一字段集内是否已有同名字段
func (r *FieldRepo) ExistsByName(ctx context.Context, bundleID, name string) (bool, error) {
	err := r.coll.FindOne(ctx, bson.M{
		"parent_bundle_id": bundleID,
		"name":             name,
		"active":           true,
	}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check field name: %w", err)
	}
	return true, nil
}

// MarkQueued 置 {total, done: 0, progress: queued}
func (r *FieldRepo) MarkQueued(ctx context.Context, fieldID string, total int) error {
	res, err := r.coll.UpdateByID(ctx, fieldID, bson.M{"$set": bson.M{
		"status": domain.FieldStatus{Total: total, Done: 0, Progress: domain.ProgressQueued},
	}})
	if err != nil {
		return fmt.Errorf("mark queued: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrFieldNotFound
	}
	return nil
}

// BatchDone 原子推进计数器: done ← min(done+docPerPage, total),
// progress ← done≥total ? done : extracting
// 聚合管道更新在单文档上原子执行, 并发批次无需加锁;
// 重复应用被 $min 截断, done 单调不减且不超过 total
func (r *FieldRepo) BatchDone(ctx context.Context, fieldID string, docPerPage int) (*domain.ProgressUpdate, error) {
	pipeline := bson.A{
		bson.M{"$set": bson.M{
			"status.done": bson.M{"$min": bson.A{
				bson.M{"$add": bson.A{"$status.done", docPerPage}},
				"$status.total",
			}},
		}},
		bson.M{"$set": bson.M{
			"status.progress": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$status.done", "$status.total"}},
				string(domain.ProgressDone),
				string(domain.ProgressExtracting),
			}},
		}},
	}

	// 取更新前镜像以检测 extracting→done 迁移
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var before domain.Field
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": fieldID}, pipeline, opts).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrFieldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("batch done: %w", err)
	}

	done := before.Status.Done + docPerPage
	if done > before.Status.Total {
		done = before.Status.Total
	}
	progress := domain.ProgressExtracting
	if done >= before.Status.Total {
		progress = domain.ProgressDone
	}
	return &domain.ProgressUpdate{
		Total:     before.Status.Total,
		Done:      done,
		Progress:  progress,
		Completed: progress == domain.ProgressDone && before.Status.Progress != domain.ProgressDone,
	}, nil
}

// SetDistinctValues 重算去重值集合
func (r *FieldRepo) SetDistinctValues(ctx context.Context, fieldID string, values []string) error {
	if values == nil {
		values = []string{}
	}
	if _, err := r.coll.UpdateByID(ctx, fieldID, bson.M{"$set": bson.M{"distinct_values": values}}); err != nil {
		return fmt.Errorf("set distinct values: %w", err)
	}
	return nil
}

// AddChildField 向父字段追加子指针 ($addToSet 幂等)
func (r *FieldRepo) AddChildField(ctx context.Context, parentID, childID string) error {
	res, err := r.coll.UpdateByID(ctx, parentID, bson.M{"$addToSet": bson.M{"options.child_fields": childID}})
	if err != nil {
		return fmt.Errorf("add child field: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrFieldNotFound
	}
	return nil
}

// RemoveChildField 移除父字段上的子指针
func (r *FieldRepo) RemoveChildField(ctx context.Context, parentID, childID string) error {
	res, err := r.coll.UpdateByID(ctx, parentID, bson.M{"$pull": bson.M{"options.child_fields": childID}})
	if err != nil {
		return fmt.Errorf("remove child field: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrFieldNotFound
	}
	return nil
}
