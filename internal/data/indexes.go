package data

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes 建立唯一索引与热点查询路径的复合索引
func (d *Data) ensureIndexes(ctx context.Context) error {
	docIndexes := []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "is_deleted", Value: 1},
			{Key: "parent_folder", Value: 1},
			{Key: "workspace_id", Value: 1},
			{Key: "name", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "is_deleted", Value: 1},
			{Key: "parent_folder", Value: 1},
			{Key: "workspace_id", Value: 1},
			{Key: "status", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "is_deleted", Value: 1},
			{Key: "parent_folder", Value: 1},
			{Key: "workspace_id", Value: 1},
			{Key: "created_on", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "is_deleted", Value: 1},
			{Key: "parent_folder", Value: 1},
			{Key: "workspace_id", Value: 1},
			{Key: "meta.pubDate", Value: 1},
		}},
	}
	if _, err := d.db.Collection(collDocument).Indexes().CreateMany(ctx, docIndexes); err != nil {
		return err
	}

	// 行主键唯一: (workspace, bundle, field, file[, batch_idx])
	fvIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "workspace_idx", Value: 1},
				{Key: "field_bundle_idx", Value: 1},
				{Key: "field_idx", Value: 1},
				{Key: "file_idx", Value: 1},
				{Key: "batch_idx", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{
			{Key: "workspace_idx", Value: 1},
			{Key: "field_idx", Value: 1},
		}},
	}
	if _, err := d.db.Collection(collFieldValue).Indexes().CreateMany(ctx, fvIndexes); err != nil {
		return err
	}

	fieldIndexes := []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "parent_bundle_id", Value: 1},
			{Key: "name", Value: 1},
		}},
		{Keys: bson.D{{Key: "workspace_id", Value: 1}}},
	}
	if _, err := d.db.Collection(collField).Indexes().CreateMany(ctx, fieldIndexes); err != nil {
		return err
	}

	bundleIndexes := []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "workspace_id", Value: 1},
			{Key: "bundle_type", Value: 1},
		}},
	}
	if _, err := d.db.Collection(collFieldBundle).Indexes().CreateMany(ctx, bundleIndexes); err != nil {
		return err
	}

	wfIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "workspace_id", Value: 1}}},
	}
	if _, err := d.db.Collection(collWorkflow).Indexes().CreateMany(ctx, wfIndexes); err != nil {
		return err
	}

	return nil
}
