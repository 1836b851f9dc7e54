package data

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"docintel/internal/conf"
)

// 集合名
const (
	collWorkspace   = "workspace"
	collDocument    = "document"
	collFieldBundle = "field_bundle"
	collField       = "field"
	collFieldValue  = "field_value"
	collTask        = "task"
	collWorkflow    = "search_criteria_workflow"
)

// Data 数据访问根: 持有 Mongo 客户端与各仓储
type Data struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

// NewData 连接 Mongo 并初始化索引
func NewData(ctx context.Context, cfg conf.MongoConfig, logger *zap.Logger) (*Data, func(), error) {
	opts := options.Client().
		ApplyURI(cfg.Host).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	d := &Data{
		client: client,
		db:     client.Database(cfg.Database),
		log:    logger,
	}

	if err := d.ensureIndexes(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure indexes: %w", err)
	}

	cleanup := func() {
		logger.Info("closing mongo connection")
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("mongo disconnect failed", zap.Error(err))
		}
	}
	return d, cleanup, nil
}

// Database 返回底层数据库句柄 (集成测试用)
func (d *Data) Database() *mongo.Database {
	return d.db
}

// Ping 探活
func (d *Data) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

// NewWorkspaceRepo 工作区仓储
func (d *Data) NewWorkspaceRepo() *WorkspaceRepo {
	return &WorkspaceRepo{coll: d.db.Collection(collWorkspace)}
}

// NewDocumentRepo 文档仓储
func (d *Data) NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{coll: d.db.Collection(collDocument)}
}

// NewFieldBundleRepo 字段集仓储
func (d *Data) NewFieldBundleRepo() *FieldBundleRepo {
	return &FieldBundleRepo{coll: d.db.Collection(collFieldBundle)}
}

// NewFieldRepo 字段仓储
func (d *Data) NewFieldRepo() *FieldRepo {
	return &FieldRepo{coll: d.db.Collection(collField)}
}

// NewFieldValueRepo 抽取结果仓储
func (d *Data) NewFieldValueRepo() *FieldValueRepo {
	return &FieldValueRepo{coll: d.db.Collection(collFieldValue)}
}

// NewTaskRepo 任务仓储
func (d *Data) NewTaskRepo() *TaskRepo {
	return &TaskRepo{coll: d.db.Collection(collTask)}
}

// NewWorkflowRepo 检索工作流仓储
func (d *Data) NewWorkflowRepo() *WorkflowRepo {
	return &WorkflowRepo{coll: d.db.Collection(collWorkflow)}
}
