package domain

import (
	"context"
)

// ProgressUpdate batch_done 的原子更新结果
type ProgressUpdate struct {
	Total    int
	Done     int
	Progress Progress
	// Completed 本次调用触发了 extracting→done 迁移
	Completed bool
}

// FieldValueUpsert 幂等合并的单行输入
type FieldValueUpsert struct {
	Key        FieldValueKey
	TopicFacts []*Fact
	FileName   string
}

// WorkspaceRepository 工作区仓储接口
type WorkspaceRepository interface {
	// Create 创建工作区
	Create(ctx context.Context, ws *Workspace) error

	// GetByID 根据ID获取工作区
	GetByID(ctx context.Context, id string) (*Workspace, error)

	// IncrementUsage 以 $inc 语义累加用量计数
	IncrementUsage(ctx context.Context, workspaceID string, fields, extractions int64) error
}

// DocumentRepository 文档仓储接口
type DocumentRepository interface {
	// Create 创建文档
	Create(ctx context.Context, doc *Document) error

	// GetByID 根据ID获取文档
	GetByID(ctx context.Context, id string) (*Document, error)

	// CountByWorkspace 统计工作区中未删除文档数
	CountByWorkspace(ctx context.Context, workspaceID string) (int64, error)

	// ListByWorkspace 按文件名升序分页列出未删除文档
	ListByWorkspace(ctx context.Context, workspaceID string, offset, limit int) ([]*Document, error)

	// UpdateStatus 条件更新状态, 当前状态不等于 from 时返回 ErrConflict
	UpdateStatus(ctx context.Context, id string, from, to DocumentStatus) error

	// SetDeleted 软删除
	SetDeleted(ctx context.Context, id string) error
}

// FieldBundleRepository 字段集仓储接口
type FieldBundleRepository interface {
	// Create 创建字段集
	Create(ctx context.Context, bundle *FieldBundle) error

	// GetByID 根据ID获取字段集
	GetByID(ctx context.Context, id string) (*FieldBundle, error)

	// GetDefault 获取工作区的 DEFAULT 字段集
	GetDefault(ctx context.Context, workspaceID string) (*FieldBundle, error)

	// AddFieldID 将字段追加到规范顺序尾部
	AddFieldID(ctx context.Context, bundleID, fieldID string) error

	// RemoveFieldID 从规范顺序中移除字段
	RemoveFieldID(ctx context.Context, bundleID, fieldID string) error
}

// FieldRepository 字段仓储接口
type FieldRepository interface {
	// Create 创建字段
	Create(ctx context.Context, field *Field) error

	// GetByID 根据ID获取字段
	GetByID(ctx context.Context, id string) (*Field, error)

	// GetMany 批量获取
	GetMany(ctx context.Context, ids []string) ([]*Field, error)

	// Update 整体更新
	Update(ctx context.Context, field *Field) error

	// Delete 删除字段
	Delete(ctx context.Context, id string) error

	// ListByBundle 列出字段集全部字段
	ListByBundle(ctx context.Context, bundleID string) ([]*Field, error)

	// ExistsByName 同一字段集内是否已有同名字段
	ExistsByName(ctx context.Context, bundleID, name string) (bool, error)

	// MarkQueued 置 {total, done:0, progress:queued}
	MarkQueued(ctx context.Context, fieldID string, total int) error

	// BatchDone 原子推进计数: done ← min(done+docPerPage, total)
	BatchDone(ctx context.Context, fieldID string, docPerPage int) (*ProgressUpdate, error)

	// SetDistinctValues 重算去重值集合
	SetDistinctValues(ctx context.Context, fieldID string, values []string) error

	// AddChildField 维护镜像关系: 向父字段追加子指针
	AddChildField(ctx context.Context, parentID, childID string) error

	// RemoveChildField 移除父字段上的子指针
	RemoveChildField(ctx context.Context, parentID, childID string) error
}

// FieldValueRepository 抽取结果仓储接口
type FieldValueRepository interface {
	// Upsert 幂等合并批量行; pinned top_fact 不被覆盖
	Upsert(ctx context.Context, items []FieldValueUpsert) error

	// EnsureRow $setOnInsert 语义的占位行 (关系字段 all_files)
	EnsureRow(ctx context.Context, key FieldValueKey, fileName string) error

	// Get 按主键取行
	Get(ctx context.Context, key FieldValueKey) (*FieldValue, error)

	// SetTopFact 覆写 top_fact 并前插一条编辑历史
	SetTopFact(ctx context.Context, key FieldValueKey, fact *Fact, entry *FieldValueHistoryEntry) error

	// ListByField 列出字段在工作区内的全部行
	ListByField(ctx context.Context, workspaceID, fieldID string) ([]*FieldValue, error)

	// ListByFile 列出单个文件上的全部行 (限定字段集)
	ListByFile(ctx context.Context, workspaceID, bundleID, fileID string) ([]*FieldValue, error)

	// DistinctRawValues top_fact.answer_details.raw_value 的去重集合
	DistinctRawValues(ctx context.Context, workspaceID, fieldID string) ([]string, error)

	// DeleteByField 删除字段的全部行 (字段删除时)
	DeleteByField(ctx context.Context, workspaceID, fieldID string) error

	// SetApprove 按文件集合批量置/清 top_fact.type = approve
	SetApprove(ctx context.Context, workspaceID, bundleID, fieldID string, fileIDs []string, approve bool) error
}

// TaskRepository 任务仓储接口
type TaskRepository interface {
	// Create 创建任务
	Create(ctx context.Context, task *Task) error

	// GetByID 根据ID获取任务
	GetByID(ctx context.Context, id string) (*Task, error)

	// UpdateStatus 写任务状态与明细
	UpdateStatus(ctx context.Context, id string, status TaskStatus, detail string) error
}

// WorkflowRepository 检索工作流仓储接口
type WorkflowRepository interface {
	// Create 创建工作流
	Create(ctx context.Context, wf *SearchCriteriaWorkflow) error

	// GetByID 根据ID获取工作流
	GetByID(ctx context.Context, id string) (*SearchCriteriaWorkflow, error)

	// ListByWorkspace 列出工作区全部工作流
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*SearchCriteriaWorkflow, error)

	// Delete 删除工作流
	Delete(ctx context.Context, id string) error
}
