package biz

import (
	"context"

	"go.uber.org/zap"

	"docintel/internal/domain"
	"docintel/pkg/monitoring"
)

// TaskPublisher 队列发布接口
type TaskPublisher interface {
	PublishTask(ctx context.Context, task *domain.Task) error
}

// InlineRunner 发布失败时的同进程兜底执行
type InlineRunner interface {
	Execute(ctx context.Context, userID string, body *domain.ExtractionTaskBody) error
}

// Dispatcher 抽取任务调度器: 批次规划 → 任务落库 → 入队
type Dispatcher struct {
	publisher TaskPublisher
	tasks     domain.TaskRepository
	docs      domain.DocumentRepository
	values    domain.FieldValueRepository
	progress  *ProgressCounter
	inline    InlineRunner
	log       *zap.Logger
}

// NewDispatcher 创建调度器
func NewDispatcher(
	publisher TaskPublisher,
	tasks domain.TaskRepository,
	docs domain.DocumentRepository,
	values domain.FieldValueRepository,
	progress *ProgressCounter,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		tasks:     tasks,
		docs:      docs,
		values:    values,
		progress:  progress,
		log:       logger,
	}
}

// SetInlineRunner 注册兜底执行器 (组合根装配, 打破构造环)
func (d *Dispatcher) SetInlineRunner(r InlineRunner) {
	d.inline = r
}

// DispatchField 为字段规划批次并按 offset 升序入队
// 空工作区也至少入队一个批次, 保证进度机照常走到 done
func (d *Dispatcher) DispatchField(ctx context.Context, userID string, field *domain.Field) error {
	total, err := d.docs.CountByWorkspace(ctx, field.WorkspaceID)
	if err != nil {
		return err
	}
	n := int(total)

	if err := d.progress.MarkQueued(ctx, field.ID, n); err != nil {
		return err
	}

	if field.IsFieldsDerived() || field.IsFileMetaDerived() {
		return d.dispatchDependent(ctx, userID, field, n)
	}

	batch := field.BatchSize()
	for offset := 0; offset == 0 || offset < n; offset += batch {
		body := &domain.ExtractionTaskBody{
			WorkspaceIdx:   field.WorkspaceID,
			FieldBundleIdx: field.ParentBundleID,
			OverrideTopic:  field.ID,
			DocPerPage:     batch,
			Offset:         offset,
		}
		if field.IsRelationField() {
			idx := offset / domain.RelationBatchSize
			body.BatchIdx = &idx
			// 聚合行先占位, worker 的结果往里合并
			key := domain.FieldValueKey{
				WorkspaceID:   field.WorkspaceID,
				FieldBundleID: field.ParentBundleID,
				FieldID:       field.ID,
				FileID:        domain.AllFilesIdx,
				BatchIdx:      &idx,
			}
			if err := d.values.EnsureRow(ctx, key, domain.AllFilesIdx); err != nil {
				return err
			}
		}
		if err := d.enqueue(ctx, userID, body); err != nil {
			return err
		}
	}
	return nil
}

// dispatchDependent 派生字段单任务全量求值, doc_per_page 取全量使进度一步到位
func (d *Dispatcher) dispatchDependent(ctx context.Context, userID string, field *domain.Field, total int) error {
	body := &domain.ExtractionTaskBody{
		WorkspaceIdx:     field.WorkspaceID,
		FieldBundleIdx:   field.ParentBundleID,
		OverrideTopic:    field.ID,
		DocPerPage:       total,
		Offset:           0,
		IsDependentField: true,
		FieldOptions:     field.Options,
	}
	if field.IsFileMetaDerived() {
		body.DocMetaParam = field.Options.MetaParam
	}
	return d.enqueue(ctx, userID, body)
}

func (d *Dispatcher) enqueue(ctx context.Context, userID string, body *domain.ExtractionTaskBody) error {
	task := domain.NewTask(userID, domain.TaskNameExtraction, body)
	if err := d.tasks.Create(ctx, task); err != nil {
		return err
	}
	err := d.publisher.PublishTask(ctx, task)
	if err == nil {
		return nil
	}
	d.log.Warn("publish failed, running task inline",
		zap.String("task_id", task.ID),
		zap.Error(err))
	if d.inline == nil {
		return err
	}
	monitoring.InlineFallbacks.Inc()
	_ = d.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusRunning, "")
	if execErr := d.inline.Execute(ctx, userID, body); execErr != nil {
		_ = d.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusFailed, execErr.Error())
		return execErr
	}
	return d.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusCompleted, "")
}
