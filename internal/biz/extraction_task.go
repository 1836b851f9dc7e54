package biz

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"docintel/internal/domain"
	"docintel/internal/infra/de"
)

// ExtractionRunner 抽取服务 RPC 接口
type ExtractionRunner interface {
	ApplyTemplate(ctx context.Context, req *de.ApplyTemplateRequest) (*de.ApplyTemplateResponse, error)
}

// ExtractionTask extraction 任务处理器: RPC → 结果合并 → 进度推进
type ExtractionTask struct {
	de           ExtractionRunner
	fields       domain.FieldRepository
	workspaces   domain.WorkspaceRepository
	engine       *DependencyEngine
	upserter     *FieldValueUpserter
	progress     *ProgressCounter
	usageMetrics bool
	log          *zap.Logger
}

// NewExtractionTask 创建处理器
func NewExtractionTask(
	runner ExtractionRunner,
	fields domain.FieldRepository,
	workspaces domain.WorkspaceRepository,
	engine *DependencyEngine,
	upserter *FieldValueUpserter,
	progress *ProgressCounter,
	usageMetrics bool,
	logger *zap.Logger,
) *ExtractionTask {
	return &ExtractionTask{
		de:           runner,
		fields:       fields,
		workspaces:   workspaces,
		engine:       engine,
		upserter:     upserter,
		progress:     progress,
		usageMetrics: usageMetrics,
		log:          logger,
	}
}

// Execute 处理一个批次
// 字段在任务入队后被删除时静默跳过; RPC 失败时不推进度, 已有结果保持不变
func (t *ExtractionTask) Execute(ctx context.Context, userID string, body *domain.ExtractionTaskBody) error {
	field, err := t.fields.GetByID(ctx, body.OverrideTopic)
	if errors.Is(err, domain.ErrFieldNotFound) {
		t.log.Info("field deleted before extraction, skipping",
			zap.String("field_id", body.OverrideTopic))
		return nil
	}
	if err != nil {
		return err
	}

	if body.IsDependentField || field.IsFieldsDerived() || field.IsFileMetaDerived() {
		if err := t.engine.EvaluateField(ctx, field, nil); err != nil {
			return err
		}
	} else {
		resp, err := t.de.ApplyTemplate(ctx, &de.ApplyTemplateRequest{ExtractionTaskBody: *body})
		if err != nil {
			return err
		}
		items := collectResults(field, body, resp)
		if len(items) > 0 {
			if err := t.upserter.UpsertResults(ctx, items); err != nil {
				return err
			}
		}
	}

	if _, err := t.progress.BatchDone(ctx, field.ID, body.DocPerPage); err != nil {
		return err
	}

	if t.usageMetrics {
		if err := t.workspaces.IncrementUsage(ctx, field.WorkspaceID, 0, 1); err != nil {
			t.log.Warn("usage metrics update failed",
				zap.String("workspace_id", field.WorkspaceID),
				zap.Error(err))
		}
	}
	return nil
}

// collectResults 把 RPC 响应整形成待合并行
func collectResults(field *domain.Field, body *domain.ExtractionTaskBody, resp *de.ApplyTemplateResponse) []domain.FieldValueUpsert {
	if resp == nil {
		return nil
	}
	if resp.Grid != nil {
		// 关系字段: 网格行聚合到 all_files 行, 按 batch_idx 分片
		facts := make([]*domain.Fact, 0, len(resp.Grid.Grid))
		for _, row := range resp.Grid.Grid {
			facts = append(facts, gridRowFact(row))
		}
		return []domain.FieldValueUpsert{{
			Key: domain.FieldValueKey{
				WorkspaceID:   field.WorkspaceID,
				FieldBundleID: field.ParentBundleID,
				FieldID:       field.ID,
				FileID:        domain.AllFilesIdx,
				BatchIdx:      body.BatchIdx,
			},
			TopicFacts: facts,
			FileName:   domain.AllFilesIdx,
		}}
	}
	items := make([]domain.FieldValueUpsert, 0, len(resp.Facts))
	for _, ff := range resp.Facts {
		key := domain.FieldValueKey{
			WorkspaceID:   field.WorkspaceID,
			FieldBundleID: field.ParentBundleID,
			FieldID:       field.ID,
			FileID:        ff.FileIdx,
		}
		if field.IsRelationField() {
			key.BatchIdx = body.BatchIdx
		}
		items = append(items, domain.FieldValueUpsert{
			Key:        key,
			TopicFacts: ff.TopicFacts,
			FileName:   ff.FileName,
		})
	}
	return items
}

// gridRowFact 网格行转事实; 无 answer 列时整行序列化为答案
func gridRowFact(row map[string]any) *domain.Fact {
	if answer, ok := row["answer"]; ok {
		return domain.NewValueFact(answer)
	}
	b, err := json.Marshal(row)
	if err != nil {
		return domain.NewValueFact(nil)
	}
	return domain.NewValueFact(string(b))
}
