package biz

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"docintel/internal/domain"
	"docintel/internal/infra/de"
)

// GridExecutor 网格聚合执行接口 (data 层实现)
type GridExecutor interface {
	AggregateGrid(ctx context.Context, pipeline mongo.Pipeline) (*domain.GridResult, error)
}

// NotificationEmitter 通知出口
type NotificationEmitter interface {
	Emit(ctx context.Context, n *domain.FilterMatchNotification) error
}

// WorkflowMatcher 文档摄取完成后的检索工作流评估
type WorkflowMatcher struct {
	workflows domain.WorkflowRepository
	bundles   domain.FieldBundleRepository
	fields    domain.FieldRepository
	grid      GridExecutor
	de        ExtractionRunner
	notifier  NotificationEmitter
	log       *zap.Logger
}

// NewWorkflowMatcher 创建匹配器
func NewWorkflowMatcher(
	workflows domain.WorkflowRepository,
	bundles domain.FieldBundleRepository,
	fields domain.FieldRepository,
	grid GridExecutor,
	runner ExtractionRunner,
	notifier NotificationEmitter,
	logger *zap.Logger,
) *WorkflowMatcher {
	return &WorkflowMatcher{
		workflows: workflows,
		bundles:   bundles,
		fields:    fields,
		grid:      grid,
		de:        runner,
		notifier:  notifier,
		log:       logger,
	}
}

// OnDocumentIngested 对新就绪文档逐一评估工作区内全部工作流
// 单个工作流失败不阻断其余工作流
func (m *WorkflowMatcher) OnDocumentIngested(ctx context.Context, doc *domain.Document) error {
	wfs, err := m.workflows.ListByWorkspace(ctx, doc.WorkspaceID)
	if err != nil {
		return err
	}
	for _, wf := range wfs {
		if err := m.evaluate(ctx, doc, wf); err != nil {
			m.log.Warn("workflow evaluation failed",
				zap.String("workflow_id", wf.ID),
				zap.String("doc_id", doc.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (m *WorkflowMatcher) evaluate(ctx context.Context, doc *domain.Document, wf *domain.SearchCriteriaWorkflow) error {
	filtered := wf.FieldFilter != nil
	if filtered {
		matched, err := m.matchFilter(ctx, doc, wf)
		if err != nil {
			return err
		}
		if !matched {
			return nil
		}
	}

	factCount := 0
	if len(wf.SearchCriteria.Criterias) > 0 {
		resp, err := m.de.ApplyTemplate(ctx, &de.ApplyTemplateRequest{
			ExtractionTaskBody: domain.ExtractionTaskBody{WorkspaceIdx: doc.WorkspaceID},
			AdHoc:              true,
			FileFilter:         []string{doc.ID},
			SearchCriteria:     &wf.SearchCriteria,
		})
		if err != nil {
			return err
		}
		for _, ff := range resp.Facts {
			factCount += len(ff.TopicFacts)
		}
	}

	// 无事实且未设过滤器时不打扰用户
	if factCount == 0 && !filtered {
		return nil
	}
	return m.notifier.Emit(ctx, &domain.FilterMatchNotification{
		WorkspaceID:  doc.WorkspaceID,
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		WorkflowID:   wf.ID,
		FactCount:    factCount,
		MatchedAt:    time.Now(),
	})
}

// matchFilter 以单文档为输入执行工作流的网格过滤器, 命中计数大于零即匹配
func (m *WorkflowMatcher) matchFilter(ctx context.Context, doc *domain.Document, wf *domain.SearchCriteriaWorkflow) (bool, error) {
	bundle, err := m.bundles.GetDefault(ctx, doc.WorkspaceID)
	if errors.Is(err, domain.ErrBundleNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	flds, err := m.fields.ListByBundle(ctx, bundle.ID)
	if err != nil {
		return false, err
	}
	plan, err := BuildGridPlan(GridPlanInput{
		WorkspaceID:  doc.WorkspaceID,
		BundleID:     bundle.ID,
		Selector:     wf.FieldFilter,
		BundleFields: flds,
		FileIDs:      []string{doc.ID},
	})
	if err != nil {
		return false, err
	}
	res, err := m.grid.AggregateGrid(ctx, plan.Pipeline)
	if err != nil {
		return false, err
	}
	return res.TotalMatchCount > 0, nil
}
