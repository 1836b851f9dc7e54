package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"docintel/internal/biz"
	"docintel/internal/domain"
	"docintel/internal/infra/rabbit"
)

// ExtractionHandler extraction 队列消息处理器
type ExtractionHandler struct {
	task *biz.ExtractionTask
}

// NewExtractionHandler 创建处理器
func NewExtractionHandler(task *biz.ExtractionTask) *ExtractionHandler {
	return &ExtractionHandler{task: task}
}

func (h *ExtractionHandler) TaskName() string { return domain.TaskNameExtraction }

func (h *ExtractionHandler) Handle(ctx context.Context, msg *rabbit.TaskMessage) error {
	var body domain.ExtractionTaskBody
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}
	return h.task.Execute(ctx, msg.UserID, &body)
}

// DocumentMatcher 摄取完成后的工作流匹配入口
type DocumentMatcher interface {
	OnDocumentIngested(ctx context.Context, doc *domain.Document) error
}

// IngestionHandler ingestion 队列消息处理器
// 解析流水线在独立服务, 这里只推进文档状态机并触发工作流匹配
type IngestionHandler struct {
	docs    domain.DocumentRepository
	matcher DocumentMatcher
	log     *zap.Logger
}

// NewIngestionHandler 创建处理器
func NewIngestionHandler(docs domain.DocumentRepository, matcher DocumentMatcher, logger *zap.Logger) *IngestionHandler {
	return &IngestionHandler{docs: docs, matcher: matcher, log: logger}
}

func (h *IngestionHandler) TaskName() string { return domain.TaskNameIngestion }

func (h *IngestionHandler) Handle(ctx context.Context, msg *rabbit.TaskMessage) error {
	var body domain.IngestionTaskBody
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}
	doc, err := h.docs.GetByID(ctx, body.DocID)
	if err != nil {
		return err
	}
	// 状态只单向推进; 重新摄取是唯一例外, 允许从终态回到 inprogress
	if doc.Status != domain.DocStatusReadyForIngestion && !body.ReIngest {
		return fmt.Errorf("document %s in status %s: %w", doc.ID, doc.Status, domain.ErrConflict)
	}
	if !doc.CanTransitionTo(domain.DocStatusIngestInProgress) {
		return fmt.Errorf("document %s in status %s: %w", doc.ID, doc.Status, domain.ErrConflict)
	}
	if err := h.docs.UpdateStatus(ctx, body.DocID, doc.Status, domain.DocStatusIngestInProgress); err != nil {
		return err
	}
	if err := h.docs.UpdateStatus(ctx, body.DocID, domain.DocStatusIngestInProgress, domain.DocStatusIngestOK); err != nil {
		return err
	}
	doc.Status = domain.DocStatusIngestOK
	return h.matcher.OnDocumentIngested(ctx, doc)
}
