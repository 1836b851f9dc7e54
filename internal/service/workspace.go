package service

import (
	"context"

	"go.uber.org/zap"

	"docintel/internal/biz"
	"docintel/internal/domain"
)

// WorkspaceService 工作区与文档管理
type WorkspaceService struct {
	workspaces domain.WorkspaceRepository
	bundles    domain.FieldBundleRepository
	docs       domain.DocumentRepository
	tasks      domain.TaskRepository
	publisher  biz.TaskPublisher
	log        *zap.Logger
}

// NewWorkspaceService 创建服务
func NewWorkspaceService(
	workspaces domain.WorkspaceRepository,
	bundles domain.FieldBundleRepository,
	docs domain.DocumentRepository,
	tasks domain.TaskRepository,
	publisher biz.TaskPublisher,
	logger *zap.Logger,
) *WorkspaceService {
	return &WorkspaceService{
		workspaces: workspaces,
		bundles:    bundles,
		docs:       docs,
		tasks:      tasks,
		publisher:  publisher,
		log:        logger,
	}
}

// CreateWorkspace 创建工作区并附带 DEFAULT 字段集
func (s *WorkspaceService) CreateWorkspace(ctx context.Context, userID, name string) (*domain.Workspace, error) {
	ws := domain.NewWorkspace(name, userID)
	if err := s.workspaces.Create(ctx, ws); err != nil {
		return nil, err
	}
	bundle := domain.NewFieldBundle(ws.ID, name, userID, domain.BundleTypeDefault)
	if err := s.bundles.Create(ctx, bundle); err != nil {
		return nil, err
	}
	return ws, nil
}

// GetWorkspace 读工作区
func (s *WorkspaceService) GetWorkspace(ctx context.Context, userID, workspaceID string) (*domain.Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.CanView(userID) {
		return nil, domain.ErrPermissionDenied
	}
	return ws, nil
}

// CreateDocument 登记文档并入队摄取任务
func (s *WorkspaceService) CreateDocument(ctx context.Context, userID, workspaceID, name string, meta map[string]any) (*domain.Document, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.CanEdit(userID) {
		return nil, domain.ErrPermissionDenied
	}
	doc := domain.NewDocument(workspaceID, "root", name)
	if len(meta) > 0 {
		doc.Meta = meta
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	task := domain.NewTask(userID, domain.TaskNameIngestion, &domain.IngestionTaskBody{
		DocID:        doc.ID,
		WorkspaceIdx: workspaceID,
	})
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	if err := s.publisher.PublishTask(ctx, task); err != nil {
		s.log.Warn("ingestion task publish failed, document stays ready_for_ingestion",
			zap.String("doc_id", doc.ID),
			zap.Error(err))
	}
	return doc, nil
}

// ListDocuments 分页列文档
func (s *WorkspaceService) ListDocuments(ctx context.Context, userID, workspaceID string, offset, limit int) ([]*domain.Document, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.CanView(userID) {
		return nil, domain.ErrPermissionDenied
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.docs.ListByWorkspace(ctx, workspaceID, offset, limit)
}
