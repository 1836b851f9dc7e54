package service

import (
	"context"

	"docintel/internal/domain"
)

// WorkflowService 检索工作流管理
type WorkflowService struct {
	workspaces domain.WorkspaceRepository
	workflows  domain.WorkflowRepository
}

// NewWorkflowService 创建服务
func NewWorkflowService(workspaces domain.WorkspaceRepository, workflows domain.WorkflowRepository) *WorkflowService {
	return &WorkflowService{workspaces: workspaces, workflows: workflows}
}

// Create 保存工作流
func (s *WorkflowService) Create(ctx context.Context, userID string, wf *domain.SearchCriteriaWorkflow) (*domain.SearchCriteriaWorkflow, error) {
	ws, err := s.workspaces.GetByID(ctx, wf.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.CanEdit(userID) {
		return nil, domain.ErrPermissionDenied
	}
	wf.UserID = userID
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// List 列工作区内全部工作流
func (s *WorkflowService) List(ctx context.Context, userID, workspaceID string) ([]*domain.SearchCriteriaWorkflow, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.CanView(userID) {
		return nil, domain.ErrPermissionDenied
	}
	return s.workflows.ListByWorkspace(ctx, workspaceID)
}

// Delete 删除工作流
func (s *WorkflowService) Delete(ctx context.Context, userID, workflowID string) error {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return err
	}
	ws, err := s.workspaces.GetByID(ctx, wf.WorkspaceID)
	if err != nil {
		return err
	}
	if !ws.CanEdit(userID) {
		return domain.ErrPermissionDenied
	}
	return s.workflows.Delete(ctx, workflowID)
}
