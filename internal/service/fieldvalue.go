package service

import (
	"context"

	"go.uber.org/zap"

	"docintel/internal/biz"
	"docintel/internal/domain"
)

// FieldValueService 结果行的用户编辑入口
type FieldValueService struct {
	workspaces domain.WorkspaceRepository
	values     domain.FieldValueRepository
	upserter   *biz.FieldValueUpserter
	log        *zap.Logger
}

// NewFieldValueService 创建服务
func NewFieldValueService(
	workspaces domain.WorkspaceRepository,
	values domain.FieldValueRepository,
	upserter *biz.FieldValueUpserter,
	logger *zap.Logger,
) *FieldValueService {
	return &FieldValueService{workspaces: workspaces, values: values, upserter: upserter, log: logger}
}

// Override 置顶答案 (POST fieldValue)
func (s *FieldValueService) Override(ctx context.Context, userID string, key domain.FieldValueKey, selected *domain.Fact) (*domain.FieldValue, error) {
	if err := s.requireEdit(ctx, key.WorkspaceID, userID); err != nil {
		return nil, err
	}
	if err := s.upserter.Override(ctx, key, selected, userID); err != nil {
		return nil, err
	}
	return s.values.Get(ctx, key)
}

// DeleteOverride 撤销置顶; 目标行不存在时幂等成功
func (s *FieldValueService) DeleteOverride(ctx context.Context, userID string, key domain.FieldValueKey) error {
	if err := s.requireEdit(ctx, key.WorkspaceID, userID); err != nil {
		return err
	}
	return s.upserter.DeleteOverride(ctx, key, userID)
}

// Approve 批量确认/取消确认
func (s *FieldValueService) Approve(ctx context.Context, userID, workspaceID, bundleID, fieldID string, fileIDs []string, approve bool) error {
	if err := s.requireEdit(ctx, workspaceID, userID); err != nil {
		return err
	}
	return s.upserter.Approve(ctx, workspaceID, bundleID, fieldID, fileIDs, approve)
}

// Get 读单行
func (s *FieldValueService) Get(ctx context.Context, userID string, key domain.FieldValueKey) (*domain.FieldValue, error) {
	if err := s.requireView(ctx, key.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return s.values.Get(ctx, key)
}

// ListByFile 读单文件在字段集内的全部行
func (s *FieldValueService) ListByFile(ctx context.Context, userID, workspaceID, bundleID, fileID string) ([]*domain.FieldValue, error) {
	if err := s.requireView(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.values.ListByFile(ctx, workspaceID, bundleID, fileID)
}

func (s *FieldValueService) requireEdit(ctx context.Context, workspaceID, userID string) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !ws.CanEdit(userID) {
		return domain.ErrPermissionDenied
	}
	return nil
}

func (s *FieldValueService) requireView(ctx context.Context, workspaceID, userID string) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !ws.CanView(userID) {
		return domain.ErrPermissionDenied
	}
	return nil
}
