package service

import (
	"context"

	"go.uber.org/zap"

	"docintel/internal/biz"
	"docintel/internal/domain"
	"docintel/internal/infra/de"
)

// GridService 网格查询与同步检索
type GridService struct {
	workspaces domain.WorkspaceRepository
	bundles    domain.FieldBundleRepository
	fields     domain.FieldRepository
	grid       biz.GridExecutor
	de         biz.ExtractionRunner
	log        *zap.Logger
}

// NewGridService 创建服务
func NewGridService(
	workspaces domain.WorkspaceRepository,
	bundles domain.FieldBundleRepository,
	fields domain.FieldRepository,
	grid biz.GridExecutor,
	runner biz.ExtractionRunner,
	logger *zap.Logger,
) *GridService {
	return &GridService{
		workspaces: workspaces,
		bundles:    bundles,
		fields:     fields,
		grid:       grid,
		de:         runner,
		log:        logger,
	}
}

// GridData 网格查询 (POST gridData)
func (s *GridService) GridData(ctx context.Context, userID, workspaceID, bundleID string, selector *domain.GridSelector) (*domain.GridResult, error) {
	if err := s.requireView(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	if bundleID == "" {
		bundle, err := s.bundles.GetDefault(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
		bundleID = bundle.ID
	}
	bundleFields, err := s.fields.ListByBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	plan, err := biz.BuildGridPlan(biz.GridPlanInput{
		WorkspaceID:  workspaceID,
		BundleID:     bundleID,
		Selector:     selector,
		BundleFields: bundleFields,
	})
	if err != nil {
		return nil, err
	}
	return s.grid.AggregateGrid(ctx, plan.Pipeline)
}

// AdhocSearch 同步抽取 (POST adhocSearch/workspace/{id}); 不落库不计进度
func (s *GridService) AdhocSearch(ctx context.Context, userID, workspaceID string, criteria *domain.SearchCriteria, fileFilter []string) ([]de.FileFacts, error) {
	if err := s.requireView(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	resp, err := s.de.ApplyTemplate(ctx, &de.ApplyTemplateRequest{
		ExtractionTaskBody: domain.ExtractionTaskBody{WorkspaceIdx: workspaceID},
		AdHoc:              true,
		FileFilter:         fileFilter,
		SearchCriteria:     criteria,
	})
	if err != nil {
		return nil, err
	}
	return resp.Facts, nil
}

func (s *GridService) requireView(ctx context.Context, workspaceID, userID string) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !ws.CanView(userID) {
		return domain.ErrPermissionDenied
	}
	return nil
}
