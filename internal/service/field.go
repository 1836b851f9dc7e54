package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docintel/internal/biz"
	"docintel/internal/domain"
	"docintel/pkg/apierror"
)

// 字段更新动作
const (
	ActionReplace = "replace"
	ActionAppend  = "append"
	ActionModify  = "modify"
)

// FieldService 字段 CRUD 与调度编排
type FieldService struct {
	workspaces   domain.WorkspaceRepository
	bundles      domain.FieldBundleRepository
	fields       domain.FieldRepository
	values       domain.FieldValueRepository
	dispatcher   *biz.Dispatcher
	usageMetrics bool
	log          *zap.Logger
}

// NewFieldService 创建服务
func NewFieldService(
	workspaces domain.WorkspaceRepository,
	bundles domain.FieldBundleRepository,
	fields domain.FieldRepository,
	values domain.FieldValueRepository,
	dispatcher *biz.Dispatcher,
	usageMetrics bool,
	logger *zap.Logger,
) *FieldService {
	return &FieldService{
		workspaces:   workspaces,
		bundles:      bundles,
		fields:       fields,
		values:       values,
		dispatcher:   dispatcher,
		usageMetrics: usageMetrics,
		log:          logger,
	}
}

// CreateField 创建字段: 校验 → 落库 → 维护镜像与字段集顺序 → 调度抽取
func (s *FieldService) CreateField(ctx context.Context, userID string, field *domain.Field) (*domain.Field, error) {
	if _, err := s.requireEdit(ctx, field.WorkspaceID, userID); err != nil {
		return nil, err
	}
	if field.Name == "" {
		return nil, apierror.NewBadRequest("FIELD_NAME_REQUIRED", "field name is required")
	}
	exists, err := s.fields.ExistsByName(ctx, field.ParentBundleID, field.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrFieldNameConflict
	}
	if err := s.validateDerived(ctx, field); err != nil {
		return nil, err
	}

	if err := s.fields.Create(ctx, field); err != nil {
		return nil, err
	}
	for _, parentID := range field.ParentFields() {
		if err := s.fields.AddChildField(ctx, parentID, field.ID); err != nil {
			return nil, err
		}
	}
	if err := s.bundles.AddFieldID(ctx, field.ParentBundleID, field.ID); err != nil {
		return nil, err
	}
	if s.usageMetrics {
		if err := s.workspaces.IncrementUsage(ctx, field.WorkspaceID, 1, 0); err != nil {
			s.log.Warn("usage metrics update failed", zap.Error(err))
		}
	}

	// 手工录入字段没有任何可调度的抽取
	if !field.IsEnteredField || field.IsFieldsDerived() || field.IsFileMetaDerived() {
		if err := s.dispatcher.DispatchField(ctx, userID, field); err != nil {
			return nil, err
		}
	}
	return field, nil
}

// GetField 读字段 (含进度与去重值)
func (s *FieldService) GetField(ctx context.Context, userID, fieldID string) (*domain.Field, error) {
	field, err := s.fields.GetByID(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireView(ctx, field.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return field, nil
}

// UpdateField 更新字段并按 action 重调度
// replace/append 全量重抽; modify 只重跑后处理 (overwriteCache=false 透传)
func (s *FieldService) UpdateField(ctx context.Context, userID, fieldID, action string, updated *domain.Field) (*domain.Field, error) {
	switch action {
	case ActionReplace, ActionAppend, ActionModify:
	default:
		return nil, apierror.NewBadRequest("INVALID_ACTION",
			fmt.Sprintf("action must be one of replace/append/modify, got %q", action))
	}
	existing, err := s.fields.GetByID(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireEdit(ctx, existing.WorkspaceID, userID); err != nil {
		return nil, err
	}

	updated.ID = existing.ID
	updated.WorkspaceID = existing.WorkspaceID
	updated.ParentBundleID = existing.ParentBundleID
	updated.UserID = existing.UserID
	updated.CreatedOn = existing.CreatedOn
	if updated.Options != nil {
		// 子指针只由镜像维护逻辑写, 不接受外部输入
		updated.Options.ChildFields = existing.ChildFields()
	}
	if err := s.validateDerived(ctx, updated); err != nil {
		return nil, err
	}
	if err := s.reconcileParents(ctx, existing, updated); err != nil {
		return nil, err
	}
	if err := s.fields.Update(ctx, updated); err != nil {
		return nil, err
	}
	if err := s.dispatcher.DispatchField(ctx, userID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteField 删除字段及其全部结果行
// 仍被子字段依赖时拒绝; 调用方需先删子字段
func (s *FieldService) DeleteField(ctx context.Context, userID, fieldID string) error {
	field, err := s.fields.GetByID(ctx, fieldID)
	if err != nil {
		return err
	}
	if _, err := s.requireEdit(ctx, field.WorkspaceID, userID); err != nil {
		return err
	}
	if field.HasChildren() {
		return domain.ErrFieldHasChildren
	}
	for _, parentID := range field.ParentFields() {
		if err := s.fields.RemoveChildField(ctx, parentID, fieldID); err != nil &&
			!errors.Is(err, domain.ErrFieldNotFound) {
			return err
		}
	}
	if err := s.bundles.RemoveFieldID(ctx, field.ParentBundleID, fieldID); err != nil {
		return err
	}
	if err := s.values.DeleteByField(ctx, field.WorkspaceID, fieldID); err != nil {
		return err
	}
	return s.fields.Delete(ctx, fieldID)
}

// ListBundleFields 按字段集规范顺序列出字段
func (s *FieldService) ListBundleFields(ctx context.Context, userID, bundleID string) ([]*domain.Field, error) {
	bundle, err := s.bundles.GetByID(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireView(ctx, bundle.WorkspaceID, userID); err != nil {
		return nil, err
	}
	fields, err := s.fields.ListByBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	ordered := make([]*domain.Field, 0, len(fields))
	for _, id := range bundle.FieldIDs {
		if f, ok := byID[id]; ok {
			ordered = append(ordered, f)
			delete(byID, id)
		}
	}
	for _, f := range fields {
		if _, left := byID[f.ID]; left {
			ordered = append(ordered, f)
		}
	}
	return ordered, nil
}

// ExtractFieldBundle 整集重抽: 对字段集内全部非手工字段重新调度
func (s *FieldService) ExtractFieldBundle(ctx context.Context, userID, workspaceID string, overwriteCache bool) error {
	if _, err := s.requireEdit(ctx, workspaceID, userID); err != nil {
		return err
	}
	bundle, err := s.bundles.GetDefault(ctx, workspaceID)
	if err != nil {
		return err
	}
	fields, err := s.fields.ListByBundle(ctx, bundle.ID)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if field.IsEnteredField && !field.IsFieldsDerived() && !field.IsFileMetaDerived() {
			continue
		}
		if err := s.dispatcher.DispatchField(ctx, userID, field); err != nil {
			return err
		}
	}
	_ = overwriteCache // 抽取服务侧的缓存开关, 原样透传语义保留在 RPC 层
	return nil
}

// validateDerived 派生字段创建期校验; 运行期不再报配置错
func (s *FieldService) validateDerived(ctx context.Context, field *domain.Field) error {
	if field.Options == nil {
		return nil
	}
	switch field.Options.Type {
	case "":
	case domain.DerivedTypeCast:
		if len(field.Options.CastOptions) == 0 {
			return domain.ErrInvalidCastOptions
		}
		if len(field.Options.ParentFields) != 1 {
			return apierror.NewValidation("CAST_PARENT_COUNT", "cast field requires exactly one parent field")
		}
	case domain.DerivedTypeBooleanMultiCast:
		if len(field.Options.ParentFields) == 0 {
			return apierror.NewValidation("BMC_PARENTS_REQUIRED", "boolean_multi_cast requires parent fields")
		}
		if field.DataType != "list" {
			return domain.ErrInvalidDataType
		}
	case domain.DerivedTypeFormula:
		if _, err := biz.CompileFormula(field.Options.FormulaOptions); err != nil {
			return apierror.NewValidation("FORMULA_PARSE", err.Error())
		}
		if len(field.Options.ParentFields) == 0 {
			return apierror.NewValidation("FORMULA_PARENTS_REQUIRED", "formula field requires parent fields")
		}
	default:
		return apierror.NewValidation("UNKNOWN_DERIVED_TYPE",
			fmt.Sprintf("unknown dependent field type %q", field.Options.Type))
	}
	if len(field.Options.ParentFields) > 0 {
		cyclic, err := domain.WouldCreateCycle(ctx, s.fields, field.ID, field.Options.ParentFields)
		if err != nil {
			return err
		}
		if cyclic {
			return domain.ErrDependencyCycle
		}
	}
	return nil
}

// reconcileParents 维护父子指针双向镜像: 差量增删
func (s *FieldService) reconcileParents(ctx context.Context, existing, updated *domain.Field) error {
	old := map[string]bool{}
	for _, id := range existing.ParentFields() {
		old[id] = true
	}
	for _, id := range updated.ParentFields() {
		if old[id] {
			delete(old, id)
			continue
		}
		if err := s.fields.AddChildField(ctx, id, existing.ID); err != nil {
			return err
		}
	}
	for id := range old {
		if err := s.fields.RemoveChildField(ctx, id, existing.ID); err != nil &&
			!errors.Is(err, domain.ErrFieldNotFound) {
			return err
		}
	}
	return nil
}

func (s *FieldService) requireEdit(ctx context.Context, workspaceID, userID string) (*domain.Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.CanEdit(userID) {
		return nil, domain.ErrPermissionDenied
	}
	return ws, nil
}

func (s *FieldService) requireView(ctx context.Context, workspaceID, userID string) (*domain.Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.CanView(userID) {
		return nil, domain.ErrPermissionDenied
	}
	return ws, nil
}
