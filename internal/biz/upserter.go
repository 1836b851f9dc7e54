package biz

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"docintel/internal/domain"
)

// FieldValueUpserter 抽取结果写入与用户编辑的统一入口
type FieldValueUpserter struct {
	values domain.FieldValueRepository
	fields domain.FieldRepository
	engine *DependencyEngine
	log    *zap.Logger
}

// NewFieldValueUpserter 创建写入器
func NewFieldValueUpserter(
	values domain.FieldValueRepository,
	fields domain.FieldRepository,
	engine *DependencyEngine,
	logger *zap.Logger,
) *FieldValueUpserter {
	return &FieldValueUpserter{values: values, fields: fields, engine: engine, log: logger}
}

// UpsertResults 幂等合并 worker 抽取结果; pinned top_fact 由 Store 合并管道保留
func (u *FieldValueUpserter) UpsertResults(ctx context.Context, items []domain.FieldValueUpsert) error {
	return u.values.Upsert(ctx, items)
}

// Override 用户置顶答案: 写 top_fact 并前插编辑历史, 随后级联子字段
func (u *FieldValueUpserter) Override(ctx context.Context, key domain.FieldValueKey, selected *domain.Fact, username string) error {
	existing, err := u.values.Get(ctx, key)
	if err != nil {
		return err
	}
	pinned := *selected
	pinned.Type = domain.FactTypeOverride
	pinned.IsOverride = true
	entry := &domain.FieldValueHistoryEntry{
		Username:   username,
		EditedTime: time.Now(),
		Previous:   existing.TopFact,
		Modified:   &pinned,
	}
	if err := u.values.SetTopFact(ctx, key, &pinned, entry); err != nil {
		return err
	}
	return u.afterEdit(ctx, key)
}

// DeleteOverride 撤销置顶, 恢复首位候选 (无候选时写空 top_fact)
// 行不存在时幂等返回
func (u *FieldValueUpserter) DeleteOverride(ctx context.Context, key domain.FieldValueKey, username string) error {
	row, err := u.values.Get(ctx, key)
	if errors.Is(err, domain.ErrFieldValueNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	restored := row.BestFact()
	if restored == nil {
		restored = &domain.Fact{}
	}
	entry := &domain.FieldValueHistoryEntry{
		Username:   username,
		EditedTime: time.Now(),
		Previous:   row.TopFact,
		Modified:   restored,
	}
	if err := u.values.SetTopFact(ctx, key, restored, entry); err != nil {
		return err
	}
	return u.afterEdit(ctx, key)
}

// Approve 批量确认/取消确认; 只翻转 top_fact.type, 不改动值本身
func (u *FieldValueUpserter) Approve(ctx context.Context, workspaceID, bundleID, fieldID string, fileIDs []string, approve bool) error {
	return u.values.SetApprove(ctx, workspaceID, bundleID, fieldID, fileIDs, approve)
}

func (u *FieldValueUpserter) afterEdit(ctx context.Context, key domain.FieldValueKey) error {
	if err := refreshDistinct(ctx, u.values, u.fields, key.WorkspaceID, key.FieldID); err != nil {
		u.log.Warn("distinct values refresh failed", zap.String("field_id", key.FieldID), zap.Error(err))
	}
	field, err := u.fields.GetByID(ctx, key.FieldID)
	if err != nil {
		u.log.Warn("field lookup after edit failed", zap.String("field_id", key.FieldID), zap.Error(err))
		return nil
	}
	if field.HasChildren() && u.engine != nil {
		u.engine.OnParentChanged(ctx, field, []string{key.FileID})
	}
	return nil
}

// refreshDistinct 重算字段的去重值集合
func refreshDistinct(ctx context.Context, values domain.FieldValueRepository, fields domain.FieldRepository, workspaceID, fieldID string) error {
	vals, err := values.DistinctRawValues(ctx, workspaceID, fieldID)
	if err != nil {
		return err
	}
	return fields.SetDistinctValues(ctx, fieldID, vals)
}
