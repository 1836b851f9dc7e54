package biz

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"docintel/internal/domain"
)

// DependencyEngine 派生字段求值与级联
// 受保护的 top_fact (override/approve) 由 Store 的合并管道保留, 引擎无需感知
type DependencyEngine struct {
	fields domain.FieldRepository
	docs   domain.DocumentRepository
	values domain.FieldValueRepository
	log    *zap.Logger
}

// NewDependencyEngine 创建依赖引擎
func NewDependencyEngine(
	fields domain.FieldRepository,
	docs domain.DocumentRepository,
	values domain.FieldValueRepository,
	logger *zap.Logger,
) *DependencyEngine {
	return &DependencyEngine{fields: fields, docs: docs, values: values, log: logger}
}

// EvaluateField 重算一个派生字段并递归级联其子字段
// fileIDs 为空代表全量重算
func (e *DependencyEngine) EvaluateField(ctx context.Context, field *domain.Field, fileIDs []string) error {
	return e.evaluate(ctx, field, fileIDs, map[string]bool{})
}

func (e *DependencyEngine) evaluate(ctx context.Context, field *domain.Field, fileIDs []string, visited map[string]bool) error {
	if visited[field.ID] {
		// 指针镜像损坏形成环, 到此为止
		e.log.Warn("dependency cycle detected during evaluation, stopping",
			zap.String("field_id", field.ID))
		return nil
	}
	visited[field.ID] = true

	files, err := e.resolveFiles(ctx, field.WorkspaceID, fileIDs)
	if err != nil {
		return err
	}

	var items []domain.FieldValueUpsert
	switch {
	case field.IsFileMetaDerived():
		for _, doc := range files {
			items = append(items, e.item(field, doc.ID, doc.Name, doc.MetaValue(field.Options.MetaParam)))
		}

	case field.DerivedType() == domain.DerivedTypeCast:
		parents := field.ParentFields()
		if len(parents) == 0 {
			return domain.ErrBrokenFieldGraph
		}
		parentVals, err := e.parentValues(ctx, field.WorkspaceID, parents[0])
		if err != nil {
			return err
		}
		for id, doc := range files {
			var value any
			if mapped, ok := ApplyCast(field.Options.CastOptions, parentVals[id]); ok {
				value = mapped
			}
			items = append(items, e.item(field, id, doc.Name, value))
		}

	case field.DerivedType() == domain.DerivedTypeBooleanMultiCast:
		perParent := map[string]map[string]any{}
		for _, pid := range field.ParentFields() {
			vals, err := e.parentValues(ctx, field.WorkspaceID, pid)
			if err != nil {
				return err
			}
			perParent[pid] = vals
		}
		for id, doc := range files {
			// 命中标签按父字段声明顺序收集; cast_options 以父字段 id 为键
			var labels []string
			for _, pid := range field.ParentFields() {
				if !IsTruthy(perParent[pid][id]) {
					continue
				}
				label := field.Options.CastOptions[pid]
				if label == "" {
					label = pid
				}
				labels = append(labels, label)
			}
			var value any
			if len(labels) > 0 {
				value = labels
			} else if mapped, ok := ApplyCast(field.Options.CastOptions, nil); ok {
				value = mapped
			}
			items = append(items, e.item(field, id, doc.Name, value))
		}

	case field.DerivedType() == domain.DerivedTypeFormula:
		if field.Options == nil {
			return domain.ErrBrokenFieldGraph
		}
		prog, err := CompileFormula(field.Options.FormulaOptions)
		if err != nil {
			return err
		}
		perParent := map[string]map[string]any{}
		for _, pid := range field.ParentFields() {
			vals, err := e.parentValues(ctx, field.WorkspaceID, pid)
			if err != nil {
				return err
			}
			perParent[pid] = vals
		}
		for id, doc := range files {
			env := map[string]any{}
			for _, pid := range field.ParentFields() {
				env[pid] = perParent[pid][id]
			}
			out, evalErr := prog.Eval(env)
			if evalErr != nil {
				// 单格求值失败写空值, 不拖垮整批
				e.log.Debug("formula evaluation failed for file",
					zap.String("field_id", field.ID),
					zap.String("file_id", id),
					zap.Error(evalErr))
				out = nil
			}
			items = append(items, e.item(field, id, doc.Name, out))
		}

	default:
		return nil
	}

	if len(items) > 0 {
		if err := e.values.Upsert(ctx, items); err != nil {
			return err
		}
	}
	if err := refreshDistinct(ctx, e.values, e.fields, field.WorkspaceID, field.ID); err != nil {
		e.log.Warn("distinct values refresh failed", zap.String("field_id", field.ID), zap.Error(err))
	}

	for _, childID := range field.ChildFields() {
		child, err := e.fields.GetByID(ctx, childID)
		if errors.Is(err, domain.ErrFieldNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := e.evaluate(ctx, child, fileIDs, visited); err != nil {
			return err
		}
	}
	return nil
}

// OnParentChanged 父字段值变更后重算其子字段 (级联继续向下)
func (e *DependencyEngine) OnParentChanged(ctx context.Context, parent *domain.Field, fileIDs []string) {
	visited := map[string]bool{parent.ID: true}
	for _, childID := range parent.ChildFields() {
		child, err := e.fields.GetByID(ctx, childID)
		if err != nil {
			e.log.Warn("child field lookup failed", zap.String("field_id", childID), zap.Error(err))
			continue
		}
		if err := e.evaluate(ctx, child, fileIDs, visited); err != nil {
			e.log.Warn("child field evaluation failed", zap.String("field_id", childID), zap.Error(err))
		}
	}
}

// OnFieldComplete 字段进度到达 done 后的收尾: 重算去重值并全量级联子字段
func (e *DependencyEngine) OnFieldComplete(ctx context.Context, fieldID string) {
	field, err := e.fields.GetByID(ctx, fieldID)
	if err != nil {
		e.log.Warn("completed field lookup failed", zap.String("field_id", fieldID), zap.Error(err))
		return
	}
	if err := refreshDistinct(ctx, e.values, e.fields, field.WorkspaceID, field.ID); err != nil {
		e.log.Warn("distinct values refresh failed", zap.String("field_id", field.ID), zap.Error(err))
	}
	e.OnParentChanged(ctx, field, nil)
}

func (e *DependencyEngine) item(field *domain.Field, fileID, fileName string, value any) domain.FieldValueUpsert {
	var facts []*domain.Fact
	if value != nil {
		facts = []*domain.Fact{domain.NewValueFact(value)}
	}
	return domain.FieldValueUpsert{
		Key: domain.FieldValueKey{
			WorkspaceID:   field.WorkspaceID,
			FieldBundleID: field.ParentBundleID,
			FieldID:       field.ID,
			FileID:        fileID,
		},
		TopicFacts: facts,
		FileName:   fileName,
	}
}

// parentValues fileID → 父字段当前生效值 (top_fact 优先, 其次首位候选)
func (e *DependencyEngine) parentValues(ctx context.Context, workspaceID, fieldID string) (map[string]any, error) {
	rows, err := e.values.ListByField(ctx, workspaceID, fieldID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		if row.FileID == domain.AllFilesIdx {
			continue
		}
		fact := row.TopFact
		if fact == nil || fact.AnswerDetails == nil {
			fact = row.BestFact()
		}
		out[row.FileID] = fact.RawValue()
	}
	return out, nil
}

func (e *DependencyEngine) resolveFiles(ctx context.Context, workspaceID string, fileIDs []string) (map[string]*domain.Document, error) {
	out := map[string]*domain.Document{}
	if len(fileIDs) > 0 {
		for _, id := range fileIDs {
			doc, err := e.docs.GetByID(ctx, id)
			if errors.Is(err, domain.ErrDocumentNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out[doc.ID] = doc
		}
		return out, nil
	}
	const page = 500
	for offset := 0; ; offset += page {
		docs, err := e.docs.ListByWorkspace(ctx, workspaceID, offset, page)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			out[d.ID] = d
		}
		if len(docs) < page {
			break
		}
	}
	return out, nil
}
