package domain

import (
	"time"

	"github.com/google/uuid"
)

// Progress 字段抽取进度
type Progress string

const (
	ProgressQueued     Progress = "queued"
	ProgressExtracting Progress = "extracting"
	ProgressDone       Progress = "done"
)

// 批大小默认值
const (
	DefaultDocPerPage         = 20   // 文档级字段
	RelationFieldDocPerPage   = 1000 // 关系字段
	RelationBatchSize         = 1000 // batch_idx 粒度
)

// 派生字段类型
const (
	DerivedTypeCast             = "cast"
	DerivedTypeBooleanMultiCast = "boolean_multi_cast"
	DerivedTypeFormula          = "formula"
)

// cast 映射特殊键
const (
	CastKeyNone    = "__none__"    // 父值为空/缺失
	CastKeyDefault = "__default__" // 兜底
)

// SearchCriteria 抽取查询定义
type SearchCriteria struct {
	Criterias               []Criteria `bson:"criterias" json:"criterias"`
	PostProcessors          []string   `bson:"post_processors,omitempty" json:"post_processors,omitempty"`
	AggregatePostProcessors []string   `bson:"aggregate_post_processors,omitempty" json:"aggregate_post_processors,omitempty"`
	DocPerPage              int        `bson:"doc_per_page,omitempty" json:"doc_per_page,omitempty"`
	TopN                    int        `bson:"topn,omitempty" json:"topn,omitempty"`
}

// Criteria 单条查询条件
type Criteria struct {
	Question            string   `bson:"question" json:"question"`
	Templates           []string `bson:"templates,omitempty" json:"templates,omitempty"`
	Headers             []string `bson:"headers,omitempty" json:"headers,omitempty"`
	ExpectedAnswerType  string   `bson:"expected_answer_type,omitempty" json:"expected_answer_type,omitempty"`
	EntityTypes         []string `bson:"entity_types,omitempty" json:"entity_types,omitempty"`
	AdditionalQuestions []string `bson:"additional_questions,omitempty" json:"additional_questions,omitempty"`
}

// FormulaOptions 公式字段配置
type FormulaOptions struct {
	FormulaStr         string            `bson:"formula_str" json:"formula_str"`
	FormulaFieldMap    map[string]string `bson:"formula_field_map" json:"formula_field_map"` // field_id → 符号名
	FormulaOutputCast  map[string]string `bson:"formula_output_cast,omitempty" json:"formula_output_cast,omitempty"`
	FormulaFormatOutput string           `bson:"formula_format_output,omitempty" json:"formula_format_output,omitempty"` // text|integer|boolean|float
}

// FieldOptions 派生字段配置; 父子指针双向镜像由服务层维护
type FieldOptions struct {
	ParentFields       []string          `bson:"parent_fields,omitempty" json:"parent_fields,omitempty"`
	ChildFields        []string          `bson:"child_fields,omitempty" json:"child_fields,omitempty"`
	Type               string            `bson:"type,omitempty" json:"type,omitempty"` // cast|boolean_multi_cast|formula
	CastOptions        map[string]string `bson:"cast_options,omitempty" json:"cast_options,omitempty"`
	FormulaOptions     *FormulaOptions   `bson:"formula_options,omitempty" json:"formula_options,omitempty"`
	MetaParam          string            `bson:"meta_param,omitempty" json:"meta_param,omitempty"`
	DeductFromFileMeta bool              `bson:"deduct_from_file_meta,omitempty" json:"deduct_from_file_meta,omitempty"`
	DeductFromFields   bool              `bson:"deduct_from_fields,omitempty" json:"deduct_from_fields,omitempty"`
}

// FieldStatus 字段进度计数器
type FieldStatus struct {
	Total    int      `bson:"total" json:"total"`
	Done     int      `bson:"done" json:"done"`
	Progress Progress `bson:"progress" json:"progress"`
}

// Field 字段聚合根: 字段集内可复用的抽取查询
type Field struct {
	ID               string         `bson:"_id" json:"id"`
	ParentBundleID   string         `bson:"parent_bundle_id" json:"parent_bundle_id"`
	WorkspaceID      string         `bson:"workspace_id" json:"workspace_id"`
	Name             string         `bson:"name" json:"name"`
	DataType         string         `bson:"data_type" json:"data_type"` // text|number|list|relation|...
	IsEnteredField   bool           `bson:"is_entered_field" json:"is_entered_field"`
	IsDependentField bool           `bson:"is_dependent_field" json:"is_dependent_field"`
	SearchCriteria   SearchCriteria `bson:"search_criteria" json:"search_criteria"`
	Options          *FieldOptions  `bson:"options,omitempty" json:"options,omitempty"`
	Status           FieldStatus    `bson:"status" json:"status"`
	DistinctValues   []string       `bson:"distinct_values,omitempty" json:"distinct_values,omitempty"`
	UserID           string         `bson:"user_id" json:"user_id"`
	Active           bool           `bson:"active" json:"active"`
	CreatedOn        time.Time      `bson:"created_on" json:"created_on"`
}

// NewField 创建字段
func NewField(workspaceID, bundleID, name, userID string) *Field {
	return &Field{
		ID:             uuid.NewString(),
		ParentBundleID: bundleID,
		WorkspaceID:    workspaceID,
		Name:           name,
		UserID:         userID,
		Active:         true,
		Status:         FieldStatus{Progress: ProgressQueued},
		CreatedOn:      time.Now(),
	}
}

// IsRelationField 是否关系字段
func (f *Field) IsRelationField() bool {
	return f.DataType == "relation"
}

// BatchSize 解析批大小: 显式 doc_per_page 优先, 关系字段 1000, 其余 20
func (f *Field) BatchSize() int {
	if f.SearchCriteria.DocPerPage > 0 {
		return f.SearchCriteria.DocPerPage
	}
	if f.IsRelationField() {
		return RelationFieldDocPerPage
	}
	return DefaultDocPerPage
}

// DerivedType 派生类型, 非派生字段返回空串
func (f *Field) DerivedType() string {
	if f.Options == nil {
		return ""
	}
	return f.Options.Type
}

// IsFileMetaDerived 是否由文档元数据派生
func (f *Field) IsFileMetaDerived() bool {
	return f.Options != nil && f.Options.DeductFromFileMeta && f.Options.MetaParam != ""
}

// IsFieldsDerived 是否由其它字段派生 (cast / boolean_multi_cast / formula)
func (f *Field) IsFieldsDerived() bool {
	if f.Options == nil {
		return false
	}
	switch f.Options.Type {
	case DerivedTypeCast, DerivedTypeBooleanMultiCast, DerivedTypeFormula:
		return true
	}
	return false
}

// ParentFields 父字段列表
func (f *Field) ParentFields() []string {
	if f.Options == nil {
		return nil
	}
	return f.Options.ParentFields
}

// ChildFields 子字段列表
func (f *Field) ChildFields() []string {
	if f.Options == nil {
		return nil
	}
	return f.Options.ChildFields
}

// HasChildren 是否存在依赖本字段的子字段
func (f *Field) HasChildren() bool {
	return len(f.ChildFields()) > 0
}
