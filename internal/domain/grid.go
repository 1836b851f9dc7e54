package domain

// 网格查询描述符, 与前端网格组件的请求体一一对应

// SortEntry 排序项
type SortEntry struct {
	ColID string `bson:"colId" json:"colId"`
	Sort  string `bson:"sort" json:"sort"` // asc|desc
}

// ColumnFilter 单列过滤; 复合过滤时 Operator/Condition1/Condition2 生效
type ColumnFilter struct {
	FilterType string   `bson:"filterType,omitempty" json:"filterType,omitempty"` // number|text|set
	Type       string   `bson:"type,omitempty" json:"type,omitempty"`             // equals|lessThan|…
	Filter     any      `bson:"filter,omitempty" json:"filter,omitempty"`
	FilterTo   any      `bson:"filterTo,omitempty" json:"filterTo,omitempty"` // inRange 上界
	Values     []string `bson:"values,omitempty" json:"values,omitempty"`     // set 过滤

	Operator   string        `bson:"operator,omitempty" json:"operator,omitempty"` // and|or
	Condition1 *ColumnFilter `bson:"condition1,omitempty" json:"condition1,omitempty"`
	Condition2 *ColumnFilter `bson:"condition2,omitempty" json:"condition2,omitempty"`
}

// IsComposite 是否复合过滤
func (f *ColumnFilter) IsComposite() bool {
	return f.Operator != "" && f.Condition1 != nil && f.Condition2 != nil
}

// GroupCol 分组列
type GroupCol struct {
	ColID   string `bson:"colId" json:"colId"`
	Type    string `bson:"type,omitempty" json:"type,omitempty"` // number → 自动分桶
	NumBins int    `bson:"numBins,omitempty" json:"numBins,omitempty"`
}

// ValueCol 聚合列
type ValueCol struct {
	ColID    string `bson:"colId" json:"colId"`
	AggFunc  string `bson:"aggFunc" json:"aggFunc"` // sum|min|max|avg|first|last|count
}

// ReviewStatusFilter 审核状态过滤
// FieldID == "file_level" 时, 谓词对字段集中全部非手工字段取合取
type ReviewStatusFilter struct {
	FieldID string `bson:"fieldId" json:"fieldId"`
	Status  string `bson:"status" json:"status"` // approved|not_approved
}

// FileLevelFieldID 文件级审核过滤哨兵值
const FileLevelFieldID = "file_level"

// GridSelector 网格查询请求
type GridSelector struct {
	StartRow           int                     `bson:"startRow" json:"startRow"`
	EndRow             int                     `bson:"endRow" json:"endRow"`
	SortModel          []SortEntry             `bson:"sortModel,omitempty" json:"sortModel,omitempty"`
	FilterModel        map[string]ColumnFilter `bson:"filterModel,omitempty" json:"filterModel,omitempty"`
	RowGroupCols       []GroupCol              `bson:"rowGroupCols,omitempty" json:"rowGroupCols,omitempty"`
	GroupKeys          []string                `bson:"groupKeys,omitempty" json:"groupKeys,omitempty"`
	ValueCols          []ValueCol              `bson:"valueCols,omitempty" json:"valueCols,omitempty"`
	ReviewStatusFilter *ReviewStatusFilter     `bson:"reviewStatusFilter,omitempty" json:"reviewStatusFilter,omitempty"`
}

// GridRow 透视后的单行: 一个文件对应一个对象, 字段值按 field id 展开
type GridRow struct {
	FileID   string           `bson:"_id" json:"file_idx"`
	FileName string           `bson:"file_name" json:"file_name"`
	Fields   map[string]*Fact `bson:"fields" json:"fields"`
}

// GridResult 网格查询结果
type GridResult struct {
	Rows            []GridRow `json:"rows"`
	GroupRows       []map[string]any `json:"group_rows,omitempty"`
	TotalMatchCount int64     `json:"totalMatchCount"`
}
