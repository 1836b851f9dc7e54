package domain

import (
	"fmt"
	"time"
)

// top_fact.type 取值
const (
	FactTypeOverride = "override" // 用户置顶答案, 重抽取不得覆盖
	FactTypeApprove  = "approve"  // 用户确认答案, 同样受保护
)

// AllFilesIdx 关系字段的聚合行 file_idx
const AllFilesIdx = "all_files"

// AnswerDetails 答案明细; raw_value 保留原始类型 (string/number/bool)
type AnswerDetails struct {
	RawValue       any    `bson:"raw_value" json:"raw_value"`
	FormattedValue string `bson:"formatted_value,omitempty" json:"formatted_value,omitempty"`
}

// Fact 单条候选事实
type Fact struct {
	Answer          string         `bson:"answer" json:"answer"`
	FormattedAnswer string         `bson:"formatted_answer,omitempty" json:"formatted_answer,omitempty"`
	AnswerDetails   *AnswerDetails `bson:"answer_details,omitempty" json:"answer_details,omitempty"`
	Type            string         `bson:"type,omitempty" json:"type,omitempty"` // override|approve|空
	IsOverride      bool           `bson:"is_override,omitempty" json:"is_override,omitempty"`
	Page            int            `bson:"page,omitempty" json:"page,omitempty"`
	MatchText       string         `bson:"match_text,omitempty" json:"match_text,omitempty"`
	Headers         []string       `bson:"headers,omitempty" json:"headers,omitempty"`
	ScorePercent    float64        `bson:"score_percent,omitempty" json:"score_percent,omitempty"`
}

// IsPinned top_fact 是否受用户保护 (override 或 approve)
func (f *Fact) IsPinned() bool {
	if f == nil {
		return false
	}
	return f.Type == FactTypeOverride || f.Type == FactTypeApprove
}

// RawValue 读取 raw_value, 缺失时返回 nil
func (f *Fact) RawValue() any {
	if f == nil || f.AnswerDetails == nil {
		return nil
	}
	return f.AnswerDetails.RawValue
}

// NewValueFact 由派生值构造事实
func NewValueFact(value any) *Fact {
	answer := ""
	if value != nil {
		answer = fmt.Sprintf("%v", value)
	}
	return &Fact{
		Answer:          answer,
		FormattedAnswer: answer,
		AnswerDetails:   &AnswerDetails{RawValue: value, FormattedValue: answer},
	}
}

// FieldValueHistoryEntry 用户编辑历史
type FieldValueHistoryEntry struct {
	Username   string    `bson:"username" json:"username"`
	EditedTime time.Time `bson:"edited_time" json:"edited_time"`
	Previous   *Fact     `bson:"previous,omitempty" json:"previous,omitempty"`
	Modified   *Fact     `bson:"modified,omitempty" json:"modified,omitempty"`
}

// FieldValueKey 行主键: (workspace, bundle, field, file[, batch_idx])
// batch_idx 仅关系字段参与主键
type FieldValueKey struct {
	WorkspaceID   string `bson:"workspace_idx" json:"workspace_idx"`
	FieldBundleID string `bson:"field_bundle_idx" json:"field_bundle_idx"`
	FieldID       string `bson:"field_idx" json:"field_idx"`
	FileID        string `bson:"file_idx" json:"file_idx"`
	BatchIdx      *int   `bson:"batch_idx,omitempty" json:"batch_idx,omitempty"`
}

// FieldValue 抽取结果行
type FieldValue struct {
	ID           string                   `bson:"_id" json:"id"`
	FieldValueKey `bson:",inline"`
	TopFact      *Fact                    `bson:"top_fact,omitempty" json:"top_fact,omitempty"`
	TopicFacts   []*Fact                  `bson:"topic_facts" json:"topic_facts"`
	FileName     string                   `bson:"file_name" json:"file_name"`
	LastModified time.Time                `bson:"last_modified" json:"last_modified"`
	History      []FieldValueHistoryEntry `bson:"field_value_history,omitempty" json:"field_value_history,omitempty"`
}

// BestFact 候选事实首位, 无候选时返回 nil
func (v *FieldValue) BestFact() *Fact {
	if len(v.TopicFacts) == 0 {
		return nil
	}
	return v.TopicFacts[0]
}
