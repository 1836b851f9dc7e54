package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowAction 命中后的动作
type WorkflowAction struct {
	Type   string         `bson:"type" json:"type"` // email|webhook
	Target string         `bson:"target" json:"target"`
	Params map[string]any `bson:"params,omitempty" json:"params,omitempty"`
}

// SearchCriteriaWorkflow 保存的检索工作流; 新文档摄取完成后逐一评估
type SearchCriteriaWorkflow struct {
	ID             string           `bson:"_id" json:"id"`
	UserID         string           `bson:"user_id" json:"user_id"`
	WorkspaceID    string           `bson:"workspace_id" json:"workspace_id"`
	SearchCriteria SearchCriteria   `bson:"search_criteria" json:"search_criteria"`
	FieldFilter    *GridSelector    `bson:"field_filter,omitempty" json:"field_filter,omitempty"`
	Actions        []WorkflowAction `bson:"actions,omitempty" json:"actions,omitempty"`
	Timestamp      time.Time        `bson:"timestamp" json:"timestamp"`
}

// NewSearchCriteriaWorkflow 创建工作流
func NewSearchCriteriaWorkflow(userID, workspaceID string, sc SearchCriteria) *SearchCriteriaWorkflow {
	return &SearchCriteriaWorkflow{
		ID:             uuid.NewString(),
		UserID:         userID,
		WorkspaceID:    workspaceID,
		SearchCriteria: sc,
		Timestamp:      time.Now(),
	}
}

// FilterMatchNotification 过滤命中通知
type FilterMatchNotification struct {
	WorkspaceID  string    `json:"workspace_id"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	WorkflowID   string    `json:"workflow_id"`
	FactCount    int       `json:"fact_count"`
	MatchedAt    time.Time `json:"matched_at"`
}
