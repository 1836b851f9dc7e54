package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// 任务类型
const (
	TaskNameExtraction     = "extraction"
	TaskNameIngestion      = "ingestion"
	TaskNameHTMLCrawling   = "html_crawling"
	TaskNameActiveLearning = "active_learning"
	TaskNameYOLO           = "yolo"
)

// Task 持久化任务; Dispatcher 创建, Worker 消费并写终态
type Task struct {
	ID        string     `bson:"_id" json:"_id"`
	UserID    string     `bson:"user_id" json:"user_id"`
	TaskName  string     `bson:"task_name" json:"task_name"`
	Body      any        `bson:"body" json:"body"`
	Status    TaskStatus `bson:"status" json:"status"`
	Detail    string     `bson:"detail,omitempty" json:"detail,omitempty"`
	Timestamp time.Time  `bson:"timestamp" json:"timestamp"`
}

// NewTask 创建队列任务
func NewTask(userID, taskName string, body any) *Task {
	return &Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		TaskName:  taskName,
		Body:      body,
		Status:    TaskStatusQueued,
		Timestamp: time.Now(),
	}
}

// ExtractionTaskBody extraction 任务消息体
type ExtractionTaskBody struct {
	WorkspaceIdx     string        `bson:"workspace_idx" json:"workspace_idx"`
	FieldBundleIdx   string        `bson:"field_bundle_idx" json:"field_bundle_idx"`
	OverrideTopic    string        `bson:"override_topic" json:"override_topic"` // field id
	DocPerPage       int           `bson:"doc_per_page" json:"doc_per_page"`
	Offset           int           `bson:"offset" json:"offset"`
	BatchIdx         *int          `bson:"batch_idx,omitempty" json:"batch_idx,omitempty"`
	IsDependentField bool          `bson:"is_dependent_field,omitempty" json:"is_dependent_field,omitempty"`
	DocMetaParam     string        `bson:"doc_meta_param,omitempty" json:"doc_meta_param,omitempty"`
	FieldOptions     *FieldOptions `bson:"field_options,omitempty" json:"field_options,omitempty"`
}

// IngestionTaskBody ingestion 任务消息体
type IngestionTaskBody struct {
	DocID        string         `bson:"doc_id" json:"doc_id"`
	WorkspaceIdx string         `bson:"workspace_idx" json:"workspace_idx"`
	ApplyOCR     bool           `bson:"apply_ocr,omitempty" json:"apply_ocr,omitempty"`
	ReIngest     bool           `bson:"re_ingest,omitempty" json:"re_ingest,omitempty"`
	NotifyAction string         `bson:"notify_action,omitempty" json:"notify_action,omitempty"`
	UserObj      map[string]any `bson:"user_obj,omitempty" json:"user_obj,omitempty"`
}
