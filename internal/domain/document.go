package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus 文档摄取状态
type DocumentStatus string

const (
	DocStatusReadyForIngestion DocumentStatus = "ready_for_ingestion" // 待摄取
	DocStatusIngestInProgress  DocumentStatus = "ingest_inprogress"   // 摄取中
	DocStatusIngestOK          DocumentStatus = "ingest_ok"           // 摄取成功
	DocStatusIngestFailed      DocumentStatus = "ingest_failed"       // 摄取失败
)

// Document 文档聚合根
type Document struct {
	ID           string         `bson:"_id" json:"id"`
	WorkspaceID  string         `bson:"workspace_id" json:"workspace_id"`
	ParentFolder string         `bson:"parent_folder" json:"parent_folder"`
	Name         string         `bson:"name" json:"name"`
	Status       DocumentStatus `bson:"status" json:"status"`
	Meta         map[string]any `bson:"meta,omitempty" json:"meta,omitempty"`
	NumPages     int            `bson:"num_pages" json:"num_pages"`
	SourceURL    string         `bson:"source_url,omitempty" json:"source_url,omitempty"`
	IsDeleted    bool           `bson:"is_deleted" json:"is_deleted"`
	CreatedOn    time.Time      `bson:"created_on" json:"created_on"`
}

// NewDocument 创建待摄取文档
func NewDocument(workspaceID, parentFolder, name string) *Document {
	return &Document{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		ParentFolder: parentFolder,
		Name:         name,
		Status:       DocStatusReadyForIngestion,
		Meta:         make(map[string]any),
		CreatedOn:    time.Now(),
	}
}

// CanTransitionTo 状态机校验: ready → inprogress → (ok | failed); 重新摄取可回退
func (d *Document) CanTransitionTo(next DocumentStatus) bool {
	switch d.Status {
	case DocStatusReadyForIngestion:
		return next == DocStatusIngestInProgress
	case DocStatusIngestInProgress:
		return next == DocStatusIngestOK || next == DocStatusIngestFailed
	case DocStatusIngestOK, DocStatusIngestFailed:
		// 仅重新摄取允许回到 inprogress
		return next == DocStatusIngestInProgress
	}
	return false
}

// MetaValue 读取文档元数据, 缺失时返回 nil
func (d *Document) MetaValue(key string) any {
	if d.Meta == nil {
		return nil
	}
	return d.Meta[key]
}
