package domain

import (
	"time"

	"github.com/google/uuid"
)

// BundleType 字段集类型
type BundleType string

const (
	BundleTypeDefault BundleType = "DEFAULT"
	BundleTypePublic  BundleType = "PUBLIC"
	BundleTypePrivate BundleType = "PRIVATE"
)

// FieldBundle 字段集: 以网格展示的有序字段集合
// 每个工作区恒有且仅有一个 DEFAULT 字段集
type FieldBundle struct {
	ID          string     `bson:"_id" json:"id"`
	WorkspaceID string     `bson:"workspace_id" json:"workspace_id"`
	BundleName  string     `bson:"bundle_name" json:"bundle_name"`
	BundleType  BundleType `bson:"bundle_type" json:"bundle_type"`
	FieldIDs    []string   `bson:"field_ids" json:"field_ids"` // 展示与迭代的规范顺序
	UserID      string     `bson:"user_id" json:"user_id"`
	Active      bool       `bson:"active" json:"active"`
	CreatedOn   time.Time  `bson:"created_on" json:"created_on"`
}

// NewFieldBundle 创建字段集
func NewFieldBundle(workspaceID, name, userID string, bundleType BundleType) *FieldBundle {
	return &FieldBundle{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		BundleName:  name,
		BundleType:  bundleType,
		FieldIDs:    []string{},
		UserID:      userID,
		Active:      true,
		CreatedOn:   time.Now(),
	}
}

// ContainsField 字段是否属于本字段集
func (b *FieldBundle) ContainsField(fieldID string) bool {
	for _, id := range b.FieldIDs {
		if id == fieldID {
			return true
		}
	}
	return false
}
