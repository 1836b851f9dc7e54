package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkspaceRole 工作区角色
type WorkspaceRole string

const (
	RoleOwner        WorkspaceRole = "owner"
	RoleEditor       WorkspaceRole = "editor"
	RoleViewer       WorkspaceRole = "viewer"
)

// WorkspaceStatistics 工作区用量统计
type WorkspaceStatistics struct {
	NumDocuments   int64 `bson:"num_documents" json:"num_documents"`
	NumFields      int64 `bson:"num_fields" json:"num_fields"`
	NumExtractions int64 `bson:"num_extractions" json:"num_extractions"`
}

// Workspace 工作区聚合根
type Workspace struct {
	ID            string                   `bson:"_id" json:"id"`
	Name          string                   `bson:"name" json:"name"`
	OwnerID       string                   `bson:"user_id" json:"user_id"`
	Collaborators map[string]WorkspaceRole `bson:"collaborators,omitempty" json:"collaborators,omitempty"`
	Settings      map[string]string        `bson:"settings,omitempty" json:"settings,omitempty"`
	Statistics    WorkspaceStatistics      `bson:"statistics" json:"statistics"`
	Active        bool                     `bson:"active" json:"active"`
	CreatedOn     time.Time                `bson:"created_on" json:"created_on"`
}

// NewWorkspace 创建工作区
func NewWorkspace(name, ownerID string) *Workspace {
	return &Workspace{
		ID:            uuid.NewString(),
		Name:          name,
		OwnerID:       ownerID,
		Collaborators: make(map[string]WorkspaceRole),
		Active:        true,
		CreatedOn:     time.Now(),
	}
}

// RoleOf 返回指定用户在工作区中的角色
func (w *Workspace) RoleOf(userID string) (WorkspaceRole, bool) {
	if userID == w.OwnerID {
		return RoleOwner, true
	}
	role, ok := w.Collaborators[userID]
	return role, ok
}

// CanEdit 用户是否有编辑权限
func (w *Workspace) CanEdit(userID string) bool {
	role, ok := w.RoleOf(userID)
	return ok && (role == RoleOwner || role == RoleEditor)
}

// CanView 用户是否有读权限
func (w *Workspace) CanView(userID string) bool {
	_, ok := w.RoleOf(userID)
	return ok
}
