package server

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"docintel/internal/domain"
	"docintel/pkg/apierror"
)

// bindStrict 严格绑定: 未知键直接拒绝, 动态字典不进核心
func bindStrict(c *gin.Context, v any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierror.NewBadRequest("MALFORMED_PAYLOAD", err.Error())
	}
	return nil
}

// ---- field ----

type createFieldRequest struct {
	WorkspaceID    string                `json:"workspace_id"`
	FieldBundleID  string                `json:"field_bundle_id"`
	Name           string                `json:"name"`
	DataType       string                `json:"data_type"`
	IsEnteredField bool                  `json:"is_entered_field"`
	SearchCriteria domain.SearchCriteria `json:"search_criteria"`
	Options        *domain.FieldOptions  `json:"options"`
}

func (r *createFieldRequest) toField(userID string) *domain.Field {
	field := domain.NewField(r.WorkspaceID, r.FieldBundleID, r.Name, userID)
	field.DataType = r.DataType
	field.IsEnteredField = r.IsEnteredField
	field.SearchCriteria = r.SearchCriteria
	field.Options = r.Options
	field.IsDependentField = field.IsFieldsDerived() || field.IsFileMetaDerived()
	return field
}

func (s *HTTPServer) createField(c *gin.Context) {
	var req createFieldRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	field, err := s.svc.Field.CreateField(c.Request.Context(), userID(c), req.toField(userID(c)))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, field)
}

func (s *HTTPServer) getField(c *gin.Context) {
	field, err := s.svc.Field.GetField(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, field)
}

func (s *HTTPServer) updateField(c *gin.Context) {
	action := c.DefaultQuery("action", "replace")
	var req createFieldRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	field, err := s.svc.Field.UpdateField(c.Request.Context(), userID(c), c.Param("id"), action, req.toField(userID(c)))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, field)
}

func (s *HTTPServer) deleteField(c *gin.Context) {
	if err := s.svc.Field.DeleteField(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"status": "ok"})
}

func (s *HTTPServer) listBundleFields(c *gin.Context) {
	fields, err := s.svc.Field.ListBundleFields(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"fields": fields})
}

// ---- fieldValue ----

type overrideRequest struct {
	WorkspaceIdx   string      `json:"workspace_idx"`
	FieldBundleIdx string      `json:"field_bundle_idx"`
	FieldIdx       string      `json:"field_idx"`
	FileIdx        string      `json:"file_idx"`
	BatchIdx       *int        `json:"batch_idx"`
	SelectedRow    domain.Fact `json:"selected_row"`
}

func (r *overrideRequest) key() domain.FieldValueKey {
	return domain.FieldValueKey{
		WorkspaceID:   r.WorkspaceIdx,
		FieldBundleID: r.FieldBundleIdx,
		FieldID:       r.FieldIdx,
		FileID:        r.FileIdx,
		BatchIdx:      r.BatchIdx,
	}
}

func (s *HTTPServer) overrideFieldValue(c *gin.Context) {
	var req overrideRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	row, err := s.svc.FieldValue.Override(c.Request.Context(), userID(c), req.key(), &req.SelectedRow)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, row)
}

func queryKey(c *gin.Context) domain.FieldValueKey {
	key := domain.FieldValueKey{
		WorkspaceID:   c.Query("workspaceId"),
		FieldBundleID: c.Query("fieldBundleId"),
		FieldID:       c.Query("fieldId"),
		FileID:        c.Query("docId"),
	}
	if raw := c.Query("batchIdx"); raw != "" {
		if idx, err := strconv.Atoi(raw); err == nil {
			key.BatchIdx = &idx
		}
	}
	return key
}

func (s *HTTPServer) deleteFieldValue(c *gin.Context) {
	if err := s.svc.FieldValue.DeleteOverride(c.Request.Context(), userID(c), queryKey(c)); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"status": "ok"})
}

func (s *HTTPServer) getFieldValue(c *gin.Context) {
	row, err := s.svc.FieldValue.Get(c.Request.Context(), userID(c), queryKey(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, row)
}

type approveRequest struct {
	WorkspaceIdx   string   `json:"workspace_idx"`
	FieldBundleIdx string   `json:"field_bundle_idx"`
	FieldIdx       string   `json:"field_idx"`
	FileIdxs       []string `json:"file_idxs"`
	Approve        bool     `json:"approve"`
}

func (s *HTTPServer) approveFieldValue(c *gin.Context) {
	var req approveRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	err := s.svc.FieldValue.Approve(c.Request.Context(), userID(c),
		req.WorkspaceIdx, req.FieldBundleIdx, req.FieldIdx, req.FileIdxs, req.Approve)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"status": "ok"})
}

// ---- extraction / grid ----

func (s *HTTPServer) extractFieldBundle(c *gin.Context) {
	overwrite := c.DefaultQuery("overwriteCache", "true") == "true"
	err := s.svc.Field.ExtractFieldBundle(c.Request.Context(), userID(c), c.Param("id"), overwrite)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"status": "ok"})
}

type adhocSearchRequest struct {
	SearchCriteria domain.SearchCriteria `json:"search_criteria"`
	FileFilter     []string              `json:"file_filter"`
}

func (s *HTTPServer) adhocSearch(c *gin.Context) {
	var req adhocSearchRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	facts, err := s.svc.Grid.AdhocSearch(c.Request.Context(), userID(c), c.Param("id"), &req.SearchCriteria, req.FileFilter)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"facts": facts})
}

type gridDataRequest struct {
	WorkspaceIdx   string              `json:"workspace_idx"`
	FieldBundleIdx string              `json:"field_bundle_idx"`
	GridQuery      domain.GridSelector `json:"grid_query"`
}

func (s *HTTPServer) gridData(c *gin.Context) {
	var req gridDataRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	result, err := s.svc.Grid.GridData(c.Request.Context(), userID(c), req.WorkspaceIdx, req.FieldBundleIdx, &req.GridQuery)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, result)
}

// ---- task ----

func (s *HTTPServer) getTask(c *gin.Context) {
	task, err := s.svc.Task.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, task)
}

// ---- workspace / document ----

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

func (s *HTTPServer) createWorkspace(c *gin.Context) {
	var req createWorkspaceRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	ws, err := s.svc.Workspace.CreateWorkspace(c.Request.Context(), userID(c), req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, ws)
}

func (s *HTTPServer) getWorkspace(c *gin.Context) {
	ws, err := s.svc.Workspace.GetWorkspace(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, ws)
}

type createDocumentRequest struct {
	Name string         `json:"name"`
	Meta map[string]any `json:"meta"`
}

func (s *HTTPServer) createDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	doc, err := s.svc.Workspace.CreateDocument(c.Request.Context(), userID(c), c.Param("id"), req.Name, req.Meta)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, doc)
}

func (s *HTTPServer) listDocuments(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	docs, err := s.svc.Workspace.ListDocuments(c.Request.Context(), userID(c), c.Param("id"), offset, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"documents": docs})
}

// ---- workflow ----

type createWorkflowRequest struct {
	WorkspaceID    string                  `json:"workspace_id"`
	SearchCriteria domain.SearchCriteria   `json:"search_criteria"`
	FieldFilter    *domain.GridSelector    `json:"field_filter"`
	Actions        []domain.WorkflowAction `json:"actions"`
}

func (s *HTTPServer) createWorkflow(c *gin.Context) {
	var req createWorkflowRequest
	if err := bindStrict(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	wf := domain.NewSearchCriteriaWorkflow(userID(c), req.WorkspaceID, req.SearchCriteria)
	wf.FieldFilter = req.FieldFilter
	wf.Actions = req.Actions
	created, err := s.svc.Workflow.Create(c.Request.Context(), userID(c), wf)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, created)
}

func (s *HTTPServer) listWorkflows(c *gin.Context) {
	wfs, err := s.svc.Workflow.List(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"workflows": wfs})
}

func (s *HTTPServer) deleteWorkflow(c *gin.Context) {
	if err := s.svc.Workflow.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, gin.H{"status": "ok"})
}
