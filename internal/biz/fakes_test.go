package biz

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"

	"docintel/internal/domain"
	"docintel/internal/infra/de"
)

// 内存仓储桩, 镜像 Store 适配器的合并/计数语义

type fakeFieldRepo struct {
	mu     sync.Mutex
	fields map[string]*domain.Field
}

func newFakeFieldRepo(fields ...*domain.Field) *fakeFieldRepo {
	r := &fakeFieldRepo{fields: map[string]*domain.Field{}}
	for _, f := range fields {
		cp := *f
		r.fields[f.ID] = &cp
	}
	return r
}

func (r *fakeFieldRepo) Create(_ context.Context, f *domain.Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.fields[f.ID] = &cp
	return nil
}

func (r *fakeFieldRepo) GetByID(_ context.Context, id string) (*domain.Field, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fields[id]
	if !ok {
		return nil, domain.ErrFieldNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFieldRepo) GetMany(ctx context.Context, ids []string) ([]*domain.Field, error) {
	var out []*domain.Field
	for _, id := range ids {
		if f, err := r.GetByID(ctx, id); err == nil {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFieldRepo) Update(_ context.Context, f *domain.Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.fields[f.ID] = &cp
	return nil
}

func (r *fakeFieldRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fields, id)
	return nil
}

func (r *fakeFieldRepo) ListByBundle(_ context.Context, bundleID string) ([]*domain.Field, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Field
	for _, f := range r.fields {
		if f.ParentBundleID == bundleID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeFieldRepo) ExistsByName(_ context.Context, bundleID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.fields {
		if f.ParentBundleID == bundleID && f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeFieldRepo) MarkQueued(_ context.Context, fieldID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fields[fieldID]
	if !ok {
		return domain.ErrFieldNotFound
	}
	f.Status = domain.FieldStatus{Total: total, Done: 0, Progress: domain.ProgressQueued}
	return nil
}

func (r *fakeFieldRepo) BatchDone(_ context.Context, fieldID string, docPerPage int) (*domain.ProgressUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fields[fieldID]
	if !ok {
		return nil, domain.ErrFieldNotFound
	}
	before := f.Status.Progress
	done := f.Status.Done + docPerPage
	if done > f.Status.Total {
		done = f.Status.Total
	}
	f.Status.Done = done
	if done >= f.Status.Total {
		f.Status.Progress = domain.ProgressDone
	} else {
		f.Status.Progress = domain.ProgressExtracting
	}
	return &domain.ProgressUpdate{
		Total:     f.Status.Total,
		Done:      done,
		Progress:  f.Status.Progress,
		Completed: f.Status.Progress == domain.ProgressDone && before != domain.ProgressDone,
	}, nil
}

func (r *fakeFieldRepo) SetDistinctValues(_ context.Context, fieldID string, values []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fields[fieldID]; ok {
		f.DistinctValues = values
	}
	return nil
}

func (r *fakeFieldRepo) AddChildField(_ context.Context, parentID, childID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fields[parentID]
	if !ok {
		return domain.ErrFieldNotFound
	}
	if f.Options == nil {
		f.Options = &domain.FieldOptions{}
	}
	f.Options.ChildFields = append(f.Options.ChildFields, childID)
	return nil
}

func (r *fakeFieldRepo) RemoveChildField(_ context.Context, parentID, childID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fields[parentID]
	if !ok || f.Options == nil {
		return nil
	}
	out := f.Options.ChildFields[:0]
	for _, id := range f.Options.ChildFields {
		if id != childID {
			out = append(out, id)
		}
	}
	f.Options.ChildFields = out
	return nil
}

type fakeDocRepo struct {
	docs []*domain.Document
}

func newFakeDocRepo(docs ...*domain.Document) *fakeDocRepo {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return &fakeDocRepo{docs: docs}
}

func (r *fakeDocRepo) Create(_ context.Context, doc *domain.Document) error {
	r.docs = append(r.docs, doc)
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	for _, d := range r.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

func (r *fakeDocRepo) CountByWorkspace(_ context.Context, workspaceID string) (int64, error) {
	var n int64
	for _, d := range r.docs {
		if d.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}

func (r *fakeDocRepo) ListByWorkspace(_ context.Context, workspaceID string, offset, limit int) ([]*domain.Document, error) {
	var all []*domain.Document
	for _, d := range r.docs {
		if d.WorkspaceID == workspaceID {
			all = append(all, d)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *fakeDocRepo) UpdateStatus(_ context.Context, id string, from, to domain.DocumentStatus) error {
	for _, d := range r.docs {
		if d.ID == id {
			if d.Status != from {
				return domain.ErrConflict
			}
			d.Status = to
			return nil
		}
	}
	return domain.ErrDocumentNotFound
}

func (r *fakeDocRepo) SetDeleted(_ context.Context, id string) error { return nil }

type fakeValueRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.FieldValue
}

func newFakeValueRepo() *fakeValueRepo {
	return &fakeValueRepo{rows: map[string]*domain.FieldValue{}}
}

func valueKey(k domain.FieldValueKey) string {
	batch := ""
	if k.BatchIdx != nil {
		batch = fmt.Sprintf("#%d", *k.BatchIdx)
	}
	return k.WorkspaceID + "/" + k.FieldBundleID + "/" + k.FieldID + "/" + k.FileID + batch
}

// Upsert 与 Store 合并管道同语义: pinned top_fact 保留, 否则取首位候选
func (r *fakeValueRepo) Upsert(_ context.Context, items []domain.FieldValueUpsert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		k := valueKey(item.Key)
		row, ok := r.rows[k]
		if !ok {
			row = &domain.FieldValue{ID: k, FieldValueKey: item.Key}
			r.rows[k] = row
		}
		row.TopicFacts = item.TopicFacts
		row.FileName = item.FileName
		if !row.TopFact.IsPinned() {
			if len(item.TopicFacts) > 0 {
				row.TopFact = item.TopicFacts[0]
			} else {
				row.TopFact = &domain.Fact{}
			}
		}
	}
	return nil
}

func (r *fakeValueRepo) EnsureRow(_ context.Context, key domain.FieldValueKey, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := valueKey(key)
	if _, ok := r.rows[k]; !ok {
		r.rows[k] = &domain.FieldValue{ID: k, FieldValueKey: key, FileName: fileName}
	}
	return nil
}

func (r *fakeValueRepo) Get(_ context.Context, key domain.FieldValueKey) (*domain.FieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[valueKey(key)]
	if !ok {
		return nil, domain.ErrFieldValueNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *fakeValueRepo) SetTopFact(_ context.Context, key domain.FieldValueKey, fact *domain.Fact, entry *domain.FieldValueHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[valueKey(key)]
	if !ok {
		return domain.ErrFieldValueNotFound
	}
	row.TopFact = fact
	if entry != nil {
		row.History = append([]domain.FieldValueHistoryEntry{*entry}, row.History...)
	}
	return nil
}

func (r *fakeValueRepo) ListByField(_ context.Context, workspaceID, fieldID string) ([]*domain.FieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.FieldValue
	for _, row := range r.rows {
		if row.WorkspaceID == workspaceID && row.FieldID == fieldID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeValueRepo) ListByFile(_ context.Context, workspaceID, bundleID, fileID string) ([]*domain.FieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.FieldValue
	for _, row := range r.rows {
		if row.WorkspaceID == workspaceID && row.FieldBundleID == bundleID && row.FileID == fileID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeValueRepo) DistinctRawValues(_ context.Context, workspaceID, fieldID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, row := range r.rows {
		if row.WorkspaceID != workspaceID || row.FieldID != fieldID {
			continue
		}
		raw := row.TopFact.RawValue()
		if raw == nil {
			continue
		}
		s := fmt.Sprintf("%v", raw)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeValueRepo) DeleteByField(_ context.Context, workspaceID, fieldID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, row := range r.rows {
		if row.WorkspaceID == workspaceID && row.FieldID == fieldID {
			delete(r.rows, k)
		}
	}
	return nil
}

func (r *fakeValueRepo) SetApprove(_ context.Context, workspaceID, bundleID, fieldID string, fileIDs []string, approve bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, id := range fileIDs {
		want[id] = true
	}
	for _, row := range r.rows {
		if row.WorkspaceID != workspaceID || row.FieldBundleID != bundleID || row.FieldID != fieldID {
			continue
		}
		if !want[row.FileID] || row.TopFact == nil {
			continue
		}
		if approve {
			row.TopFact.Type = domain.FactTypeApprove
		} else {
			row.TopFact.Type = ""
		}
	}
	return nil
}

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[string]*domain.Task{}}
}

func (r *fakeTaskRepo) Create(_ context.Context, t *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return t, nil
}

func (r *fakeTaskRepo) UpdateStatus(_ context.Context, id string, status domain.TaskStatus, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	t.Status = status
	t.Detail = detail
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*domain.Task
	failAll   bool
}

func (p *fakePublisher) PublishTask(_ context.Context, task *domain.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return fmt.Errorf("broker down")
	}
	p.published = append(p.published, task)
	return nil
}

type fakeRunner struct {
	mu       sync.Mutex
	requests []*de.ApplyTemplateRequest
	resp     *de.ApplyTemplateResponse
	err      error
}

func (r *fakeRunner) ApplyTemplate(_ context.Context, req *de.ApplyTemplateRequest) (*de.ApplyTemplateResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	if r.resp != nil {
		return r.resp, nil
	}
	return &de.ApplyTemplateResponse{}, nil
}

type fakeGridExec struct {
	result *domain.GridResult
}

func (g *fakeGridExec) AggregateGrid(_ context.Context, _ mongo.Pipeline) (*domain.GridResult, error) {
	if g.result != nil {
		return g.result, nil
	}
	return &domain.GridResult{}, nil
}

type fakeEmitter struct {
	mu      sync.Mutex
	emitted []*domain.FilterMatchNotification
}

func (e *fakeEmitter) Emit(_ context.Context, n *domain.FilterMatchNotification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitted = append(e.emitted, n)
	return nil
}

type fakeWorkflowRepo struct {
	workflows []*domain.SearchCriteriaWorkflow
}

func (r *fakeWorkflowRepo) Create(_ context.Context, wf *domain.SearchCriteriaWorkflow) error {
	r.workflows = append(r.workflows, wf)
	return nil
}

func (r *fakeWorkflowRepo) GetByID(_ context.Context, id string) (*domain.SearchCriteriaWorkflow, error) {
	for _, wf := range r.workflows {
		if wf.ID == id {
			return wf, nil
		}
	}
	return nil, domain.ErrWorkflowNotFound
}

func (r *fakeWorkflowRepo) ListByWorkspace(_ context.Context, workspaceID string) ([]*domain.SearchCriteriaWorkflow, error) {
	var out []*domain.SearchCriteriaWorkflow
	for _, wf := range r.workflows {
		if wf.WorkspaceID == workspaceID {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (r *fakeWorkflowRepo) Delete(_ context.Context, id string) error { return nil }

type fakeBundleRepo struct {
	bundles map[string]*domain.FieldBundle
}

func newFakeBundleRepo(bundles ...*domain.FieldBundle) *fakeBundleRepo {
	r := &fakeBundleRepo{bundles: map[string]*domain.FieldBundle{}}
	for _, b := range bundles {
		r.bundles[b.ID] = b
	}
	return r
}

func (r *fakeBundleRepo) Create(_ context.Context, b *domain.FieldBundle) error {
	r.bundles[b.ID] = b
	return nil
}

func (r *fakeBundleRepo) GetByID(_ context.Context, id string) (*domain.FieldBundle, error) {
	b, ok := r.bundles[id]
	if !ok {
		return nil, domain.ErrBundleNotFound
	}
	return b, nil
}

func (r *fakeBundleRepo) GetDefault(_ context.Context, workspaceID string) (*domain.FieldBundle, error) {
	for _, b := range r.bundles {
		if b.WorkspaceID == workspaceID && b.BundleType == domain.BundleTypeDefault {
			return b, nil
		}
	}
	return nil, domain.ErrBundleNotFound
}

func (r *fakeBundleRepo) AddFieldID(_ context.Context, bundleID, fieldID string) error {
	if b, ok := r.bundles[bundleID]; ok {
		b.FieldIDs = append(b.FieldIDs, fieldID)
	}
	return nil
}

func (r *fakeBundleRepo) RemoveFieldID(_ context.Context, bundleID, fieldID string) error {
	b, ok := r.bundles[bundleID]
	if !ok {
		return nil
	}
	out := b.FieldIDs[:0]
	for _, id := range b.FieldIDs {
		if id != fieldID {
			out = append(out, id)
		}
	}
	b.FieldIDs = out
	return nil
}

type fakeWorkspaceRepo struct {
	mu         sync.Mutex
	workspaces map[string]*domain.Workspace
	usage      map[string][2]int64
}

func newFakeWorkspaceRepo(workspaces ...*domain.Workspace) *fakeWorkspaceRepo {
	r := &fakeWorkspaceRepo{workspaces: map[string]*domain.Workspace{}, usage: map[string][2]int64{}}
	for _, ws := range workspaces {
		r.workspaces[ws.ID] = ws
	}
	return r
}

func (r *fakeWorkspaceRepo) Create(_ context.Context, ws *domain.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces[ws.ID] = ws
	return nil
}

func (r *fakeWorkspaceRepo) GetByID(_ context.Context, id string) (*domain.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[id]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	return ws, nil
}

func (r *fakeWorkspaceRepo) IncrementUsage(_ context.Context, workspaceID string, fields, extractions int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.usage[workspaceID]
	u[0] += fields
	u[1] += extractions
	r.usage[workspaceID] = u
	return nil
}
