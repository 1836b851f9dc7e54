package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docintel/internal/domain"
	"docintel/internal/infra/de"
)

func newExtractionTask(
	runner ExtractionRunner,
	fields *fakeFieldRepo,
	docs *fakeDocRepo,
	values *fakeValueRepo,
	workspaces *fakeWorkspaceRepo,
) *ExtractionTask {
	log := zap.NewNop()
	engine := NewDependencyEngine(fields, docs, values, log)
	upserter := NewFieldValueUpserter(values, fields, engine, log)
	progress := NewProgressCounter(fields, log)
	return NewExtractionTask(runner, fields, workspaces, engine, upserter, progress, true, log)
}

func TestExtractionTask_MergesFactsAndAdvancesProgress(t *testing.T) {
	field := domain.NewField("ws1", "b1", "q", "u1")
	fields := newFakeFieldRepo(field)
	values := newFakeValueRepo()
	workspaces := newFakeWorkspaceRepo()
	runner := &fakeRunner{resp: &de.ApplyTemplateResponse{Facts: []de.FileFacts{
		{FileIdx: "d1", FileName: "a.pdf", TopicFacts: []*domain.Fact{domain.NewValueFact("42")}},
		{FileIdx: "d2", FileName: "b.pdf", TopicFacts: []*domain.Fact{domain.NewValueFact("7")}},
	}}}

	task := newExtractionTask(runner, fields, newFakeDocRepo(), values, workspaces)
	require.NoError(t, fields.MarkQueued(context.Background(), field.ID, 2))

	body := &domain.ExtractionTaskBody{
		WorkspaceIdx:   "ws1",
		FieldBundleIdx: "b1",
		OverrideTopic:  field.ID,
		DocPerPage:     2,
	}
	require.NoError(t, task.Execute(context.Background(), "u1", body))

	row, err := values.Get(context.Background(), domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: field.ID, FileID: "d1",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", row.TopFact.RawValue())
	assert.Equal(t, "a.pdf", row.FileName)

	updated, err := fields.GetByID(context.Background(), field.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressDone, updated.Status.Progress)
	assert.Equal(t, [2]int64{0, 1}, workspaces.usage["ws1"])
}

func TestExtractionTask_RPCErrorLeavesStateUntouched(t *testing.T) {
	field := domain.NewField("ws1", "b1", "q", "u1")
	fields := newFakeFieldRepo(field)
	values := newFakeValueRepo()
	seedParentValue(t, values, "ws1", "b1", field.ID, "d1", "old")
	runner := &fakeRunner{err: errors.New("extraction unavailable")}

	task := newExtractionTask(runner, fields, newFakeDocRepo(), values, newFakeWorkspaceRepo())
	require.NoError(t, fields.MarkQueued(context.Background(), field.ID, 1))

	body := &domain.ExtractionTaskBody{
		WorkspaceIdx: "ws1", FieldBundleIdx: "b1", OverrideTopic: field.ID, DocPerPage: 1,
	}
	require.Error(t, task.Execute(context.Background(), "u1", body))

	// 旧结果保留, 进度不推进, 批次可重试
	row, err := values.Get(context.Background(), domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: field.ID, FileID: "d1",
	})
	require.NoError(t, err)
	assert.Equal(t, "old", row.TopFact.RawValue())

	updated, err := fields.GetByID(context.Background(), field.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Status.Done)
	assert.Equal(t, domain.ProgressQueued, updated.Status.Progress)
}

func TestExtractionTask_FieldDeletedSkips(t *testing.T) {
	runner := &fakeRunner{}
	task := newExtractionTask(runner, newFakeFieldRepo(), newFakeDocRepo(), newFakeValueRepo(), newFakeWorkspaceRepo())

	body := &domain.ExtractionTaskBody{OverrideTopic: "gone", DocPerPage: 20}
	assert.NoError(t, task.Execute(context.Background(), "u1", body))
	assert.Empty(t, runner.requests)
}

func TestExtractionTask_RelationGridCollectsToAllFiles(t *testing.T) {
	field := domain.NewField("ws1", "b1", "parties", "u1")
	field.DataType = "relation"
	fields := newFakeFieldRepo(field)
	values := newFakeValueRepo()
	runner := &fakeRunner{resp: &de.ApplyTemplateResponse{Grid: &de.GridEnvelope{
		Grid: []map[string]any{
			{"answer": "Acme Corp"},
			{"party": "Globex", "role": "buyer"},
		},
	}}}

	task := newExtractionTask(runner, fields, newFakeDocRepo(), values, newFakeWorkspaceRepo())
	require.NoError(t, fields.MarkQueued(context.Background(), field.ID, 1200))

	batch := 1
	body := &domain.ExtractionTaskBody{
		WorkspaceIdx:   "ws1",
		FieldBundleIdx: "b1",
		OverrideTopic:  field.ID,
		DocPerPage:     domain.RelationFieldDocPerPage,
		Offset:         1000,
		BatchIdx:       &batch,
	}
	require.NoError(t, task.Execute(context.Background(), "u1", body))

	row, err := values.Get(context.Background(), domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: field.ID,
		FileID: domain.AllFilesIdx, BatchIdx: &batch,
	})
	require.NoError(t, err)
	require.Len(t, row.TopicFacts, 2)
	assert.Equal(t, "Acme Corp", row.TopicFacts[0].RawValue())
	// 无 answer 列的行整行序列化
	assert.Contains(t, row.TopicFacts[1].Answer, "Globex")
}

func TestExtractionTask_DependentFieldEvaluatesLocally(t *testing.T) {
	parent := domain.NewField("ws1", "b1", "state", "u1")
	child := domain.NewField("ws1", "b1", "label", "u1")
	child.IsDependentField = true
	child.Options = &domain.FieldOptions{
		Type:         domain.DerivedTypeCast,
		ParentFields: []string{parent.ID},
		CastOptions:  map[string]string{"NY": "East"},
	}
	fields := newFakeFieldRepo(parent, child)
	docs := newFakeDocRepo(testDoc("d1", "ws1", "a.pdf"))
	values := newFakeValueRepo()
	seedParentValue(t, values, "ws1", "b1", parent.ID, "d1", "NY")
	runner := &fakeRunner{}

	task := newExtractionTask(runner, fields, docs, values, newFakeWorkspaceRepo())
	require.NoError(t, fields.MarkQueued(context.Background(), child.ID, 1))

	body := &domain.ExtractionTaskBody{
		WorkspaceIdx:     "ws1",
		FieldBundleIdx:   "b1",
		OverrideTopic:    child.ID,
		DocPerPage:       1,
		IsDependentField: true,
	}
	require.NoError(t, task.Execute(context.Background(), "u1", body))

	// 派生字段不经抽取服务
	assert.Empty(t, runner.requests)
	row, err := values.Get(context.Background(), domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: child.ID, FileID: "d1",
	})
	require.NoError(t, err)
	assert.Equal(t, "East", row.TopFact.RawValue())
}
