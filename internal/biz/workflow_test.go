package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docintel/internal/domain"
	"docintel/internal/infra/de"
)

func matcherDeps() (*fakeWorkflowRepo, *fakeBundleRepo, *fakeFieldRepo, *fakeGridExec, *fakeRunner, *fakeEmitter) {
	bundle := domain.NewFieldBundle("ws1", "DEFAULT", "u1", domain.BundleTypeDefault)
	bundle.ID = "b1"
	return &fakeWorkflowRepo{}, newFakeBundleRepo(bundle), newFakeFieldRepo(), &fakeGridExec{}, &fakeRunner{}, &fakeEmitter{}
}

func TestWorkflowMatcher_CriteriaHitNotifies(t *testing.T) {
	workflows, bundles, fields, grid, runner, emitter := matcherDeps()
	wf := domain.NewSearchCriteriaWorkflow("u1", "ws1", domain.SearchCriteria{
		Criterias: []domain.Criteria{{Question: "termination clause?"}},
	})
	require.NoError(t, workflows.Create(context.Background(), wf))
	runner.resp = &de.ApplyTemplateResponse{Facts: []de.FileFacts{
		{FileIdx: "d1", TopicFacts: []*domain.Fact{domain.NewValueFact("30 days")}},
	}}

	m := NewWorkflowMatcher(workflows, bundles, fields, grid, runner, emitter, zap.NewNop())
	doc := testDoc("d1", "ws1", "contract.pdf")
	require.NoError(t, m.OnDocumentIngested(context.Background(), doc))

	require.Len(t, emitter.emitted, 1)
	n := emitter.emitted[0]
	assert.Equal(t, wf.ID, n.WorkflowID)
	assert.Equal(t, "d1", n.DocumentID)
	assert.Equal(t, "contract.pdf", n.DocumentName)
	assert.Equal(t, 1, n.FactCount)

	// 临时查询只跑新文档
	require.Len(t, runner.requests, 1)
	assert.True(t, runner.requests[0].AdHoc)
	assert.Equal(t, []string{"d1"}, runner.requests[0].FileFilter)
}

func TestWorkflowMatcher_NoFactsNoFilterStaysQuiet(t *testing.T) {
	workflows, bundles, fields, grid, runner, emitter := matcherDeps()
	wf := domain.NewSearchCriteriaWorkflow("u1", "ws1", domain.SearchCriteria{
		Criterias: []domain.Criteria{{Question: "termination clause?"}},
	})
	require.NoError(t, workflows.Create(context.Background(), wf))

	m := NewWorkflowMatcher(workflows, bundles, fields, grid, runner, emitter, zap.NewNop())
	require.NoError(t, m.OnDocumentIngested(context.Background(), testDoc("d1", "ws1", "a.pdf")))
	assert.Empty(t, emitter.emitted)
}

func TestWorkflowMatcher_FilterMiss(t *testing.T) {
	workflows, bundles, fields, grid, runner, emitter := matcherDeps()
	wf := domain.NewSearchCriteriaWorkflow("u1", "ws1", domain.SearchCriteria{})
	wf.FieldFilter = &domain.GridSelector{
		FilterModel: map[string]domain.ColumnFilter{
			"f1": {FilterType: "set", Values: []string{"East"}},
		},
	}
	require.NoError(t, workflows.Create(context.Background(), wf))
	grid.result = &domain.GridResult{TotalMatchCount: 0}

	m := NewWorkflowMatcher(workflows, bundles, fields, grid, runner, emitter, zap.NewNop())
	require.NoError(t, m.OnDocumentIngested(context.Background(), testDoc("d1", "ws1", "a.pdf")))
	assert.Empty(t, emitter.emitted)
	assert.Empty(t, runner.requests)
}

func TestWorkflowMatcher_FilterHitWithoutCriteriaNotifies(t *testing.T) {
	workflows, bundles, fields, grid, runner, emitter := matcherDeps()
	wf := domain.NewSearchCriteriaWorkflow("u1", "ws1", domain.SearchCriteria{})
	wf.FieldFilter = &domain.GridSelector{
		FilterModel: map[string]domain.ColumnFilter{
			"f1": {FilterType: "set", Values: []string{"East"}},
		},
	}
	require.NoError(t, workflows.Create(context.Background(), wf))
	grid.result = &domain.GridResult{TotalMatchCount: 1}

	m := NewWorkflowMatcher(workflows, bundles, fields, grid, runner, emitter, zap.NewNop())
	require.NoError(t, m.OnDocumentIngested(context.Background(), testDoc("d1", "ws1", "a.pdf")))

	require.Len(t, emitter.emitted, 1)
	assert.Equal(t, 0, emitter.emitted[0].FactCount)
}

func TestWorkflowMatcher_OneFailureDoesNotBlockOthers(t *testing.T) {
	workflows, bundles, fields, grid, runner, emitter := matcherDeps()

	broken := domain.NewSearchCriteriaWorkflow("u1", "ws1", domain.SearchCriteria{})
	broken.FieldFilter = &domain.GridSelector{
		FilterModel: map[string]domain.ColumnFilter{
			"f1": {FilterType: "text", Type: "contains", Filter: "x"},
		},
	}
	require.NoError(t, workflows.Create(context.Background(), broken))

	healthy := domain.NewSearchCriteriaWorkflow("u1", "ws1", domain.SearchCriteria{
		Criterias: []domain.Criteria{{Question: "q"}},
	})
	require.NoError(t, workflows.Create(context.Background(), healthy))
	runner.resp = &de.ApplyTemplateResponse{Facts: []de.FileFacts{
		{FileIdx: "d1", TopicFacts: []*domain.Fact{domain.NewValueFact("yes")}},
	}}

	m := NewWorkflowMatcher(workflows, bundles, fields, grid, runner, emitter, zap.NewNop())
	require.NoError(t, m.OnDocumentIngested(context.Background(), testDoc("d1", "ws1", "a.pdf")))

	require.Len(t, emitter.emitted, 1)
	assert.Equal(t, healthy.ID, emitter.emitted[0].WorkflowID)
}
