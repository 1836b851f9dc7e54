package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docintel/internal/domain"
	"docintel/internal/infra/rabbit"
)

type memDocRepo struct {
	docs map[string]*domain.Document
}

func newMemDocRepo(docs ...*domain.Document) *memDocRepo {
	r := &memDocRepo{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *memDocRepo) Create(_ context.Context, d *domain.Document) error {
	r.docs[d.ID] = d
	return nil
}

func (r *memDocRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	d, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDocRepo) CountByWorkspace(_ context.Context, _ string) (int64, error) {
	return int64(len(r.docs)), nil
}

func (r *memDocRepo) ListByWorkspace(_ context.Context, _ string, _, _ int) ([]*domain.Document, error) {
	out := make([]*domain.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, d)
	}
	return out, nil
}

func (r *memDocRepo) UpdateStatus(_ context.Context, id string, from, to domain.DocumentStatus) error {
	d, ok := r.docs[id]
	if !ok || d.Status != from {
		return domain.ErrConflict
	}
	d.Status = to
	return nil
}

func (r *memDocRepo) SetDeleted(_ context.Context, id string) error {
	if d, ok := r.docs[id]; ok {
		d.IsDeleted = true
	}
	return nil
}

type stubMatcher struct {
	matched []*domain.Document
}

func (m *stubMatcher) OnDocumentIngested(_ context.Context, doc *domain.Document) error {
	m.matched = append(m.matched, doc)
	return nil
}

func ingestionMessage(t *testing.T, body domain.IngestionTaskBody) *rabbit.TaskMessage {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return &rabbit.TaskMessage{ID: "t1", TaskName: domain.TaskNameIngestion, Body: raw}
}

func TestIngestionHandler_FreshDocumentReachesIngestOK(t *testing.T) {
	doc := domain.NewDocument("ws1", "root", "a.pdf")
	docs := newMemDocRepo(doc)
	matcher := &stubMatcher{}
	h := NewIngestionHandler(docs, matcher, zap.NewNop())

	err := h.Handle(context.Background(), ingestionMessage(t, domain.IngestionTaskBody{DocID: doc.ID}))
	require.NoError(t, err)

	stored, err := docs.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocStatusIngestOK, stored.Status)
	require.Len(t, matcher.matched, 1)
	assert.Equal(t, domain.DocStatusIngestOK, matcher.matched[0].Status)
}

func TestIngestionHandler_ReIngestFromTerminalStatus(t *testing.T) {
	for _, from := range []domain.DocumentStatus{domain.DocStatusIngestOK, domain.DocStatusIngestFailed} {
		t.Run(string(from), func(t *testing.T) {
			doc := domain.NewDocument("ws1", "root", "a.pdf")
			doc.Status = from
			docs := newMemDocRepo(doc)
			matcher := &stubMatcher{}
			h := NewIngestionHandler(docs, matcher, zap.NewNop())

			err := h.Handle(context.Background(), ingestionMessage(t, domain.IngestionTaskBody{
				DocID:    doc.ID,
				ReIngest: true,
			}))
			require.NoError(t, err)

			stored, err := docs.GetByID(context.Background(), doc.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.DocStatusIngestOK, stored.Status)
			assert.Len(t, matcher.matched, 1)
		})
	}
}

func TestIngestionHandler_TerminalStatusWithoutReIngestConflicts(t *testing.T) {
	doc := domain.NewDocument("ws1", "root", "a.pdf")
	doc.Status = domain.DocStatusIngestOK
	docs := newMemDocRepo(doc)
	matcher := &stubMatcher{}
	h := NewIngestionHandler(docs, matcher, zap.NewNop())

	err := h.Handle(context.Background(), ingestionMessage(t, domain.IngestionTaskBody{DocID: doc.ID}))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	stored, err := docs.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocStatusIngestOK, stored.Status)
	assert.Empty(t, matcher.matched)
}

func TestIngestionHandler_InProgressRejectsReIngest(t *testing.T) {
	doc := domain.NewDocument("ws1", "root", "a.pdf")
	doc.Status = domain.DocStatusIngestInProgress
	docs := newMemDocRepo(doc)
	h := NewIngestionHandler(docs, &stubMatcher{}, zap.NewNop())

	err := h.Handle(context.Background(), ingestionMessage(t, domain.IngestionTaskBody{
		DocID:    doc.ID,
		ReIngest: true,
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}
