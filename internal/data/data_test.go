package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docintel/internal/biz"
	"docintel/internal/conf"
	"docintel/internal/domain"
)

// testData 连接本地 Mongo, 不可达时跳过
func testData(t *testing.T) *Data {
	t.Helper()
	host := os.Getenv("MONGO_HOST")
	if host == "" {
		host = "mongodb://localhost:27017"
	}
	cfg := conf.MongoConfig{
		Host:           host,
		Database:       "docintel_test_" + uuid.NewString()[:8],
		ConnectTimeout: 2 * time.Second,
		MaxPoolSize:    10,
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	d, cleanup, err := NewData(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Skipf("mongo not reachable: %v", err)
	}
	t.Cleanup(func() {
		_ = d.db.Drop(context.Background())
		cleanup()
	})
	return d
}

func TestFieldRepo_BatchDoneTransitions(t *testing.T) {
	d := testData(t)
	repo := d.NewFieldRepo()
	ctx := context.Background()

	field := domain.NewField("ws1", "b1", "q", "u1")
	require.NoError(t, repo.Create(ctx, field))
	require.NoError(t, repo.MarkQueued(ctx, field.ID, 40))

	upd, err := repo.BatchDone(ctx, field.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, upd.Done)
	assert.Equal(t, domain.ProgressExtracting, upd.Progress)
	assert.False(t, upd.Completed)

	upd, err = repo.BatchDone(ctx, field.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 40, upd.Done)
	assert.Equal(t, domain.ProgressDone, upd.Progress)
	assert.True(t, upd.Completed)

	// 重复批次被截断, 完成事件只发一次
	upd, err = repo.BatchDone(ctx, field.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 40, upd.Done)
	assert.False(t, upd.Completed)
}

func TestFieldValueRepo_UpsertPreservesPinnedTopFact(t *testing.T) {
	d := testData(t)
	repo := d.NewFieldValueRepo()
	ctx := context.Background()
	key := domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: "f1", FileID: "d1",
	}

	require.NoError(t, repo.Upsert(ctx, []domain.FieldValueUpsert{{
		Key:        key,
		TopicFacts: []*domain.Fact{domain.NewValueFact("first")},
		FileName:   "a.pdf",
	}}))

	row, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "first", row.TopFact.RawValue())

	pinned := domain.NewValueFact("user answer")
	pinned.Type = domain.FactTypeOverride
	pinned.IsOverride = true
	require.NoError(t, repo.SetTopFact(ctx, key, pinned, &domain.FieldValueHistoryEntry{
		Username:   "alice",
		EditedTime: time.Now(),
		Previous:   row.TopFact,
		Modified:   pinned,
	}))

	// 重抽取刷新候选, 置顶答案保持不动
	require.NoError(t, repo.Upsert(ctx, []domain.FieldValueUpsert{{
		Key:        key,
		TopicFacts: []*domain.Fact{domain.NewValueFact("second")},
		FileName:   "a.pdf",
	}}))

	row, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "user answer", row.TopFact.RawValue())
	assert.Equal(t, domain.FactTypeOverride, row.TopFact.Type)
	require.Len(t, row.TopicFacts, 1)
	assert.Equal(t, "second", row.TopicFacts[0].RawValue())
	require.Len(t, row.History, 1)
	assert.Equal(t, "alice", row.History[0].Username)
}

func TestFieldValueRepo_UpsertKeepsDollarPrefixedAnswersVerbatim(t *testing.T) {
	d := testData(t)
	repo := d.NewFieldValueRepo()
	ctx := context.Background()

	// 金额类答案常以 $ 开头; 管道更新不得把它们当作字段路径求值
	for _, answer := range []string{"$1,000", "$$ref", "$top_fact"} {
		key := domain.FieldValueKey{
			WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: "f1", FileID: "doc-" + answer,
		}
		require.NoError(t, repo.Upsert(ctx, []domain.FieldValueUpsert{{
			Key:        key,
			TopicFacts: []*domain.Fact{domain.NewValueFact(answer)},
			FileName:   "$statement.pdf",
		}}))

		row, err := repo.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, row.TopFact)
		assert.Equal(t, answer, row.TopFact.RawValue())
		assert.Equal(t, answer, row.TopFact.Answer)
		require.Len(t, row.TopicFacts, 1)
		assert.Equal(t, answer, row.TopicFacts[0].RawValue())
		assert.Equal(t, "$statement.pdf", row.FileName)
	}
}

func TestFieldValueRepo_EnsureRowIsIdempotent(t *testing.T) {
	d := testData(t)
	repo := d.NewFieldValueRepo()
	ctx := context.Background()
	key := domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: "f1", FileID: "d1",
	}

	require.NoError(t, repo.EnsureRow(ctx, key, "a.pdf"))
	require.NoError(t, repo.SetTopFact(ctx, key, domain.NewValueFact("v"), nil))
	require.NoError(t, repo.EnsureRow(ctx, key, "a.pdf"))

	row, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", row.TopFact.RawValue())
}

func TestFieldValueRepo_SetApprove(t *testing.T) {
	d := testData(t)
	repo := d.NewFieldValueRepo()
	ctx := context.Background()

	for _, fileID := range []string{"d1", "d2"} {
		key := domain.FieldValueKey{
			WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: "f1", FileID: fileID,
		}
		require.NoError(t, repo.Upsert(ctx, []domain.FieldValueUpsert{{
			Key:        key,
			TopicFacts: []*domain.Fact{domain.NewValueFact("v-" + fileID)},
			FileName:   fileID + ".pdf",
		}}))
	}

	require.NoError(t, repo.SetApprove(ctx, "ws1", "b1", "f1", []string{"d1"}, true))

	row, err := repo.Get(ctx, domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: "f1", FileID: "d1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FactTypeApprove, row.TopFact.Type)

	row, err = repo.Get(ctx, domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: "f1", FileID: "d2",
	})
	require.NoError(t, err)
	assert.Empty(t, row.TopFact.Type)

	require.NoError(t, repo.SetApprove(ctx, "ws1", "b1", "f1", []string{"d1"}, false))
	row, err = repo.Get(ctx, domain.FieldValueKey{
		WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: "f1", FileID: "d1",
	})
	require.NoError(t, err)
	assert.Empty(t, row.TopFact.Type)
}

func TestFieldValueRepo_GridAggregation(t *testing.T) {
	d := testData(t)
	repo := d.NewFieldValueRepo()
	ctx := context.Background()

	seed := []struct {
		fileID string
		field  string
		value  any
	}{
		{"d1", "region", "East"},
		{"d1", "amount", int32(10)},
		{"d2", "region", "West"},
		{"d2", "amount", int32(30)},
		{"d3", "region", "East"},
		{"d3", "amount", int32(5)},
	}
	for _, s := range seed {
		key := domain.FieldValueKey{
			WorkspaceID: "ws1", FieldBundleID: "b1", FieldID: s.field, FileID: s.fileID,
		}
		require.NoError(t, repo.Upsert(ctx, []domain.FieldValueUpsert{{
			Key:        key,
			TopicFacts: []*domain.Fact{domain.NewValueFact(s.value)},
			FileName:   s.fileID + ".pdf",
		}}))
	}

	t.Run("pivot with filter and sort", func(t *testing.T) {
		plan, err := biz.BuildGridPlan(biz.GridPlanInput{
			WorkspaceID: "ws1",
			BundleID:    "b1",
			Selector: &domain.GridSelector{
				StartRow: 0,
				EndRow:   10,
				FilterModel: map[string]domain.ColumnFilter{
					"region": {FilterType: "set", Values: []string{"East"}},
				},
				SortModel: []domain.SortEntry{{ColID: "amount", Sort: "desc"}},
			},
		})
		require.NoError(t, err)

		res, err := repo.AggregateGrid(ctx, plan.Pipeline)
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.TotalMatchCount)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "d1", res.Rows[0].FileID)
		assert.Equal(t, "d3", res.Rows[1].FileID)
		assert.Equal(t, "East", res.Rows[0].Fields["region"].RawValue())
	})

	t.Run("grouped by region", func(t *testing.T) {
		plan, err := biz.BuildGridPlan(biz.GridPlanInput{
			WorkspaceID: "ws1",
			BundleID:    "b1",
			Selector: &domain.GridSelector{
				RowGroupCols: []domain.GroupCol{{ColID: "region"}},
				ValueCols:    []domain.ValueCol{{ColID: "amount", AggFunc: "sum"}},
			},
		})
		require.NoError(t, err)
		assert.True(t, plan.Grouped)

		res, err := repo.AggregateGrid(ctx, plan.Pipeline)
		require.NoError(t, err)
		require.Len(t, res.GroupRows, 2)

		byKey := map[any]map[string]any{}
		for _, row := range res.GroupRows {
			byKey[row["_id"]] = row
		}
		east := byKey["East"]
		require.NotNil(t, east)
		assert.EqualValues(t, 2, east["child_count"])
		assert.EqualValues(t, 15, east["amount"])
	})
}
