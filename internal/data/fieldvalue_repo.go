package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docintel/internal/domain"
)

// FieldValueRepo 抽取结果仓储的 Mongo 实现
type FieldValueRepo struct {
	coll *mongo.Collection
}

// keyFilter 行主键过滤器; batch_idx 仅在调用方提供时参与
func keyFilter(key domain.FieldValueKey) bson.M {
	filter := bson.M{
		"workspace_idx":    key.WorkspaceID,
		"field_bundle_idx": key.FieldBundleID,
		"field_idx":        key.FieldID,
		"file_idx":         key.FileID,
	}
	if key.BatchIdx != nil {
		filter["batch_idx"] = *key.BatchIdx
	}
	return filter
}

// EnsureRow $setOnInsert 占位: 行已存在时不做任何修改
func (r *FieldValueRepo) EnsureRow(ctx context.Context, key domain.FieldValueKey, fileName string) error {
	insert := bson.M{
		"_id":         uuid.NewString(),
		"file_name":   fileName,
		"topic_facts": bson.A{},
	}
	_, err := r.coll.UpdateOne(ctx,
		keyFilter(key),
		bson.M{"$setOnInsert": insert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure field value row: %w", err)
	}
	return nil
}

// Upsert 幂等合并批量行
// 合并语义在单条管道更新内原子判定:
//   - top_fact.type 为 override/approve 时仅替换 topic_facts
//   - 否则 top_fact ← topic_facts[0] (无候选时为空文档)
//   - last_modified 取服务器时钟, file_name 总是刷新
func (r *FieldValueRepo) Upsert(ctx context.Context, items []domain.FieldValueUpsert) error {
	for _, item := range items {
		if err := r.EnsureRow(ctx, item.Key, item.FileName); err != nil {
			return err
		}

		var newTop any = bson.M{}
		if len(item.TopicFacts) > 0 {
			newTop = item.TopicFacts[0]
		}
		facts := item.TopicFacts
		if facts == nil {
			facts = []*domain.Fact{}
		}

		// 管道更新中 $set 的值按聚合表达式求值, 抽取结果里以 $ 开头的
		// 字符串会被当作字段路径; 用户数据一律经 $literal 原样写入
		pipeline := bson.A{
			bson.M{"$set": bson.M{
				"topic_facts":   bson.M{"$literal": facts},
				"file_name":     bson.M{"$literal": item.FileName},
				"last_modified": "$$NOW",
				"top_fact": bson.M{"$cond": bson.A{
					bson.M{"$in": bson.A{
						bson.M{"$ifNull": bson.A{"$top_fact.type", ""}},
						bson.A{domain.FactTypeOverride, domain.FactTypeApprove},
					}},
					"$top_fact",
					bson.M{"$literal": newTop},
				}},
			}},
		}
		if _, err := r.coll.UpdateOne(ctx, keyFilter(item.Key), pipeline); err != nil {
			return fmt.Errorf("upsert field value: %w", err)
		}
	}
	return nil
}

// Get 按主键取行
func (r *FieldValueRepo) Get(ctx context.Context, key domain.FieldValueKey) (*domain.FieldValue, error) {
	var fv domain.FieldValue
	err := r.coll.FindOne(ctx, keyFilter(key)).Decode(&fv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrFieldValueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find field value: %w", err)
	}
	return &fv, nil
}

// SetTopFact 覆写 top_fact 并前插一条编辑历史
func (r *FieldValueRepo) SetTopFact(ctx context.Context, key domain.FieldValueKey, fact *domain.Fact, entry *domain.FieldValueHistoryEntry) error {
	update := bson.M{
		"$set":         bson.M{"top_fact": fact},
		"$currentDate": bson.M{"last_modified": true},
	}
	if entry != nil {
		update["$push"] = bson.M{"field_value_history": bson.M{
			"$each":     bson.A{entry},
			"$position": 0,
		}}
	}
	res, err := r.coll.UpdateOne(ctx, keyFilter(key), update)
	if err != nil {
		return fmt.Errorf("set top fact: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrFieldValueNotFound
	}
	return nil
}

// ListByField 列出字段在工作区内的全部行
func (r *FieldValueRepo) ListByField(ctx context.Context, workspaceID, fieldID string) ([]*domain.FieldValue, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"workspace_idx": workspaceID, "field_idx": fieldID})
	if err != nil {
		return nil, fmt.Errorf("list field values: %w", err)
	}
	var values []*domain.FieldValue
	if err := cursor.All(ctx, &values); err != nil {
		return nil, fmt.Errorf("decode field values: %w", err)
	}
	return values, nil
}

// ListByFile 列出单个文件上的全部行 (限定字段集)
func (r *FieldValueRepo) ListByFile(ctx context.Context, workspaceID, bundleID, fileID string) ([]*domain.FieldValue, error) {
	cursor, err := r.coll.Find(ctx, bson.M{
		"workspace_idx":    workspaceID,
		"field_bundle_idx": bundleID,
		"file_idx":         fileID,
	})
	if err != nil {
		return nil, fmt.Errorf("list field values by file: %w", err)
	}
	var values []*domain.FieldValue
	if err := cursor.All(ctx, &values); err != nil {
		return nil, fmt.Errorf("decode field values: %w", err)
	}
	return values, nil
}

// DistinctRawValues top_fact.answer_details.raw_value 去重集合, 跳过空值
func (r *FieldValueRepo) DistinctRawValues(ctx context.Context, workspaceID, fieldID string) ([]string, error) {
	raw, err := r.coll.Distinct(ctx, "top_fact.answer_details.raw_value", bson.M{
		"workspace_idx": workspaceID,
		"field_idx":     fieldID,
	})
	if err != nil {
		return nil, fmt.Errorf("distinct raw values: %w", err)
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if s != "" {
			values = append(values, s)
		}
	}
	return values, nil
}

// DeleteByField 删除字段的全部行
func (r *FieldValueRepo) DeleteByField(ctx context.Context, workspaceID, fieldID string) error {
	if _, err := r.coll.DeleteMany(ctx, bson.M{"workspace_idx": workspaceID, "field_idx": fieldID}); err != nil {
		return fmt.Errorf("delete field values: %w", err)
	}
	return nil
}

// SetApprove 按文件集合批量置/清 approve 标记; 不改动答案本体
func (r *FieldValueRepo) SetApprove(ctx context.Context, workspaceID, bundleID, fieldID string, fileIDs []string, approve bool) error {
	filter := bson.M{
		"workspace_idx":    workspaceID,
		"field_bundle_idx": bundleID,
		"field_idx":        fieldID,
	}
	if len(fileIDs) > 0 {
		filter["file_idx"] = bson.M{"$in": fileIDs}
	}
	var update bson.M
	if approve {
		update = bson.M{"$set": bson.M{"top_fact.type": domain.FactTypeApprove}}
	} else {
		update = bson.M{"$unset": bson.M{"top_fact.type": ""}}
	}
	if _, err := r.coll.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("set approve: %w", err)
	}
	return nil
}

// AggregateGrid 执行网格聚合管道, 返回行与总命中数
// 管道由 biz/grid 规划器生成, 末级 $facet 同时产出 rows 与 totalMatchCount
func (r *FieldValueRepo) AggregateGrid(ctx context.Context, pipeline mongo.Pipeline) (*domain.GridResult, error) {
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate grid: %w", err)
	}

	var facets []struct {
		Rows  []bson.M `bson:"rows"`
		Count []struct {
			Total int64 `bson:"total"`
		} `bson:"totalMatchCount"`
	}
	if err := cursor.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("decode grid result: %w", err)
	}
	result := &domain.GridResult{}
	if len(facets) == 0 {
		return result, nil
	}
	facet := facets[0]
	if len(facet.Count) > 0 {
		result.TotalMatchCount = facet.Count[0].Total
	}
	for _, raw := range facet.Rows {
		// 分组管道产出的行没有 fields 列, 原样透出
		if _, ok := raw["fields"]; !ok {
			result.GroupRows = append(result.GroupRows, flattenGroupRow(raw))
			continue
		}
		row, err := decodeGridRow(raw)
		if err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func flattenGroupRow(raw bson.M) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if d, ok := v.(bson.D); ok {
			v = d.Map()
		}
		out[k] = v
	}
	return out
}

func decodeGridRow(raw bson.M) (domain.GridRow, error) {
	row := domain.GridRow{Fields: make(map[string]*domain.Fact)}
	if id, ok := raw["_id"].(string); ok {
		row.FileID = id
	}
	if name, ok := raw["file_name"].(string); ok {
		row.FileName = name
	}
	// 嵌套文档按驱动默认解码为 bson.D 或 bson.M, 两者都接受
	switch fields := raw["fields"].(type) {
	case bson.M:
		for fieldID, v := range fields {
			fact, err := decodeFact(v)
			if err != nil {
				return row, err
			}
			row.Fields[fieldID] = fact
		}
	case bson.D:
		for _, elem := range fields {
			fact, err := decodeFact(elem.Value)
			if err != nil {
				return row, err
			}
			row.Fields[elem.Key] = fact
		}
	}
	return row, nil
}

func decodeFact(v any) (*domain.Fact, error) {
	if v == nil {
		return nil, nil
	}
	doc, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode grid fact: %w", err)
	}
	var fact domain.Fact
	if err := bson.Unmarshal(doc, &fact); err != nil {
		return nil, fmt.Errorf("decode grid fact: %w", err)
	}
	return &fact, nil
}
