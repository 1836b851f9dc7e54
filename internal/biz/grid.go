package biz

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"docintel/internal/domain"
	"docintel/pkg/apierror"
)

// GridPlan 网格查询的聚合计划
type GridPlan struct {
	Pipeline mongo.Pipeline
	Grouped  bool
}

// GridPlanInput 规划输入; BundleFields 用于 file_level 审核谓词展开
type GridPlanInput struct {
	WorkspaceID  string
	BundleID     string
	Selector     *domain.GridSelector
	BundleFields []*domain.Field
	FileIDs      []string
}

// rawValuePath 透视行上列 colID 的取值路径
func rawValuePath(colID string) string {
	if colID == "file_name" {
		return "file_name"
	}
	return "fields." + colID + ".answer_details.raw_value"
}

// BuildGridPlan 把网格描述符编译为聚合管道
// 形状: 透视 (group by file) → 列过滤 → 审核过滤 → 分组或排序 → 分页 facet
func BuildGridPlan(in GridPlanInput) (*GridPlan, error) {
	sel := in.Selector
	if sel == nil {
		sel = &domain.GridSelector{}
	}

	match := bson.D{
		{Key: "workspace_idx", Value: in.WorkspaceID},
		{Key: "field_bundle_idx", Value: in.BundleID},
	}
	if len(in.FileIDs) > 0 {
		match = append(match, bson.E{Key: "file_idx", Value: bson.D{{Key: "$in", Value: in.FileIDs}}})
	} else {
		match = append(match, bson.E{Key: "file_idx", Value: bson.D{{Key: "$ne", Value: domain.AllFilesIdx}}})
	}

	p := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$file_idx"},
			{Key: "file_name", Value: bson.D{{Key: "$first", Value: "$file_name"}}},
			{Key: "fields", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "k", Value: "$field_idx"},
				{Key: "v", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$top_fact", bson.D{}}}}},
			}}}},
		}}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "fields", Value: bson.D{{Key: "$arrayToObject", Value: "$fields"}}},
		}}},
	}

	for colID, filter := range sel.FilterModel {
		f := filter
		pred, err := columnPredicate(colID, &f)
		if err != nil {
			return nil, err
		}
		if pred != nil {
			p = append(p, bson.D{{Key: "$match", Value: pred}})
		}
	}

	if sel.ReviewStatusFilter != nil {
		if pred := reviewPredicate(sel.ReviewStatusFilter, in.BundleFields); pred != nil {
			p = append(p, bson.D{{Key: "$match", Value: pred}})
		}
	}

	// 已展开的分组层级按等值收窄
	for i, key := range sel.GroupKeys {
		if i >= len(sel.RowGroupCols) {
			break
		}
		p = append(p, bson.D{{Key: "$match", Value: bson.D{
			{Key: rawValuePath(sel.RowGroupCols[i].ColID), Value: key},
		}}})
	}

	grouped := len(sel.RowGroupCols) > len(sel.GroupKeys)
	if grouped {
		level := sel.RowGroupCols[len(sel.GroupKeys)]
		p = append(p, groupStage(level, sel.ValueCols)...)
		p = append(p, bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}})
	} else {
		p = append(p, bson.D{{Key: "$sort", Value: sortSpec(sel.SortModel)}})
	}

	p = append(p, facetStage(sel.StartRow, sel.EndRow))
	return &GridPlan{Pipeline: p, Grouped: grouped}, nil
}

// sortSpec 用户排序在前, file_name 与 _id 兜底保证稳定分页
func sortSpec(model []domain.SortEntry) bson.D {
	spec := bson.D{}
	seen := map[string]bool{}
	for _, s := range model {
		path := rawValuePath(s.ColID)
		if seen[path] {
			continue
		}
		seen[path] = true
		dir := 1
		if s.Sort == "desc" {
			dir = -1
		}
		spec = append(spec, bson.E{Key: path, Value: dir})
	}
	if !seen["file_name"] {
		spec = append(spec, bson.E{Key: "file_name", Value: 1})
	}
	spec = append(spec, bson.E{Key: "_id", Value: 1})
	return spec
}

func facetStage(start, end int) bson.D {
	limit := end - start
	if limit <= 0 {
		limit = 100
	}
	return bson.D{{Key: "$facet", Value: bson.D{
		{Key: "rows", Value: bson.A{
			bson.D{{Key: "$skip", Value: start}},
			bson.D{{Key: "$limit", Value: limit}},
		}},
		{Key: "totalMatchCount", Value: bson.A{
			bson.D{{Key: "$count", Value: "total"}},
		}},
	}}}
}

func columnPredicate(colID string, f *domain.ColumnFilter) (bson.D, error) {
	if f.IsComposite() {
		p1, err := columnPredicate(colID, f.Condition1)
		if err != nil {
			return nil, err
		}
		p2, err := columnPredicate(colID, f.Condition2)
		if err != nil {
			return nil, err
		}
		op := "$and"
		if f.Operator == "or" {
			op = "$or"
		}
		return bson.D{{Key: op, Value: bson.A{p1, p2}}}, nil
	}

	path := rawValuePath(colID)

	if f.FilterType == "set" {
		values := make(bson.A, 0, len(f.Values))
		for _, v := range f.Values {
			values = append(values, v)
		}
		return bson.D{{Key: path, Value: bson.D{{Key: "$in", Value: values}}}}, nil
	}

	switch f.Type {
	case "equals":
		return bson.D{{Key: path, Value: f.Filter}}, nil
	case "notEqual":
		return bson.D{{Key: path, Value: bson.D{{Key: "$ne", Value: f.Filter}}}}, nil
	case "blank":
		return bson.D{{Key: path, Value: bson.D{{Key: "$in", Value: bson.A{nil, ""}}}}}, nil
	case "notBlank":
		return bson.D{{Key: path, Value: bson.D{{Key: "$nin", Value: bson.A{nil, ""}}}}}, nil
	case "empty", "":
		return nil, nil
	}

	if f.FilterType == "number" {
		switch f.Type {
		case "lessThan":
			return bson.D{{Key: path, Value: bson.D{{Key: "$lt", Value: f.Filter}}}}, nil
		case "lessThanOrEqual":
			return bson.D{{Key: path, Value: bson.D{{Key: "$lte", Value: f.Filter}}}}, nil
		case "greaterThan":
			return bson.D{{Key: path, Value: bson.D{{Key: "$gt", Value: f.Filter}}}}, nil
		case "greaterThanOrEqual":
			return bson.D{{Key: path, Value: bson.D{{Key: "$gte", Value: f.Filter}}}}, nil
		case "inRange":
			return bson.D{{Key: path, Value: bson.D{
				{Key: "$gte", Value: f.Filter},
				{Key: "$lte", Value: f.FilterTo},
			}}}, nil
		}
	}

	return nil, apierror.NewValidation("GRID_FILTER_UNSUPPORTED",
		fmt.Sprintf("filter %q/%q on column %q is not supported", f.FilterType, f.Type, colID))
}

// reviewPredicate 审核状态过滤
// approved ≡ top_fact.type == approve 或 is_override; file_level 对全部非手工字段取合取
func reviewPredicate(f *domain.ReviewStatusFilter, bundleFields []*domain.Field) bson.D {
	var targets []string
	if f.FieldID == domain.FileLevelFieldID {
		for _, fld := range bundleFields {
			if !fld.IsEnteredField {
				targets = append(targets, fld.ID)
			}
		}
	} else {
		targets = []string{f.FieldID}
	}
	if len(targets) == 0 {
		return nil
	}
	preds := bson.A{}
	for _, id := range targets {
		approved := bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "fields." + id + ".type", Value: domain.FactTypeApprove}},
			bson.D{{Key: "fields." + id + ".is_override", Value: true}},
		}}}
		if f.Status == "approved" {
			preds = append(preds, approved)
		} else {
			preds = append(preds, bson.D{{Key: "$nor", Value: bson.A{approved}}})
		}
	}
	return bson.D{{Key: "$and", Value: preds}}
}

func groupStage(level domain.GroupCol, valueCols []domain.ValueCol) []bson.D {
	path := "$" + rawValuePath(level.ColID)

	aggs := bson.D{}
	for _, vc := range valueCols {
		vp := "$" + rawValuePath(vc.ColID)
		var agg bson.D
		switch vc.AggFunc {
		case "sum", "min", "max", "avg", "first", "last":
			agg = bson.D{{Key: "$" + vc.AggFunc, Value: vp}}
		case "count":
			agg = bson.D{{Key: "$sum", Value: 1}}
		default:
			continue
		}
		aggs = append(aggs, bson.E{Key: vc.ColID, Value: agg})
	}

	childCount := bson.E{Key: "child_count", Value: bson.D{{Key: "$sum", Value: 1}}}

	if level.Type == "number" && level.NumBins > 0 {
		output := bson.D{childCount}
		output = append(output, aggs...)
		return []bson.D{{{Key: "$bucketAuto", Value: bson.D{
			{Key: "groupBy", Value: path},
			{Key: "buckets", Value: level.NumBins},
			{Key: "output", Value: output},
		}}}}
	}

	group := bson.D{{Key: "_id", Value: path}, childCount}
	group = append(group, aggs...)
	return []bson.D{{{Key: "$group", Value: group}}}
}
