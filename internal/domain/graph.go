package domain

import "context"

// FieldResolver 按ID解析字段, 供依赖图遍历使用
type FieldResolver interface {
	GetByID(ctx context.Context, id string) (*Field, error)
}

// WouldCreateCycle 判断把 parentIDs 设为 childID 的父字段是否会成环
// 沿 parent_fields 自底向上遍历; 依赖图必须始终无环
func WouldCreateCycle(ctx context.Context, resolver FieldResolver, childID string, parentIDs []string) (bool, error) {
	visited := make(map[string]bool)
	stack := append([]string(nil), parentIDs...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == childID {
			return true, nil
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		field, err := resolver.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		stack = append(stack, field.ParentFields()...)
	}
	return false, nil
}

// VerifyMirror 校验父子指针双向镜像: child.parent_fields 中的每个 p
// 都必须在 p.child_fields 中出现; 否则字段图已损坏
func VerifyMirror(ctx context.Context, resolver FieldResolver, child *Field) error {
	for _, parentID := range child.ParentFields() {
		parent, err := resolver.GetByID(ctx, parentID)
		if err != nil {
			return err
		}
		found := false
		for _, id := range parent.ChildFields() {
			if id == child.ID {
				found = true
				break
			}
		}
		if !found {
			return ErrBrokenFieldGraph
		}
	}
	return nil
}
