package biz

import (
	"fmt"
	"strings"

	"docintel/internal/domain"
)

// ApplyCast 按映射表求派生值
// 命中顺序: 父值精确键 → __default__; 父值为空/缺失时查 __none__ 再兜底
func ApplyCast(castOptions map[string]string, raw any) (string, bool) {
	key := domain.CastKeyNone
	if raw != nil {
		if s := strings.TrimSpace(fmt.Sprintf("%v", raw)); s != "" {
			key = s
		}
	}
	if mapped, ok := castOptions[key]; ok {
		return mapped, true
	}
	if mapped, ok := castOptions[domain.CastKeyDefault]; ok {
		return mapped, true
	}
	return "", false
}

// IsTruthy boolean_multi_cast 的真值判定: true / "yes" / "1" (忽略大小写)
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "1", "true":
			return true
		}
	case int:
		return t == 1
	case int64:
		return t == 1
	case float64:
		return t == 1
	}
	return false
}
