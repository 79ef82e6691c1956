package conflict

import (
	"reflect"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// Merge 把 incoming 结构化地合并进 base，返回新的对象，不修改任何入参：
//   - 只在 incoming 中出现的键直接加入；
//   - 双方都是数组时取去重并集，base 的元素在前；
//   - 双方都是对象时按同样规则递归合并；
//   - 其余冲突保留 base 的值。
func Merge[C ~map[string]any](base, incoming C) C {
	out := make(C, len(base)+len(incoming))
	for k, v := range mergeMaps(base, incoming) {
		out[k] = v
	}
	return out
}

func mergeMaps(base, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(incoming))
	for k, v := range base {
		out[k] = clone(v)
	}
	for k, in := range incoming {
		cur, ok := out[k]
		if !ok {
			out[k] = clone(in)
			continue
		}
		if a, ok := asSlice(cur); ok {
			if b, ok := asSlice(in); ok {
				out[k] = union(a, b)
			}
			continue
		}
		if a, ok := asMap(cur); ok {
			if b, ok := asMap(in); ok {
				out[k] = mergeMaps(a, b)
			}
			continue
		}
		// 基本类型冲突：保留 base
	}
	return out
}

func union(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	add := func(v any) {
		for _, existing := range out {
			if reflect.DeepEqual(existing, v) {
				return
			}
		}
		out = append(out, v)
	}
	for _, v := range a {
		add(v)
	}
	for _, v := range b {
		add(clone(v))
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case domain.Fields:
		return t, true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	t, ok := v.([]any)
	return t, ok
}

func clone(v any) any {
	return domain.CloneValue(v)
}
