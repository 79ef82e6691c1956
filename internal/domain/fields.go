package domain

import "encoding/json"

// Fields 是解码后的 JSON 对象，作为各类变更负载的底层表示。
type Fields map[string]any

// 按实体类型区分的变更负载。底层类型相同，但不能互相混用。
// 入站消息在边界处以这些类型解码，进入事件和冲突记录时通过 Fields 转为通用表示。
type (
	TripChanges     map[string]any
	ActivityChanges map[string]any
	CommentChanges  map[string]any
)

// Fields 返回深拷贝后的通用表示。
func (c TripChanges) Fields() Fields { return Fields(c).Clone() }

// Fields 返回深拷贝后的通用表示。
func (c ActivityChanges) Fields() Fields { return Fields(c).Clone() }

// Fields 返回深拷贝后的通用表示。
func (c CommentChanges) Fields() Fields { return Fields(c).Clone() }

// Clone returns a deep copy so callers can merge without aliasing nested maps or slices.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return Fields(cloneMap(f))
}

// JSON 返回紧凑的 JSON 文本，编码失败时返回 "{}"。
func (f Fields) JSON() string {
	if f == nil {
		return "{}"
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// CloneValue deep-copies a decoded JSON value. Scalars are returned as is.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Fields:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
