package telemetry

// Record ABRP 遥测记录：字段名到值的映射。
// 缺失字段直接省略，绝不发送 null。
type Record map[string]any

// Clone 返回记录的浅拷贝
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
