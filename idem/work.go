package idem

import (
	"context"
	"encoding/json"
)

// StatusSuccess 缓存条目中 status 字段的取值
const StatusSuccess = "success"

// Work 只应执行一次的业务逻辑
type Work func(ctx context.Context) (WorkResult, error)

// WorkResult 业务执行结果
//
// IsPersisted 为 false 时协调器返回 ErrSaveFailure，结果不会被缓存。
// Serialize 的输出原样写入缓存条目的 data 字段，重放时逐字节返回。
type WorkResult interface {
	IsPersisted() bool
	Serialize() (string, error)
}

// Outcome 通用的 WorkResult 实现，Payload 以 JSON 序列化
type Outcome struct {
	Persisted bool
	Payload   any
}

func (o Outcome) IsPersisted() bool {
	return o.Persisted
}

func (o Outcome) Serialize() (string, error) {
	b, err := json.Marshal(o.Payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Result Perform 的返回值，首次执行与缓存命中的结果完全一致
type Result struct {
	Status string `json:"status"`
	Data   string `json:"data"`
}

// Decode 将 Data 按 JSON 解码到 v
func (r *Result) Decode(v any) error {
	return json.Unmarshal([]byte(r.Data), v)
}
