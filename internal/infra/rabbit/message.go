package rabbit

import (
	"encoding/json"
	"time"
)

// TaskMessage 队列线格式: 与任务集合中的文档同构
// body 的具体形状由 task_name 决定, 消费侧再行解码
type TaskMessage struct {
	ID        string          `json:"_id"`
	UserID    string          `json:"user_id"`
	TaskName  string          `json:"task_name"`
	Body      json.RawMessage `json:"body"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeBody 将消息体解码到任务专属结构
func (m *TaskMessage) DecodeBody(v any) error {
	return json.Unmarshal(m.Body, v)
}
