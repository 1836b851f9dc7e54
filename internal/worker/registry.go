package worker

import (
	"context"

	"docintel/internal/infra/rabbit"
)

// Handler 任务处理器; 按 task_name 路由
type Handler interface {
	TaskName() string
	Handle(ctx context.Context, msg *rabbit.TaskMessage) error
}

// Registry 处理器注册表, 进程启动时装配后只读
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register 注册处理器; enabled 为空时全部启用, 否则按 TASKS 白名单过滤
func (r *Registry) Register(h Handler, enabled []string) {
	if len(enabled) > 0 && !contains(enabled, h.TaskName()) {
		return
	}
	r.handlers[h.TaskName()] = h
}

// Get 按任务名查处理器
func (r *Registry) Get(taskName string) (Handler, bool) {
	h, ok := r.handlers[taskName]
	return h, ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
