package service

import (
	"context"

	"docintel/internal/domain"
)

// TaskService 任务状态读取
type TaskService struct {
	tasks domain.TaskRepository
}

// NewTaskService 创建服务
func NewTaskService(tasks domain.TaskRepository) *TaskService {
	return &TaskService{tasks: tasks}
}

// Get 读任务 (GET task/{id})
func (s *TaskService) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.tasks.GetByID(ctx, taskID)
}
