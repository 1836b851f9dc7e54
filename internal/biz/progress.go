package biz

import (
	"context"

	"go.uber.org/zap"

	"docintel/internal/domain"
	"docintel/pkg/monitoring"
)

// CompletionObserver 字段完成回调: progress 发生 extracting→done 迁移时触发
type CompletionObserver func(ctx context.Context, fieldID string)

// ProgressCounter 字段进度计数器协议
// 多个 worker 并发收尾同一字段时, 原子性由 Store 的条件算术更新保证;
// batch_done 重复应用被 min(done, total) 截断, 因而幂等
type ProgressCounter struct {
	fields   domain.FieldRepository
	observer CompletionObserver
	log      *zap.Logger
}

// NewProgressCounter 创建进度计数器
func NewProgressCounter(fields domain.FieldRepository, logger *zap.Logger) *ProgressCounter {
	return &ProgressCounter{fields: fields, log: logger}
}

// SetObserver 注册完成观察者 (组合根装配, 打破构造环)
func (p *ProgressCounter) SetObserver(observer CompletionObserver) {
	p.observer = observer
}

// MarkQueued 置 total 并复位 progress 为 queued
// 对单个字段, mark_queued 严格先于任何 batch_done
func (p *ProgressCounter) MarkQueued(ctx context.Context, fieldID string, total int) error {
	return p.fields.MarkQueued(ctx, fieldID, total)
}

// BatchDone 推进计数: done ← min(done+docPerPage, total)
func (p *ProgressCounter) BatchDone(ctx context.Context, fieldID string, docPerPage int) (*domain.ProgressUpdate, error) {
	upd, err := p.fields.BatchDone(ctx, fieldID, docPerPage)
	if err != nil {
		return nil, err
	}
	p.log.Debug("batch done",
		zap.String("field_id", fieldID),
		zap.Int("done", upd.Done),
		zap.Int("total", upd.Total),
		zap.String("progress", string(upd.Progress)),
	)
	if upd.Completed {
		monitoring.FieldsCompleted.Inc()
		if p.observer != nil {
			p.observer(ctx, fieldID)
		}
	}
	return upd, nil
}
