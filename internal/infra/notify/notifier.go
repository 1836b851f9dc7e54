package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docintel/internal/conf"
	"docintel/internal/domain"
	"docintel/pkg/monitoring"
)

// Sink 通知下游 (邮件/webhook 派发器为外部协作方)
type Sink interface {
	Send(ctx context.Context, n *domain.FilterMatchNotification) error
}

// LogSink 默认下游: 仅记录日志
type LogSink struct {
	Log *zap.Logger
}

// Send 记录通知
func (s *LogSink) Send(_ context.Context, n *domain.FilterMatchNotification) error {
	s.Log.Info("filter match notification",
		zap.String("workspace_id", n.WorkspaceID),
		zap.String("document_id", n.DocumentID),
		zap.String("workflow_id", n.WorkflowID),
		zap.Int("fact_count", n.FactCount),
	)
	return nil
}

// Notifier 过滤命中通知发射器
// (workspace, document, workflow) 三元组经 Redis SETNX 去重,
// 同一文档对同一工作流至多发出一条通知
type Notifier struct {
	cfg   conf.NotificationConfig
	redis *redis.Client
	sink  Sink
	log   *zap.Logger
}

// NewNotifier 创建发射器; redis 为 nil 时跳过去重
func NewNotifier(cfg conf.NotificationConfig, rdb *redis.Client, sink Sink, logger *zap.Logger) *Notifier {
	return &Notifier{cfg: cfg, redis: rdb, sink: sink, log: logger}
}

// Emit 发射通知; SEND_NOTIFICATIONS 关闭时静默丢弃
func (n *Notifier) Emit(ctx context.Context, notification *domain.FilterMatchNotification) error {
	if !n.cfg.Enabled {
		n.log.Debug("notifications disabled, dropping",
			zap.String("workflow_id", notification.WorkflowID))
		return nil
	}

	if n.redis != nil {
		key := fmt.Sprintf("notify:%s:%s:%s",
			notification.WorkspaceID, notification.DocumentID, notification.WorkflowID)
		ok, err := n.redis.SetNX(ctx, key, 1, n.cfg.DedupTTL).Result()
		if err != nil {
			// 去重不可用时宁可重复也不丢失
			n.log.Warn("notification dedup unavailable", zap.Error(err))
		} else if !ok {
			n.log.Debug("duplicate notification suppressed",
				zap.String("document_id", notification.DocumentID),
				zap.String("workflow_id", notification.WorkflowID))
			return nil
		}
	}

	if err := n.sink.Send(ctx, notification); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	monitoring.NotificationsEmitted.Inc()
	return nil
}
