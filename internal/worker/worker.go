package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"docintel/internal/conf"
	"docintel/internal/domain"
	"docintel/internal/infra/rabbit"
	"docintel/pkg/monitoring"
)

// Worker 队列消费循环
// 每次断连后重建连接, 连续失败超过上限则退出进程交给编排层重启
type Worker struct {
	cfg      conf.WorkerConfig
	queueCfg conf.QueueConfig
	registry *Registry
	tasks    domain.TaskRepository
	log      *zap.Logger
}

// NewWorker 创建 worker
func NewWorker(cfg conf.WorkerConfig, queueCfg conf.QueueConfig, registry *Registry, tasks domain.TaskRepository, logger *zap.Logger) *Worker {
	return &Worker{cfg: cfg, queueCfg: queueCfg, registry: registry, tasks: tasks, log: logger}
}

// Run 消费直到 ctx 取消; 批次之间协作式退出, 不打断进行中的任务
func (w *Worker) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		consumer, err := rabbit.NewConsumer(w.queueCfg)
		if err != nil {
			attempts++
			if attempts > w.cfg.ReconnectAttempts {
				return fmt.Errorf("broker unreachable after %d attempts: %w", attempts, err)
			}
			w.log.Warn("broker connect failed, retrying",
				zap.Int("attempt", attempts),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.reconnectDelay()):
			}
			continue
		}
		attempts = 0

		if err := w.consume(ctx, consumer); err != nil {
			w.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		}
		consumer.Close()
	}
}

func (w *Worker) reconnectDelay() time.Duration {
	if w.cfg.ReconnectDelay > 0 {
		return w.cfg.ReconnectDelay
	}
	return 3 * time.Second
}

func (w *Worker) consume(ctx context.Context, consumer *rabbit.Consumer) error {
	deliveries, err := consumer.Deliveries()
	if err != nil {
		return err
	}
	closed := consumer.NotifyClose()
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.process(ctx, d)
		}
	}
}

// process 单条消息: 解码 → 路由 → 执行 → 写终态
// 成功失败都确认, 失败任务不重投, 由用户重发起
func (w *Worker) process(ctx context.Context, d amqp.Delivery) {
	var msg rabbit.TaskMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		w.log.Error("undecodable task message, discarding", zap.Error(err))
		_ = d.Ack(false)
		return
	}

	handler, ok := w.registry.Get(msg.TaskName)
	if !ok {
		w.log.Error("no handler for task", zap.String("task_name", msg.TaskName), zap.String("task_id", msg.ID))
		w.finish(ctx, msg.ID, domain.TaskStatusFailed, domain.ErrUnknownTaskName.Error())
		monitoring.TasksConsumed.WithLabelValues(msg.TaskName, "failed").Inc()
		_ = d.Ack(false)
		return
	}

	w.finish(ctx, msg.ID, domain.TaskStatusRunning, "")
	start := time.Now()

	// 在消费协程内同步执行; 心跳由驱动自身的 IO 协程维持,
	// prefetch=1 下阻塞投递循环正是公平分发的语义
	err := handler.Handle(ctx, &msg)

	monitoring.TaskDuration.WithLabelValues(msg.TaskName).Observe(time.Since(start).Seconds())
	if err != nil {
		w.log.Error("task failed",
			zap.String("task_id", msg.ID),
			zap.String("task_name", msg.TaskName),
			zap.Error(err))
		w.finish(ctx, msg.ID, domain.TaskStatusFailed, err.Error())
		monitoring.TasksConsumed.WithLabelValues(msg.TaskName, "failed").Inc()
	} else {
		w.finish(ctx, msg.ID, domain.TaskStatusCompleted, "")
		monitoring.TasksConsumed.WithLabelValues(msg.TaskName, "completed").Inc()
	}
	_ = d.Ack(false)
}

func (w *Worker) finish(ctx context.Context, taskID string, status domain.TaskStatus, detail string) {
	if err := w.tasks.UpdateStatus(ctx, taskID, status, detail); err != nil {
		w.log.Warn("task status update failed",
			zap.String("task_id", taskID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
