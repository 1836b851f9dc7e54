package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"docintel/internal/conf"
	"docintel/internal/domain"
)

// Publisher 任务发布端
// 发布失败不在此层重试: Dispatcher 会降级为内联执行
type Publisher struct {
	mu      sync.Mutex
	cfg     conf.QueueConfig
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

// NewPublisher 创建发布端, 惰性建连
func NewPublisher(cfg conf.QueueConfig, logger *zap.Logger) *Publisher {
	return &Publisher{cfg: cfg, log: logger}
}

func dial(cfg conf.QueueConfig) (*amqp.Connection, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s/", cfg.Username, cfg.Password, cfg.Host)
	return amqp.DialConfig(url, amqp.Config{Heartbeat: cfg.Heartbeat})
}

// reset 废弃当前连接与通道; 旧连接未关闭时先关闭, 避免泄漏
func (p *Publisher) reset() {
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	p.conn = nil
	p.channel = nil
}

// ensureChannel 建立连接与通道并声明持久化队列
func (p *Publisher) ensureChannel() (*amqp.Channel, error) {
	if p.channel != nil && !p.conn.IsClosed() {
		return p.channel, nil
	}
	p.reset()
	conn, err := dial(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	p.conn = conn
	p.channel = ch
	return ch, nil
}

// PublishTask 发布任务消息 (持久化投递)
func (p *Publisher) PublishTask(ctx context.Context, task *domain.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.ensureChannel()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	err = ch.PublishWithContext(ctx, "", p.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	if err != nil {
		// 废弃损坏的连接, 下次发布重建
		p.reset()
		return fmt.Errorf("publish task: %w", err)
	}
	p.log.Debug("task published",
		zap.String("task_id", task.ID),
		zap.String("task_name", task.TaskName),
	)
	return nil
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
