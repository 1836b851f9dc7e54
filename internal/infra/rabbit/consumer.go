package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"docintel/internal/conf"
)

// Consumer 任务消费端
// prefetch=1 公平分发; 协议心跳由连接的 IO 协程维持,
// 处理函数阻塞不影响心跳通路
type Consumer struct {
	cfg     conf.QueueConfig
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewConsumer 建连并声明队列
func NewConsumer(cfg conf.QueueConfig) (*Consumer, error) {
	conn, err := dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	// prefetch=1: 单条未确认消息, 慢任务不会饿死其它 worker
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{cfg: cfg, conn: conn, channel: ch}, nil
}

// Deliveries 打开消费流 (手动确认)
func (c *Consumer) Deliveries() (<-chan amqp.Delivery, error) {
	deliveries, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// NotifyClose 连接断开通知
func (c *Consumer) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close 关闭连接
func (c *Consumer) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
