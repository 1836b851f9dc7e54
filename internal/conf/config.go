package conf

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Extraction    ExtractionConfig    `mapstructure:"extraction"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	// ExtractRatePerMinute 单用户每分钟可发起的抽取次数, 0 关闭限流
	ExtractRatePerMinute int `mapstructure:"extract_rate_per_minute"`
}

// MongoConfig 文档数据库配置
type MongoConfig struct {
	Host           string        `mapstructure:"host"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
}

// QueueConfig 消息队列配置 (AMQP)
type QueueConfig struct {
	Host      string        `mapstructure:"host"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Queue     string        `mapstructure:"queue"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// ExtractionConfig 抽取服务配置
type ExtractionConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BreakerEnabled bool          `mapstructure:"breaker_enabled"`
}

// RedisConfig Redis 配置 (通知去重与缓存)
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig Worker 进程配置
type WorkerConfig struct {
	// Tasks 本进程处理的任务类型, 对应 TASKS 环境变量 (逗号分隔)
	Tasks             []string      `mapstructure:"tasks"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	ServiceName        string `mapstructure:"service_name"`
	Environment        string `mapstructure:"environment"`
	LogLevel           string `mapstructure:"log_level"`
	UpdateUsageMetrics bool   `mapstructure:"update_usage_metrics"`
}

// Load 加载配置, 环境变量覆盖文件值
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 默认值
	v.SetDefault("server.http_port", 5001)
	v.SetDefault("server.metrics_port", 8006)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.extract_rate_per_minute", 120)
	v.SetDefault("mongo.host", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "doc-store")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)
	v.SetDefault("mongo.max_pool_size", 100)
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.queue", "task_queue")
	v.SetDefault("queue.heartbeat", 5*time.Second)
	v.SetDefault("extraction.request_timeout", 5*time.Minute)
	v.SetDefault("extraction.breaker_enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("worker.tasks", []string{"extraction"})
	v.SetDefault("worker.reconnect_attempts", 5)
	v.SetDefault("worker.reconnect_delay", 3*time.Second)
	v.SetDefault("notification.dedup_ttl", 24*time.Hour)
	v.SetDefault("observability.service_name", "field-engine")
	v.SetDefault("observability.log_level", "info")

	// 设置配置文件
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("field-engine")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
	}

	// 自动从环境变量读取
	v.AutomaticEnv()

	// 读取配置文件 (缺失时使用默认值)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, err
		}
	}

	// 解析配置
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// 从环境变量覆盖部署配置
	if host := os.Getenv("MONGO_HOST"); host != "" {
		config.Mongo.Host = host
	}
	if db := os.Getenv("MONGO_DATABASE"); db != "" {
		config.Mongo.Database = db
	}
	if host := os.Getenv("NLM_MQ_HOST"); host != "" {
		config.Queue.Host = host
	}
	if user := os.Getenv("NLM_MQ_USERNAME"); user != "" {
		config.Queue.Username = user
	}
	if password := os.Getenv("NLM_MQ_PASSWORD"); password != "" {
		config.Queue.Password = password
	}
	if url := os.Getenv("DE_LITE_URL"); url != "" {
		config.Extraction.BaseURL = url
	}
	if flag := os.Getenv("UPDATE_USAGE_METRICS"); flag != "" {
		config.Observability.UpdateUsageMetrics = isTruthy(flag)
	}
	if flag := os.Getenv("SEND_NOTIFICATIONS"); flag != "" {
		config.Notification.Enabled = isTruthy(flag)
	}
	if tasks := os.Getenv("TASKS"); tasks != "" {
		config.Worker.Tasks = splitTasks(tasks)
	}

	return &config, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitTasks(s string) []string {
	parts := strings.Split(s, ",")
	tasks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tasks = append(tasks, p)
		}
	}
	return tasks
}
