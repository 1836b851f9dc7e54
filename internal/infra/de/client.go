package de

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"docintel/internal/conf"
	"docintel/internal/domain"
	"docintel/pkg/monitoring"
)

// ApplyTemplateRequest apply_template 请求体: 抽取任务消息体原样透传
type ApplyTemplateRequest struct {
	domain.ExtractionTaskBody

	AdHoc            bool                   `json:"ad_hoc,omitempty"`
	UserACL          []string               `json:"user_acl,omitempty"`
	FileFilter       []string               `json:"file_filter,omitempty"`
	FileFilterStruct map[string]any         `json:"file_filter_struct,omitempty"`
	SearchCriteria   *domain.SearchCriteria `json:"search_criteria,omitempty"`
}

// FileFacts 单文件的候选事实
type FileFacts struct {
	FileIdx    string         `json:"file_idx"`
	FileName   string         `json:"file_name"`
	Topic      string         `json:"topic"`
	TopicID    string         `json:"topicId"`
	TopicFacts []*domain.Fact `json:"topic_facts"`
}

// GridEnvelope 关系字段的网格响应
type GridEnvelope struct {
	Grid                    []map[string]any `json:"grid"`
	AggregatePostProcessors []string         `json:"aggregate_post_processors,omitempty"`
	Pagination              map[string]any   `json:"pagination,omitempty"`
}

// ApplyTemplateResponse 两种形状二选一: 文件事实列表或网格信封
type ApplyTemplateResponse struct {
	Facts []FileFacts
	Grid  *GridEnvelope
}

// Client 抽取服务 RPC 封装, 带熔断保护
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewClient 创建抽取客户端
func NewClient(cfg conf.ExtractionConfig, logger *zap.Logger) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     logger,
	}
	if cfg.BreakerEnabled {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "extraction-service",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("extraction breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
	return c
}

// ApplyTemplate 对 (workspace, field) 的一个批次执行抽取
func (c *Client) ApplyTemplate(ctx context.Context, req *ApplyTemplateRequest) (*ApplyTemplateResponse, error) {
	start := time.Now()
	call := func() (any, error) {
		return c.doApplyTemplate(ctx, req)
	}

	var (
		result any
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.Execute(call)
	} else {
		result, err = call()
	}
	monitoring.ExtractionRPCDuration.
		WithLabelValues(strconv.FormatBool(req.AdHoc)).
		Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return result.(*ApplyTemplateResponse), nil
}

func (c *Client) doApplyTemplate(ctx context.Context, req *ApplyTemplateRequest) (*ApplyTemplateResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal apply_template request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/apply_template", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build apply_template request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("extraction rpc: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction rpc status %d: %s", resp.StatusCode, truncate(body, 512))
	}
	return decodeResponse(body)
}

// decodeResponse 区分数组 (文件事实) 与对象 (网格信封) 两种形状
func decodeResponse(body []byte) (*ApplyTemplateResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &ApplyTemplateResponse{}, nil
	}
	if trimmed[0] == '[' {
		var facts []FileFacts
		if err := json.Unmarshal(trimmed, &facts); err != nil {
			return nil, fmt.Errorf("decode fact list: %w", err)
		}
		return &ApplyTemplateResponse{Facts: facts}, nil
	}
	var grid GridEnvelope
	if err := json.Unmarshal(trimmed, &grid); err != nil {
		return nil, fmt.Errorf("decode grid envelope: %w", err)
	}
	return &ApplyTemplateResponse{Grid: &grid}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
