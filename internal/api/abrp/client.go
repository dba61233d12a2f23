package abrp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/langchou/abrpsync/internal/telemetry"
)

const (
	// DefaultBaseURL Iternio ABRP 遥测 API 地址
	DefaultBaseURL = "https://api.iternio.com/1/"

	// 标识本应用的固定 API key（随令牌一起鉴权）
	apiKeyIdentifier = "6225724a-65fb-4d4c-9ac5-d7dff2b78c1d"

	userAgent = "abrpsync/1.0"

	// 瞬时失败的自动重试策略
	maxRetries     = 3
	retryBaseDelay = 100 * time.Millisecond
)

// ErrNotOK API 报告非 ok 状态
var ErrNotOK = fmt.Errorf("api status not ok")

// Client ABRP API 客户端。
// 除共享的 HTTP 传输外无状态，可被单个 worker 串行复用。
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient 创建新的 ABRP API 客户端，baseURL 为空时使用官方地址
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
	}
}

// Push 推送遥测记录并分类最终结果。
// 网络失败与 500/502/503/504 自动重试（指数退避），只返回终态。
func (c *Client) Push(ctx context.Context, token string, record telemetry.Record) PushResult {
	payload := map[string]any{"tlm": record}

	statusCode, body, err := c.post(ctx, "tlm/send", token, payload)
	if err != nil {
		return PushResult{Outcome: OutcomeTransportError, Err: err}
	}
	if statusCode != http.StatusOK {
		return PushResult{
			Outcome:    OutcomeHTTPError,
			StatusCode: statusCode,
			Err:        fmt.Errorf("send telemetry: status=%d", statusCode),
		}
	}

	var resp sendResponse
	if len(body) == 0 || json.Unmarshal(body, &resp) != nil || resp.Status == nil {
		return PushResult{
			Outcome:    OutcomeMalformedResponse,
			StatusCode: statusCode,
			Err:        fmt.Errorf("send telemetry: unexpected response body %q", body),
		}
	}

	if *resp.Status != "ok" {
		return PushResult{
			Outcome:    OutcomeAPIRejected,
			StatusCode: statusCode,
			Missing:    resp.Missing,
			Err:        fmt.Errorf("send telemetry: %w (status %q)", ErrNotOK, *resp.Status),
		}
	}

	return PushResult{
		Outcome:    OutcomeSuccess,
		StatusCode: statusCode,
		Missing:    resp.Missing,
	}
}

// FetchNextCharge 查询下次计划充电目标电量。
// 只有 HTTP 200 且 API 报告 ok 且 next_charge 非空才返回值；
// 查询结果不影响连接状态。
func (c *Client) FetchNextCharge(ctx context.Context, token string) (*float64, error) {
	statusCode, body, err := c.post(ctx, "tlm/get_next_charge", token, nil)
	if err != nil {
		return nil, fmt.Errorf("get next charge: %w", err)
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("get next charge: status=%d", statusCode)
	}

	var resp nextChargeResponse
	if len(body) == 0 || json.Unmarshal(body, &resp) != nil || resp.Status == nil {
		return nil, fmt.Errorf("get next charge: unexpected response body %q", body)
	}
	if *resp.Status != "ok" {
		return nil, fmt.Errorf("get next charge: %w (status %q)", ErrNotOK, *resp.Status)
	}

	return resp.NextCharge, nil
}

// post 执行带重试的请求，令牌通过查询参数携带。
// 返回最后一次尝试的状态码和响应体；重试耗尽仍未得到响应时返回错误。
func (c *Client) post(ctx context.Context, endpoint, token string, payload any) (int, []byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal payload: %w", err)
		}
	}

	requestURL := c.baseURL + endpoint + "?token=" + url.QueryEscape(token)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
		if err != nil {
			return 0, nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Language", "en-en")
		req.Header.Set("Authorization", "APIKEY "+apiKeyIdentifier)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt < maxRetries {
			lastErr = fmt.Errorf("status=%d", resp.StatusCode)
			continue
		}

		return resp.StatusCode, data, nil
	}

	return 0, nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

// retryableStatus 瞬时的服务端错误
func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
