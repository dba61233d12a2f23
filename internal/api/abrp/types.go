package abrp

// Outcome 推送的最终分类结果
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"            // HTTP 200 且 API 报告 ok
	OutcomeAPIRejected       Outcome = "api_rejected"       // HTTP 200 但 API 报告失败
	OutcomeMalformedResponse Outcome = "malformed_response" // HTTP 200 但响应体缺少 status 或无法解析
	OutcomeHTTPError         Outcome = "http_error"         // 非 200 状态码
	OutcomeTransportError    Outcome = "transport_error"    // 重试耗尽后的网络层失败
)

// PushResult 一次遥测推送的终态，重试对调用方透明
type PushResult struct {
	Outcome    Outcome
	StatusCode int
	Missing    []string // API 报告的未识别/忽略字段
	Err        error
}

// Success 推送是否成功
func (r PushResult) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// sendResponse tlm/send 的响应体
type sendResponse struct {
	Status  *string  `json:"status"`
	Missing []string `json:"missing"`
}

// nextChargeResponse tlm/get_next_charge 的响应体
type nextChargeResponse struct {
	Status     *string  `json:"status"`
	NextCharge *float64 `json:"next_charge"`
}
