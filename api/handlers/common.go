package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/arvalo/arvalo/agent"
	"github.com/arvalo/arvalo/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 头已写出，编码失败只能放弃
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	writeFailure(w, err, nil, logger)
}

// writeFailure 写入错误响应，data 可携带部分结果（例如失败的执行结果）
func writeFailure(w http.ResponseWriter, err *types.Error, data any, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	if logger != nil {
		level := logger.Warn
		if status >= http.StatusInternalServerError {
			level = logger.Error
		}
		level("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Data:    data,
		Error: &ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest, types.ErrToolValidation:
		return http.StatusBadRequest
	case types.ErrAuthentication:
		return http.StatusUnauthorized
	case types.ErrAgentNotFound, types.ErrToolNotFound, types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrInvalidTransition:
		return http.StatusConflict
	case types.ErrContextTooLong:
		return http.StatusRequestEntityTooLarge
	case types.ErrMalformedAnswer:
		return http.StatusUnprocessableEntity
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrModelOverloaded, types.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// resultError 把失败的执行结果映射为 API 错误
func resultError(res *agent.Result) *types.Error {
	var code types.ErrorCode
	switch res.ErrorKind {
	case agent.ErrorKindInvalidInput:
		code = types.ErrInvalidRequest
	case agent.ErrorKindTimeout:
		code = types.ErrTimeout
	case agent.ErrorKindCanceled:
		code = types.ErrServiceUnavailable
	case agent.ErrorKindModel:
		code = types.ErrUpstreamError
	case agent.ErrorKindMalformedAnswer:
		code = types.ErrMalformedAnswer
	default:
		code = types.ErrInternalError
	}
	return types.NewError(code, res.Error).
		WithRetryable(code == types.ErrTimeout || code == types.ErrUpstreamError)
}

// writeResult 成功结果写 200，失败结果按错误类别映射状态码并附带结果本身
func writeResult(w http.ResponseWriter, res *agent.Result, logger *zap.Logger) {
	if res.Success {
		WriteSuccess(w, res)
		return
	}
	writeFailure(w, resultError(res), res, logger)
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// errEmptyBody 请求体为空
var errEmptyBody = errors.New("request body is empty")

// DecodeJSONBody 解码 JSON 请求体，拒绝未知字段。失败时已写出错误响应。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		WriteError(w, types.NewInvalidRequestError(errEmptyBody.Error()), logger)
		return errEmptyBody
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, types.NewError(types.ErrContextTooLong, "request body too large").WithCause(err), logger)
			return err
		}
		WriteError(w, types.NewInvalidRequestError("invalid JSON body").WithCause(err), logger)
		return err
	}
	return nil
}

// queryInt 读取整数查询参数，缺省或非法时返回 def
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
