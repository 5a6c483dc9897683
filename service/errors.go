package service

import (
	"errors"
	"fmt"
)

// 错误分类：流水线和 HTTP 层按类别决定状态码与对用户的提示文案，
// 上游原始报错只进日志，不原样透给用户。
// 分镜素材失败不设哨兵错误：它从不向上传播，以 scene.status=failed
// 落库并记日志（见 media.go GenerateScene）。
var (
	ErrAuthRequired    = errors.New("auth required")
	ErrRateLimited     = errors.New("rate limited")     // 上游 429
	ErrQuotaExceeded   = errors.New("quota exceeded")   // 上游 402
	ErrMalformedOutput = errors.New("malformed output") // 脚本解析失败
	ErrRenderFailed    = errors.New("render failed")    // 渲染终态 failed
	ErrRenderTimeout   = errors.New("render timeout")   // 轮询超出上限
	ErrUpstreamError   = errors.New("upstream error")   // 其他非 2xx
)

// InsufficientCreditsError 余额不足，携带需求与当前余额
type InsufficientCreditsError struct {
	Required  int `json:"required"`
	Available int `json:"available"`
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// PersistenceError 数据库写入失败（流水线致命错误）
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error on %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UserMessage 错误类别 -> 用户可读文案
func UserMessage(err error) string {
	var ic *InsufficientCreditsError
	switch {
	case errors.As(err, &ic):
		return fmt.Sprintf("Insufficient credits: you need %d credits, current balance is %d. Please add credits.", ic.Required, ic.Available)
	case errors.Is(err, ErrAuthRequired):
		return "Not authenticated"
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded. Please try again later."
	case errors.Is(err, ErrQuotaExceeded):
		return "Payment required. Please add credits to continue."
	case errors.Is(err, ErrMalformedOutput):
		return "Failed to parse script from AI response"
	case errors.Is(err, ErrRenderFailed):
		return "Video render failed"
	case errors.Is(err, ErrRenderTimeout):
		return "Video render timed out"
	default:
		return "Failed to generate video"
	}
}
