package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("article not found")
	ErrDuplicateID       = errors.New("article id already exists")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidScoreValue = errors.New("invalid score value")
	ErrExternalService   = errors.New("external service error")
	ErrNoChannels        = errors.New("no publishable channels")
)

// TransitionError 状态机拒绝的动作
type TransitionError struct {
	ArticleID string
	From      Status
	Action    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s article %s from status %q", e.Action, e.ArticleID, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ScoreError 分数字段校验失败
type ScoreError struct {
	Field string
	Value int
	Msg   string
}

func (e *ScoreError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("invalid score value: %s", e.Msg)
	}
	return fmt.Sprintf("invalid score value: %s=%d, want 0..100", e.Field, e.Value)
}

func (e *ScoreError) Is(target error) bool { return target == ErrInvalidScoreValue }

// AdapterFetchError 单个数据源抓取失败，不影响其它数据源
type AdapterFetchError struct {
	Source string
	Err    error
}

func (e *AdapterFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *AdapterFetchError) Unwrap() error { return e.Err }

// ExternalServiceError AI / 发布服务在重试后仍然失败。
// Channels 非零时表示一次发布在全部渠道上都失败了，此时 Attempts 不适用。
type ExternalServiceError struct {
	Service  string
	Attempts int
	Channels int
	Err      error
}

func (e *ExternalServiceError) Error() string {
	if e.Channels > 0 {
		return fmt.Sprintf("%s failed on all %d channel(s): %v", e.Service, e.Channels, e.Err)
	}
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Service, e.Attempts, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) Is(target error) bool { return target == ErrExternalService }

// ValidateScore 单个分数必须在 [0,100]
func ValidateScore(field string, v int) error {
	if v < 0 || v > 100 {
		return &ScoreError{Field: field, Value: v}
	}
	return nil
}
