// Package mocks 测试用的外部协作方替身
package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
)

// Fetcher 数据源替身；Delay 用于模拟卡住的数据源
type Fetcher struct {
	NameValue string
	Items     []models.RawItem
	Err       error
	Delay     time.Duration
	// IgnoreContext 为 true 时 Delay 期间不响应取消
	IgnoreContext bool
	PanicWith     any

	mu    sync.Mutex
	calls int
}

func (f *Fetcher) Name() string { return f.NameValue }

func (f *Fetcher) Fetch(ctx context.Context) ([]models.RawItem, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.PanicWith != nil {
		panic(f.PanicWith)
	}
	if f.Delay > 0 {
		if f.IgnoreContext {
			time.Sleep(f.Delay)
		} else {
			select {
			case <-time.After(f.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]models.RawItem, len(f.Items))
	copy(out, f.Items)
	return out, nil
}

func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// AI 改写、标题改写与打分的替身
type AI struct {
	RewriteFunc func(ctx context.Context, title, body string) (string, error)
	RemixFunc   func(ctx context.Context, title, body string) ([]string, error)
	ScoreFunc   func(ctx context.Context, title, body, source string) (models.ScoreSet, error)

	mu           sync.Mutex
	RewriteCalls int
	ScoreCalls   int
}

func NewAI() *AI {
	return &AI{}
}

func (m *AI) Rewrite(ctx context.Context, title, body string) (string, error) {
	m.mu.Lock()
	m.RewriteCalls++
	m.mu.Unlock()
	if m.RewriteFunc != nil {
		return m.RewriteFunc(ctx, title, body)
	}
	return "rewritten: " + body, nil
}

func (m *AI) RemixHeadlines(ctx context.Context, title, body string) ([]string, error) {
	if m.RemixFunc != nil {
		return m.RemixFunc(ctx, title, body)
	}
	return []string{title + " (1)", title + " (2)", title + " (3)"}, nil
}

func (m *AI) Score(ctx context.Context, title, body, source string) (models.ScoreSet, error) {
	m.mu.Lock()
	m.ScoreCalls++
	m.mu.Unlock()
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, title, body, source)
	}
	return models.ScoreSet{Relevance: 50, Vibe: 50, Viral: 50}, nil
}

// Publisher 记录每个渠道收到的 payload；Fail 中的渠道返回错误
type Publisher struct {
	Fail map[models.Channel]error

	mu        sync.Mutex
	Published map[models.Channel][][]byte
}

func NewPublisher() *Publisher {
	return &Publisher{
		Fail:      make(map[models.Channel]error),
		Published: make(map[models.Channel][][]byte),
	}
}

func (p *Publisher) Publish(ctx context.Context, ch models.Channel, payload []byte) error {
	if err := p.Fail[ch]; err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published[ch] = append(p.Published[ch], payload)
	return nil
}

func (p *Publisher) Count(ch models.Channel) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Published[ch])
}

// Formatter 直接输出文章 JSON
type Formatter struct{}

func (Formatter) Format(a models.Article) ([]byte, error) {
	return json.Marshal(map[string]string{
		"title": a.DisplayTitle(),
		"link":  a.CanonicalLink,
	})
}
