// Package ai OpenAI 兼容接口的改写、打分与标题改写客户端
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/LJTian/NewsCurator/internal/config"
	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/LJTian/NewsCurator/internal/retry"
)

const (
	remixCount         = 3
	scoreBodyRunes     = 800
	remixBodyRunes     = 500
	maxResponseBytes   = 1 << 20
	defaultHTTPTimeout = 30 * time.Second
)

var errMisconfigured = errors.New("openai client misconfigured")

// Client 基于 chat completions 接口；只做单次调用，重试由调用方负责
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Rewrite 面向普通读者改写正文
func (c *Client) Rewrite(ctx context.Context, title, body string) (string, error) {
	prompt := fmt.Sprintf("Rewrite the following news article for a general audience. "+
		"Keep it concise, informative, and engaging.\n\nTitle: %s\n\nArticle: %s", title, body)
	return c.complete(ctx, prompt, 0.7, 800)
}

// Score 返回 relevance / vibe / viral 三项分数，不做范围修正
func (c *Client) Score(ctx context.Context, title, body, source string) (models.ScoreSet, error) {
	prompt := fmt.Sprintf(`You're an editorial assistant for a rebellious Gen Z aviation brand.

Analyze this news article and give 3 scores (0-100):

1. Relevance - Is it useful, timely, and impactful for the aviation community?
2. Vibe - Does it match our tone (sarcastic, rebellious, punchy)?
3. Virality - Could it spread on social, spark strong reactions, or memes?

Respond only with JSON like:
{"score_relevance": 0-100, "score_vibe": 0-100, "score_viral": 0-100}

Article:
Source: %s
Title: %s
Body: %s`, source, title, headRunes(body, scoreBodyRunes))

	out, err := c.complete(ctx, prompt, 0.3, 150)
	if err != nil {
		return models.ScoreSet{}, err
	}
	return parseScores(out)
}

// RemixHeadlines 生成三个候选标题
func (c *Client) RemixHeadlines(ctx context.Context, title, body string) ([]string, error) {
	prompt := fmt.Sprintf(`You're a rebellious Gen Z aviation editor with a sharp, sarcastic voice.

Original headline: "%s"
Context: %s...

Create 3 bold, punchy headline variations. Make them attention-grabbing, professional but with attitude,
and no more than 80 characters each.

Return exactly 3 headlines, one per line, no numbering or bullets.`, title, headRunes(body, remixBodyRunes))

	out, err := c.complete(ctx, prompt, 0.8, 150)
	if err != nil {
		return nil, err
	}
	return splitHeadlines(out, title), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", retry.Permanent(errMisconfigured)
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal chat payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("openai error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		// 429 与 5xx 可重试，其余 4xx 直接失败
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < http.StatusInternalServerError {
			return "", retry.Permanent(err)
		}
		return "", err
	}

	var cr chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty chat response")
	}
	return content, nil
}

func parseScores(content string) (models.ScoreSet, error) {
	content = stripCodeFence(content)
	var raw struct {
		Relevance *int `json:"score_relevance"`
		Vibe      *int `json:"score_vibe"`
		Viral     *int `json:"score_viral"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return models.ScoreSet{}, fmt.Errorf("parse scoring response: %w", err)
	}
	if raw.Relevance == nil || raw.Vibe == nil || raw.Viral == nil {
		return models.ScoreSet{}, fmt.Errorf("scoring response missing fields: %s", content)
	}
	return models.ScoreSet{Relevance: *raw.Relevance, Vibe: *raw.Vibe, Viral: *raw.Viral}, nil
}

// stripCodeFence 去掉模型偶尔包裹的 ```json 代码块
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)

func splitHeadlines(content, title string) []string {
	out := make([]string, 0, remixCount)
	for _, line := range strings.Split(content, "\n") {
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.TrimSpace(strings.Trim(line, `"`))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == remixCount {
			return out
		}
	}
	for len(out) < remixCount {
		out = append(out, fmt.Sprintf("Remix %d: %s", len(out)+1, title))
	}
	return out
}

func headRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
