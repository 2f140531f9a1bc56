// Package publish 发布渠道：把已编辑的文章推送到 Slack / Figma / WhatsApp 的 webhook
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LJTian/NewsCurator/internal/config"
	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/LJTian/NewsCurator/internal/retry"
)

// WebhookPublisher 每个渠道一个 webhook 地址，JSON POST，非 2xx 视为失败
type WebhookPublisher struct {
	urls   map[models.Channel]string
	client *http.Client
}

func NewWebhookPublisher(cfg config.WebhookConfig) *WebhookPublisher {
	return &WebhookPublisher{
		urls: map[models.Channel]string{
			models.ChannelSlack:    cfg.Slack,
			models.ChannelFigma:    cfg.Figma,
			models.ChannelWhatsApp: cfg.WhatsApp,
		},
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, ch models.Channel, payload []byte) error {
	if !ch.Publishable() {
		return retry.Permanent(fmt.Errorf("channel %q is not publishable", ch))
	}
	endpoint := p.urls[ch]
	if endpoint == "" {
		return retry.Permanent(fmt.Errorf("webhook for channel %q not configured", ch))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s webhook: %w", ch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s webhook error %s: %s", ch, resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

const (
	slackHeaderMax  = 150
	slackSectionMax = 3000
)

// BlockFormatter 生成 Slack block-kit 消息
type BlockFormatter struct{}

type block struct {
	Type     string      `json:"type"`
	Text     *blockText  `json:"text,omitempty"`
	Elements []blockText `json:"elements,omitempty"`
}

type blockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (BlockFormatter) Format(a models.Article) ([]byte, error) {
	body := strings.TrimSpace(a.Body)
	if body == "" {
		body = "No content available."
	}

	blocks := []block{
		{Type: "header", Text: &blockText{Type: "plain_text", Text: clip(":newspaper: "+a.DisplayTitle(), slackHeaderMax)}},
		{Type: "section", Text: &blockText{Type: "mrkdwn", Text: clip(body, slackSectionMax)}},
		{Type: "context", Elements: []blockText{{
			Type: "mrkdwn",
			Text: fmt.Sprintf("Source: *%s* | <%s|Read Original>", a.SourceName, a.CanonicalLink),
		}}},
	}
	return json.Marshal(map[string]any{
		"text":   a.DisplayTitle(),
		"blocks": blocks,
	})
}

func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
