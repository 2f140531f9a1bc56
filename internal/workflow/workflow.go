// Package workflow 编辑流程状态机：
//
//	new --select--> selected --edit--> edited --post--> posted
//	edited --edit--> edited, posted --select--> selected
//
// 另有独立的 draft 通道：selected/edited/draft --draft--> draft，draft 可再 select 或 edit。
// 非法动作返回 *models.TransitionError，文章保持不变。
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/LJTian/NewsCurator/internal/retry"
	"github.com/LJTian/NewsCurator/internal/storage"
	"github.com/rs/zerolog"
)

type Action string

const (
	ActionSelect Action = "select"
	ActionEdit   Action = "edit"
	ActionPost   Action = "post"
	ActionDraft  Action = "draft"
)

// edges 每个动作允许的起始状态
var edges = map[Action][]models.Status{
	ActionSelect: {models.StatusNew, models.StatusPosted, models.StatusDraft},
	ActionEdit:   {models.StatusSelected, models.StatusEdited, models.StatusDraft},
	ActionPost:   {models.StatusEdited},
	ActionDraft:  {models.StatusSelected, models.StatusEdited, models.StatusDraft},
}

var targets = map[Action]models.Status{
	ActionSelect: models.StatusSelected,
	ActionEdit:   models.StatusEdited,
	ActionPost:   models.StatusPosted,
	ActionDraft:  models.StatusDraft,
}

// CanApply 判断 from 状态下是否存在该动作的边
func CanApply(from models.Status, action Action) bool {
	for _, s := range edges[action] {
		if s == from {
			return true
		}
	}
	return false
}

type Rewriter interface {
	Rewrite(ctx context.Context, title, body string) (string, error)
}

type HeadlineRemixer interface {
	RemixHeadlines(ctx context.Context, title, body string) ([]string, error)
}

type Publisher interface {
	Publish(ctx context.Context, ch models.Channel, payload []byte) error
}

type Formatter interface {
	Format(a models.Article) ([]byte, error)
}

type Deps struct {
	Rewriter  Rewriter
	Remixer   HeadlineRemixer
	Publisher Publisher
	Formatter Formatter
}

type Engine struct {
	store  storage.ArticleStore
	deps   Deps
	policy retry.Policy
	log    zerolog.Logger
}

func New(store storage.ArticleStore, deps Deps, policy retry.Policy, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		deps:   deps,
		policy: policy,
		log:    log.With().Str("component", "workflow").Logger(),
	}
}

// transitionPatch 以状态为前置条件的 compare-and-set
func transitionPatch(action Action) models.Patch {
	to := targets[action]
	return models.Patch{
		AllowedFrom: edges[action],
		Action:      string(action),
		Status:      &to,
	}
}

func (e *Engine) Select(ctx context.Context, id string) (models.Article, error) {
	a, err := e.store.Update(ctx, id, transitionPatch(ActionSelect))
	if err != nil {
		return models.Article{}, err
	}
	e.log.Info().Str("id", id).Msg("article selected")
	return a, nil
}

// Edit 调用 AI 改写正文；AI 失败时状态不变
func (e *Engine) Edit(ctx context.Context, id string) (models.Article, error) {
	cur, err := e.load(ctx, id, ActionEdit)
	if err != nil {
		return models.Article{}, err
	}

	var body string
	err = retry.Do(ctx, e.policy, "ai-rewrite", e.log, func(ctx context.Context) error {
		out, err := e.deps.Rewriter.Rewrite(ctx, cur.DisplayTitle(), cur.Body)
		if err != nil {
			return err
		}
		body = out
		return nil
	})
	if err != nil {
		e.log.Error().Err(err).Str("id", id).Msg("rewrite failed, article unchanged")
		return models.Article{}, err
	}

	p := transitionPatch(ActionEdit)
	p.Body = &body
	a, err := e.store.Update(ctx, id, p)
	if err != nil {
		return models.Article{}, err
	}
	e.log.Info().Str("id", id).Msg("article edited")
	return a, nil
}

// SaveDraft 保存未完成稿件，customTitle / body 为 nil 时保持原值
func (e *Engine) SaveDraft(ctx context.Context, id string, customTitle, body *string) (models.Article, error) {
	p := transitionPatch(ActionDraft)
	p.CustomTitle = customTitle
	p.Body = body
	a, err := e.store.Update(ctx, id, p)
	if err != nil {
		return models.Article{}, err
	}
	e.log.Info().Str("id", id).Msg("draft saved")
	return a, nil
}

// SetCustomTitle 任意状态均可设置，不影响去重指纹
func (e *Engine) SetCustomTitle(ctx context.Context, id, title string) (models.Article, error) {
	return e.store.Update(ctx, id, models.Patch{Action: "set_title", CustomTitle: &title})
}

// RemixHeadlines 生成候选标题，不改变文章
func (e *Engine) RemixHeadlines(ctx context.Context, id string) ([]string, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []string
	err = retry.Do(ctx, e.policy, "ai-remix", e.log, func(ctx context.Context) error {
		h, err := e.deps.Remixer.RemixHeadlines(ctx, a.Title, a.Body)
		if err != nil {
			return err
		}
		out = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChannelResult 单个渠道的发布结果
type ChannelResult struct {
	Channel models.Channel `json:"channel"`
	OK      bool           `json:"ok"`
	Error   string         `json:"error,omitempty"`
}

type PostReport struct {
	ArticleID string          `json:"article_id"`
	Posted    bool            `json:"posted"`
	Results   []ChannelResult `json:"results"`
	Article   models.Article  `json:"article"`
}

// Post 向各渠道发布；至少一个渠道成功即进入 posted，失败渠道逐一记录。
// channels 为空时使用推荐渠道（去掉 manual_review）。
func (e *Engine) Post(ctx context.Context, id string, channels ...models.Channel) (*PostReport, error) {
	cur, err := e.load(ctx, id, ActionPost)
	if err != nil {
		return nil, err
	}

	report := &PostReport{ArticleID: id}
	if len(channels) == 0 {
		channels = cur.TargetChannels
	}
	publishTo := make([]models.Channel, 0, len(channels))
	seen := make(map[models.Channel]struct{}, len(channels))
	for _, ch := range channels {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		if ch == models.ChannelManualReview {
			continue
		}
		if !ch.Publishable() {
			report.Results = append(report.Results, ChannelResult{Channel: ch, Error: "unknown channel"})
			continue
		}
		publishTo = append(publishTo, ch)
	}
	if len(publishTo) == 0 {
		return report, fmt.Errorf("post %s: %w", id, models.ErrNoChannels)
	}

	payload, err := e.deps.Formatter.Format(cur)
	if err != nil {
		return report, fmt.Errorf("format %s: %w", id, err)
	}

	var failures []error
	for _, ch := range publishTo {
		err := retry.Do(ctx, e.policy, "publish-"+string(ch), e.log, func(ctx context.Context) error {
			return e.deps.Publisher.Publish(ctx, ch, payload)
		})
		if err != nil {
			e.log.Warn().Err(err).Str("id", id).Str("channel", string(ch)).Msg("publish failed")
			report.Results = append(report.Results, ChannelResult{Channel: ch, Error: err.Error()})
			failures = append(failures, err)
			continue
		}
		report.Results = append(report.Results, ChannelResult{Channel: ch, OK: true})
	}

	if len(failures) == len(publishTo) {
		return report, &models.ExternalServiceError{
			Service:  "publish",
			Channels: len(publishTo),
			Err:      errors.Join(failures...),
		}
	}

	a, err := e.store.Update(ctx, id, transitionPatch(ActionPost))
	if err != nil {
		return report, err
	}
	report.Posted = true
	report.Article = a
	e.log.Info().Str("id", id).Int("channels_ok", len(publishTo)-len(failures)).Int("channels_failed", len(failures)).Msg("article posted")
	return report, nil
}

// load 外部调用前先检查状态，避免无效动作触发 AI / 发布
func (e *Engine) load(ctx context.Context, id string, action Action) (models.Article, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return models.Article{}, err
	}
	if !CanApply(a.Status, action) {
		return models.Article{}, &models.TransitionError{ArticleID: id, From: a.Status, Action: string(action)}
	}
	return a, nil
}
