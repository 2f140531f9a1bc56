package models

import (
	"errors"
	"strings"
	"time"
)

var errEmptyTitle = errors.New("title must not be empty")

// Patch 字段级的部分更新；nil 字段保持原值。
// 推荐字段不能直接写，只能通过 Derive 由分发规则重新计算。
type Patch struct {
	// AllowedFrom 非空时作为前置条件：当前状态必须在其中，否则整个 Patch 拒绝
	AllowedFrom []Status
	// Action 仅用于生成 TransitionError
	Action string

	Status      *Status
	Title       *string
	CustomTitle *string
	Body        *string

	Relevance *int
	Vibe      *int
	Viral     *int

	// Derive 在合并完成后调用，用于同步重新计算派生字段
	Derive func(a *Article)
}

// TouchesScores 是否包含分数字段
func (p Patch) TouchesScores() bool {
	return p.Relevance != nil || p.Vibe != nil || p.Viral != nil
}

// Validate 在不修改任何数据的前提下检查 Patch 本身
func (p Patch) Validate() error {
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"relevance", p.Relevance},
		{"vibe", p.Vibe},
		{"viral", p.Viral},
	} {
		if f.v == nil {
			continue
		}
		if err := ValidateScore(f.name, *f.v); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return &TransitionError{From: *p.Status, Action: p.Action}
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errEmptyTitle
	}
	return nil
}

// Apply 将 Patch 合并到 a。任一校验失败时 a 保持不变。
func (p Patch) Apply(a *Article, now time.Time) error {
	if len(p.AllowedFrom) > 0 && !containsStatus(p.AllowedFrom, a.Status) {
		return &TransitionError{ArticleID: a.ID, From: a.Status, Action: p.Action}
	}
	if err := p.Validate(); err != nil {
		if te, ok := err.(*TransitionError); ok {
			te.ArticleID = a.ID
		}
		return err
	}

	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Title != nil {
		a.Title = strings.TrimSpace(*p.Title)
		a.DedupFingerprint = Fingerprint(a.Title)
	}
	if p.CustomTitle != nil {
		a.CustomTitle = cloneString(p.CustomTitle)
	}
	if p.Body != nil {
		a.Body = *p.Body
	}
	if p.Relevance != nil {
		a.Relevance = cloneInt(p.Relevance)
	}
	if p.Vibe != nil {
		a.Vibe = cloneInt(p.Vibe)
	}
	if p.Viral != nil {
		a.Viral = cloneInt(p.Viral)
	}
	if p.Derive != nil {
		p.Derive(a)
	}
	a.UpdatedAt = now
	return nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
