package models

import "time"

// Status 编辑流程中的文章状态
type Status string

const (
	StatusNew      Status = "new"
	StatusSelected Status = "selected"
	StatusEdited   Status = "edited"
	StatusPosted   Status = "posted"
	// StatusDraft 手动保存的未完成稿件，不在主链路上
	StatusDraft Status = "draft"
)

// Valid 判断是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusSelected, StatusEdited, StatusPosted, StatusDraft:
		return true
	}
	return false
}

// Channel 分发渠道
type Channel string

const (
	ChannelSlack        Channel = "slack"
	ChannelFigma        Channel = "figma"
	ChannelWhatsApp     Channel = "whatsapp"
	ChannelManualReview Channel = "manual_review"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelSlack, ChannelFigma, ChannelWhatsApp, ChannelManualReview:
		return true
	}
	return false
}

// Publishable manual_review 只是“需要人工审核”的标记，不能真正发布
func (c Channel) Publishable() bool {
	return c.Valid() && c != ChannelManualReview
}

// Priority 分发紧急程度
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Recommendation 由分发规则计算得出，禁止手工修改
type Recommendation struct {
	TargetChannels []Channel `json:"target_channels"`
	AutoPost       bool      `json:"auto_post"`
	Priority       Priority  `json:"priority"`
}

// DefaultRecommendation 尚未打分（或分数不全）时的推荐
func DefaultRecommendation() Recommendation {
	return Recommendation{
		TargetChannels: []Channel{ChannelManualReview},
		AutoPost:       false,
		Priority:       PriorityLow,
	}
}

// HasChannel 判断推荐渠道中是否包含 ch
func (r Recommendation) HasChannel(ch Channel) bool {
	for _, c := range r.TargetChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// Scores 三个维度的分数，nil 表示尚未打分
type Scores struct {
	Relevance *int `json:"score_relevance,omitempty"`
	Vibe      *int `json:"score_vibe,omitempty"`
	Viral     *int `json:"score_viral,omitempty"`
}

// ScoreSet AI 打分服务一次返回的三项分数
type ScoreSet struct {
	Relevance int `json:"score_relevance"`
	Vibe      int `json:"score_vibe"`
	Viral     int `json:"score_viral"`
}

// Complete 三个分数是否都已存在
func (s Scores) Complete() bool {
	return s.Relevance != nil && s.Vibe != nil && s.Viral != nil
}

// Article 是整个系统的核心实体
type Article struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CustomTitle   *string   `json:"custom_title,omitempty"`
	Body          string    `json:"body"`
	CanonicalLink string    `json:"canonical_link"`
	SourceName    string    `json:"source_name"`
	PublishedAt   time.Time `json:"published_at"`
	IngestedAt    time.Time `json:"ingested_at"`
	Status        Status    `json:"status"`

	Scores
	Recommendation

	DedupFingerprint string    `json:"dedup_fingerprint"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DisplayTitle 有自定义标题时优先使用
func (a Article) DisplayTitle() string {
	if a.CustomTitle != nil && *a.CustomTitle != "" {
		return *a.CustomTitle
	}
	return a.Title
}

// Clone 深拷贝，存储层对外只返回副本
func (a Article) Clone() Article {
	out := a
	out.CustomTitle = cloneString(a.CustomTitle)
	out.Relevance = cloneInt(a.Relevance)
	out.Vibe = cloneInt(a.Vibe)
	out.Viral = cloneInt(a.Viral)
	if a.TargetChannels != nil {
		out.TargetChannels = append([]Channel(nil), a.TargetChannels...)
	}
	return out
}

// RawItem 数据源适配器返回的原始条目
type RawItem struct {
	Title       string
	Body        string
	Link        string
	PublishedAt time.Time
	SourceName  string
}

// Skip 记录被丢弃的候选及原因，供审计
type Skip struct {
	CandidateID string `json:"candidate_id,omitempty"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	SourceName  string `json:"source_name"`
	Reason      string `json:"reason"`
}

const (
	SkipIncomplete      = "incomplete"
	skipDuplicatePrefix = "duplicate_of:"
)

// DuplicateOf 生成重复跳过原因
func DuplicateOf(id string) string {
	return skipDuplicatePrefix + id
}

// IntPtr 便捷构造
func IntPtr(v int) *int { return &v }

// StringPtr 便捷构造
func StringPtr(v string) *string { return &v }

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
