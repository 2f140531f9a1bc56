package processor

import (
	"strings"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxTitleRunes = 512
	maxBodyRunes  = 20000
)

// Normalizer 把原始条目转换为待去重的候选文章
type Normalizer struct {
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

func NewNormalizer(log zerolog.Logger) *Normalizer {
	return &Normalizer{
		now:   time.Now,
		newID: uuid.NewString,
		log:   log.With().Str("component", "normalizer").Logger(),
	}
}

// WithClock 替换时钟，便于测试
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Process 标题或链接为空、或标题只含符号（指纹为空）的条目被丢弃并记录原因 incomplete
func (n *Normalizer) Process(items []models.RawItem) ([]models.Article, []models.Skip) {
	out := make([]models.Article, 0, len(items))
	var skips []models.Skip
	ingested := n.now().UTC()

	for _, it := range items {
		title := truncateRunes(collapseSpaces(it.Title), maxTitleRunes)
		link := strings.TrimSpace(it.Link)
		source := strings.TrimSpace(it.SourceName)

		fingerprint := models.Fingerprint(title)
		if fingerprint == "" || link == "" {
			n.log.Debug().Str("source", source).Str("title", title).Str("link", link).Msg("drop incomplete item")
			skips = append(skips, models.Skip{
				Title:      title,
				Link:       link,
				SourceName: source,
				Reason:     models.SkipIncomplete,
			})
			continue
		}

		published := it.PublishedAt
		if published.IsZero() {
			published = ingested
		}

		out = append(out, models.Article{
			ID:               n.newID(),
			Title:            title,
			Body:             truncateRunes(strings.TrimSpace(it.Body), maxBodyRunes),
			CanonicalLink:    link,
			SourceName:       source,
			PublishedAt:      published.UTC(),
			IngestedAt:       ingested,
			Status:           models.StatusNew,
			Recommendation:   models.DefaultRecommendation(),
			DedupFingerprint: fingerprint,
			UpdatedAt:        ingested,
		})
	}

	return out, skips
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes 按 rune 截断，避免截断多字节字符
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return strings.TrimSpace(string(rs[:limit]))
}
