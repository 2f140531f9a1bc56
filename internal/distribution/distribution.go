// Package distribution 根据三项分数计算分发推荐。纯函数，无状态，无外部调用。
package distribution

import "github.com/LJTian/NewsCurator/internal/models"

const (
	highThreshold     = 85
	mediumMeanMin     = 60
	slackMin          = 60
	figmaMin          = 70
	whatsappMin       = 80
	manualReviewBelow = 40
)

// Recommend 相同输入永远得到相同输出
func Recommend(relevance, vibe, viral int) models.Recommendation {
	priority := models.PriorityLow
	switch {
	case relevance >= highThreshold || viral >= highThreshold:
		priority = models.PriorityHigh
	case relevance+vibe+viral >= mediumMeanMin*3:
		// 平均分 >= 60，用整数比较避免浮点误差
		priority = models.PriorityMedium
	}

	channels := make([]models.Channel, 0, 4)
	if relevance >= slackMin {
		channels = append(channels, models.ChannelSlack)
	}
	if vibe >= figmaMin {
		channels = append(channels, models.ChannelFigma)
	}
	if viral >= whatsappMin {
		channels = append(channels, models.ChannelWhatsApp)
	}
	if relevance < manualReviewBelow || vibe < manualReviewBelow || viral < manualReviewBelow || len(channels) == 0 {
		channels = append(channels, models.ChannelManualReview)
	}

	rec := models.Recommendation{
		TargetChannels: channels,
		Priority:       priority,
	}
	rec.AutoPost = priority == models.PriorityHigh && !rec.HasChannel(models.ChannelManualReview)
	return rec
}

// Apply 作为 models.Patch.Derive 使用：分数齐全时重新计算推荐，否则回到默认推荐
func Apply(a *models.Article) {
	if !a.Scores.Complete() {
		a.Recommendation = models.DefaultRecommendation()
		return
	}
	a.Recommendation = Recommend(*a.Relevance, *a.Vibe, *a.Viral)
}
