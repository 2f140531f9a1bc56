package distribution

import (
	"reflect"
	"testing"

	"github.com/LJTian/NewsCurator/internal/models"
)

func TestRecommendRules(t *testing.T) {
	cases := []struct {
		name                   string
		relevance, vibe, viral int
		wantPriority           models.Priority
		wantChannels           []models.Channel
		wantAutoPost           bool
	}{
		{
			name:      "high relevance with weak viral needs review",
			relevance: 90, vibe: 50, viral: 30,
			wantPriority: models.PriorityHigh,
			wantChannels: []models.Channel{models.ChannelSlack, models.ChannelManualReview},
		},
		{
			name:      "high everything auto posts",
			relevance: 90, vibe: 75, viral: 85,
			wantPriority: models.PriorityHigh,
			wantChannels: []models.Channel{models.ChannelSlack, models.ChannelFigma, models.ChannelWhatsApp},
			wantAutoPost: true,
		},
		{
			name:      "viral alone makes it high",
			relevance: 50, vibe: 50, viral: 85,
			wantPriority: models.PriorityHigh,
			wantChannels: []models.Channel{models.ChannelWhatsApp},
			wantAutoPost: true,
		},
		{
			name:      "mean exactly 60 is medium",
			relevance: 60, vibe: 60, viral: 60,
			wantPriority: models.PriorityMedium,
			wantChannels: []models.Channel{models.ChannelSlack},
		},
		{
			name:      "mean just below 60 is low and empty set falls back to review",
			relevance: 59, vibe: 60, viral: 60,
			wantPriority: models.PriorityLow,
			wantChannels: []models.Channel{models.ChannelManualReview},
		},
		{
			name:      "boundaries are inclusive",
			relevance: 85, vibe: 70, viral: 80,
			wantPriority: models.PriorityHigh,
			wantChannels: []models.Channel{models.ChannelSlack, models.ChannelFigma, models.ChannelWhatsApp},
			wantAutoPost: true,
		},
		{
			name:      "score of 40 does not force review",
			relevance: 40, vibe: 70, viral: 40,
			wantPriority: models.PriorityLow,
			wantChannels: []models.Channel{models.ChannelFigma},
		},
		{
			name:      "all zero",
			relevance: 0, vibe: 0, viral: 0,
			wantPriority: models.PriorityLow,
			wantChannels: []models.Channel{models.ChannelManualReview},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Recommend(c.relevance, c.vibe, c.viral)
			if got.Priority != c.wantPriority {
				t.Fatalf("priority = %s, want %s", got.Priority, c.wantPriority)
			}
			if !reflect.DeepEqual(got.TargetChannels, c.wantChannels) {
				t.Fatalf("channels = %v, want %v", got.TargetChannels, c.wantChannels)
			}
			if got.AutoPost != c.wantAutoPost {
				t.Fatalf("auto_post = %v, want %v", got.AutoPost, c.wantAutoPost)
			}
		})
	}
}

func TestRecommendIsDeterministic(t *testing.T) {
	first := Recommend(90, 50, 30)
	for i := 0; i < 100; i++ {
		if got := Recommend(90, 50, 30); !reflect.DeepEqual(got, first) {
			t.Fatalf("iteration %d: %+v != %+v", i, got, first)
		}
	}
}

func TestApplyUsesDefaultUntilAllScoresPresent(t *testing.T) {
	a := models.Article{}
	a.Relevance = models.IntPtr(95)
	Apply(&a)
	if !reflect.DeepEqual(a.Recommendation, models.DefaultRecommendation()) {
		t.Fatalf("partial scores should yield default recommendation, got %+v", a.Recommendation)
	}

	a.Vibe = models.IntPtr(90)
	a.Viral = models.IntPtr(90)
	Apply(&a)
	if !a.AutoPost || a.Priority != models.PriorityHigh {
		t.Fatalf("complete scores should be recomputed, got %+v", a.Recommendation)
	}
}
