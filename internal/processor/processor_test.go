package processor

import (
	"strings"
	"testing"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/rs/zerolog"
)

func TestTruncateRunesHandlesMultibyte(t *testing.T) {
	s := "你好，世界，这是一个很长的中文句子"
	out := truncateRunes(s, 5)
	if len([]rune(out)) != 5 {
		t.Fatalf("truncateRunes length = %d, want 5: %q", len([]rune(out)), out)
	}

	// limit 大于长度时不应截断
	if full := truncateRunes("短文本", 10); full != "短文本" {
		t.Fatalf("truncateRunes should keep original when under limit: %q", full)
	}
}

func TestNormalizerProcess(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	n := NewNormalizer(zerolog.Nop()).WithClock(func() time.Time { return now })

	published := time.Date(2026, 4, 30, 8, 0, 0, 0, time.UTC)
	items := []models.RawItem{
		{Title: "  FAA   Grounds Fleet\nAfter Incident ", Body: "  body  ", Link: " https://a/1 ", PublishedAt: published, SourceName: "Feed A"},
		{Title: "   ", Link: "https://a/2", SourceName: "Feed A"},
		{Title: "No link", Link: "", SourceName: "Feed B"},
		{Title: "No date", Link: "https://b/1", SourceName: "Feed B"},
	}

	out, skips := n.Process(items)
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	if len(skips) != 2 || skips[0].Reason != models.SkipIncomplete || skips[1].SourceName != "Feed B" {
		t.Fatalf("unexpected skips: %+v", skips)
	}

	first := out[0]
	if first.Title != "FAA Grounds Fleet After Incident" {
		t.Fatalf("title not trimmed/collapsed: %q", first.Title)
	}
	if first.Body != "body" || first.CanonicalLink != "https://a/1" {
		t.Fatalf("body/link not trimmed: %q %q", first.Body, first.CanonicalLink)
	}
	if first.Status != models.StatusNew || !first.IngestedAt.Equal(now) || !first.PublishedAt.Equal(published) {
		t.Fatalf("unexpected lifecycle fields: %+v", first)
	}
	if first.DedupFingerprint != "faa grounds fleet after incident" {
		t.Fatalf("fingerprint = %q", first.DedupFingerprint)
	}
	if !first.HasChannel(models.ChannelManualReview) || first.AutoPost || first.Priority != models.PriorityLow {
		t.Fatalf("new article should carry default recommendation: %+v", first.Recommendation)
	}
	if first.ID == "" || first.ID == out[1].ID {
		t.Fatalf("ids must be unique and non-empty: %q %q", first.ID, out[1].ID)
	}

	if !out[1].PublishedAt.Equal(now) {
		t.Fatalf("missing published_at should default to ingestion time, got %v", out[1].PublishedAt)
	}
}

func TestNormalizerTruncatesLongFields(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	out, _ := n.Process([]models.RawItem{{
		Title: strings.Repeat("t", maxTitleRunes+10),
		Body:  strings.Repeat("b", maxBodyRunes+10),
		Link:  "https://a/1",
	}})
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate")
	}
	if len([]rune(out[0].Title)) != maxTitleRunes || len([]rune(out[0].Body)) != maxBodyRunes {
		t.Fatalf("fields not truncated: title=%d body=%d", len([]rune(out[0].Title)), len([]rune(out[0].Body)))
	}
}

func TestNormalizerDropsSymbolOnlyTitles(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	out, skips := n.Process([]models.RawItem{
		{Title: "🔥🔥🔥", Link: "https://a/1", SourceName: "Feed A"},
		{Title: "*** ... ***", Link: "https://a/2", SourceName: "Feed A"},
		{Title: "GPT-5 🔥", Link: "https://a/3", SourceName: "Feed A"},
	})
	if len(out) != 1 || out[0].DedupFingerprint != "gpt 5" {
		t.Fatalf("expected only the titled item to survive: %+v", out)
	}
	if len(skips) != 2 || skips[0].Reason != models.SkipIncomplete || skips[1].Title != "*** ... ***" {
		t.Fatalf("unexpected skips: %+v", skips)
	}
}
