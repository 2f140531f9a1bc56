package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/NewsCurator/internal/mocks"
	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/LJTian/NewsCurator/internal/retry"
	"github.com/LJTian/NewsCurator/internal/storage"
	"github.com/rs/zerolog"
)

var _ Scorer = (*mocks.AI)(nil)

var fastPolicy = retry.Policy{MaxRetries: 1, InitialInterval: time.Millisecond}

func setup(t *testing.T, ai *mocks.AI) (*Engine, storage.ArticleStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	a := models.Article{
		ID:               "a1",
		Title:            "FAA Grounds Fleet After Incident",
		Body:             "body",
		CanonicalLink:    "https://example.com/1",
		SourceName:       "Feed A",
		IngestedAt:       time.Now(),
		Status:           models.StatusNew,
		Recommendation:   models.DefaultRecommendation(),
		DedupFingerprint: models.Fingerprint("FAA Grounds Fleet After Incident"),
	}
	if err := store.Insert(context.Background(), a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return New(store, ai, fastPolicy, zerolog.Nop()), store
}

func TestAutoScoreWritesScoresAndRecommendation(t *testing.T) {
	ai := mocks.NewAI()
	ai.ScoreFunc = func(ctx context.Context, title, body, source string) (models.ScoreSet, error) {
		if source != "Feed A" {
			t.Errorf("source context not passed: %q", source)
		}
		return models.ScoreSet{Relevance: 90, Vibe: 50, Viral: 30}, nil
	}
	e, _ := setup(t, ai)

	a, err := e.AutoScore(context.Background(), "a1")
	if err != nil {
		t.Fatalf("auto score: %v", err)
	}
	if *a.Relevance != 90 || *a.Vibe != 50 || *a.Viral != 30 {
		t.Fatalf("unexpected scores: %+v", a.Scores)
	}
	if a.Priority != models.PriorityHigh || a.AutoPost {
		t.Fatalf("unexpected recommendation: %+v", a.Recommendation)
	}
	if !a.HasChannel(models.ChannelSlack) || !a.HasChannel(models.ChannelManualReview) {
		t.Fatalf("channels = %v", a.TargetChannels)
	}
}

func TestAutoScoreRejectsOutOfRange(t *testing.T) {
	ai := mocks.NewAI()
	ai.ScoreFunc = func(ctx context.Context, title, body, source string) (models.ScoreSet, error) {
		return models.ScoreSet{Relevance: 120, Vibe: 50, Viral: 50}, nil
	}
	e, store := setup(t, ai)

	if _, err := e.AutoScore(context.Background(), "a1"); !errors.Is(err, models.ErrInvalidScoreValue) {
		t.Fatalf("err = %v, want ErrInvalidScoreValue", err)
	}
	a, _ := store.Get(context.Background(), "a1")
	if a.Relevance != nil || a.Vibe != nil {
		t.Fatalf("no score should be written: %+v", a.Scores)
	}
}

func TestAutoScoreExternalFailureLeavesArticle(t *testing.T) {
	ai := mocks.NewAI()
	ai.ScoreFunc = func(ctx context.Context, title, body, source string) (models.ScoreSet, error) {
		return models.ScoreSet{}, errors.New("upstream 503")
	}
	e, store := setup(t, ai)

	if _, err := e.AutoScore(context.Background(), "a1"); !errors.Is(err, models.ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}
	if ai.ScoreCalls != 2 {
		t.Fatalf("score calls = %d, want 1 + 1 retry", ai.ScoreCalls)
	}
	a, _ := store.Get(context.Background(), "a1")
	if a.Relevance != nil {
		t.Fatalf("article mutated after failure")
	}
}

func TestApplyManualScoresValidation(t *testing.T) {
	e, store := setup(t, mocks.NewAI())
	ctx := context.Background()

	if _, err := e.ApplyManualScores(ctx, "a1", ManualScores{Relevance: models.IntPtr(101)}); !errors.Is(err, models.ErrInvalidScoreValue) {
		t.Fatalf("err = %v, want ErrInvalidScoreValue", err)
	}
	a, _ := store.Get(ctx, "a1")
	if a.Relevance != nil {
		t.Fatalf("relevance should stay absent, got %d", *a.Relevance)
	}

	if _, err := e.ApplyManualScores(ctx, "a1", ManualScores{Relevance: models.IntPtr(40)}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := e.ApplyManualScores(ctx, "a1", ManualScores{Relevance: models.IntPtr(101), Vibe: models.IntPtr(10)}); err == nil {
		t.Fatalf("expected rejection")
	}
	a, _ = store.Get(ctx, "a1")
	if *a.Relevance != 40 || a.Vibe != nil {
		t.Fatalf("rejected update leaked: %+v", a.Scores)
	}

	if _, err := e.ApplyManualScores(ctx, "a1", ManualScores{}); !errors.Is(err, models.ErrInvalidScoreValue) {
		t.Fatalf("empty update err = %v", err)
	}
	if _, err := e.ApplyManualScores(ctx, "missing", ManualScores{Vibe: models.IntPtr(1)}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("missing article err = %v", err)
	}
}

func TestPartialScoresKeepDefaultRecommendation(t *testing.T) {
	e, _ := setup(t, mocks.NewAI())
	ctx := context.Background()

	a, err := e.ApplyManualScores(ctx, "a1", ManualScores{Relevance: models.IntPtr(95)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if a.Priority != models.PriorityLow || !a.HasChannel(models.ChannelManualReview) {
		t.Fatalf("partial scores should keep default recommendation: %+v", a.Recommendation)
	}

	a, err = e.ApplyManualScores(ctx, "a1", ManualScores{Vibe: models.IntPtr(90), Viral: models.IntPtr(90)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if a.Priority != models.PriorityHigh || !a.AutoPost {
		t.Fatalf("complete scores should recompute recommendation: %+v", a.Recommendation)
	}
}

func TestManualScoreAndSelectMerge(t *testing.T) {
	e, store := setup(t, mocks.NewAI())
	ctx := context.Background()
	selected := models.StatusSelected

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := e.ApplyManualScores(ctx, "a1", ManualScores{Vibe: models.IntPtr(70)})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := store.Update(ctx, "a1", models.Patch{
			AllowedFrom: []models.Status{models.StatusNew},
			Action:      "select",
			Status:      &selected,
		})
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}

	a, _ := store.Get(ctx, "a1")
	if a.Status != models.StatusSelected || a.Vibe == nil || *a.Vibe != 70 {
		t.Fatalf("lost update: status=%s vibe=%v", a.Status, a.Vibe)
	}
}
