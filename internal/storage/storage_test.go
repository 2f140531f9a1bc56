package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

func newArticle(id, title string, ingested time.Time) models.Article {
	return models.Article{
		ID:               id,
		Title:            title,
		Body:             "body of " + id,
		CanonicalLink:    "https://example.com/" + id,
		SourceName:       "test",
		PublishedAt:      ingested,
		IngestedAt:       ingested,
		Status:           models.StatusNew,
		Recommendation:   models.DefaultRecommendation(),
		DedupFingerprint: models.Fingerprint(title),
	}
}

func TestMemoryStoreInsertGetAndDuplicateID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	a := newArticle("a1", "FAA Grounds Fleet After Incident", now)
	if err := s.Insert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, a); !errors.Is(err, models.ErrDuplicateID) {
		t.Fatalf("second insert err = %v, want ErrDuplicateID", err)
	}

	got, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != a.Title || got.Status != models.StatusNew {
		t.Fatalf("unexpected article: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("insert should stamp updated_at")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("get missing err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := newArticle("a1", "Copy semantics", time.Now())
	a.Relevance = models.IntPtr(50)
	if err := s.Insert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, _ := s.Get(ctx, "a1")
	*got.Relevance = 99
	got.TargetChannels[0] = models.ChannelSlack

	again, _ := s.Get(ctx, "a1")
	if *again.Relevance != 50 {
		t.Fatalf("stored relevance mutated through returned copy: %d", *again.Relevance)
	}
	if again.TargetChannels[0] != models.ChannelManualReview {
		t.Fatalf("stored channels mutated through returned copy: %v", again.TargetChannels)
	}
}

func TestMemoryStoreListByStatusAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		a := newArticle(id, "Story "+id, base.Add(time.Duration(i)*time.Hour))
		if err := s.Insert(ctx, a); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	st := models.StatusSelected
	if _, err := s.Update(ctx, "b", models.Patch{Status: &st}); err != nil {
		t.Fatalf("update: %v", err)
	}

	newList, _ := s.ListByStatus(ctx, models.StatusNew)
	if len(newList) != 2 || newList[0].ID != "c" || newList[1].ID != "a" {
		t.Fatalf("unexpected new list: %v", ids(newList))
	}
	selected, _ := s.ListByStatus(ctx, models.StatusSelected)
	if len(selected) != 1 || selected[0].ID != "b" {
		t.Fatalf("unexpected selected list: %v", ids(selected))
	}

	limited, _ := s.List(ctx, Filter{Limit: 2})
	if len(limited) != 2 || limited[0].ID != "c" {
		t.Fatalf("unexpected limited list: %v", ids(limited))
	}
}

func TestMemoryStoreFingerprintCandidates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	old := newArticle("old", "FAA grounds fleet after incident", now.Add(-30*24*time.Hour))
	recent := newArticle("recent", "FAA grounds fleet after incident", now.Add(-time.Hour))
	other := newArticle("other", "Airline orders new widebody jets", now.Add(-time.Hour))
	for _, a := range []models.Article{old, recent, other} {
		if err := s.Insert(ctx, a); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	keys := models.BlockingKeys(models.Fingerprint("FAA Grounds Fleet!"))
	got, err := s.ListFingerprintCandidates(ctx, now.Add(-14*24*time.Hour), keys)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "recent" {
		t.Fatalf("candidates = %v, want [recent]", ids(got))
	}
}

func TestMemoryStoreUpdateReindexesFingerprint(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	if err := s.Insert(ctx, newArticle("a1", "Original headline words", now)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	title := "Completely different subject"
	if _, err := s.Update(ctx, "a1", models.Patch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}

	since := now.Add(-time.Hour)
	if got, _ := s.ListFingerprintCandidates(ctx, since, []string{"original"}); len(got) != 0 {
		t.Fatalf("stale blocking key still indexed: %v", ids(got))
	}
	if got, _ := s.ListFingerprintCandidates(ctx, since, []string{"subject"}); len(got) != 1 {
		t.Fatalf("new blocking key not indexed")
	}
}

func TestMemoryStoreUpdateRejectsWithoutMutation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := newArticle("a1", "Scores stay", time.Now())
	a.Relevance = models.IntPtr(40)
	if err := s.Insert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := s.Update(ctx, "a1", models.Patch{Relevance: models.IntPtr(101), Vibe: models.IntPtr(10)})
	if !errors.Is(err, models.ErrInvalidScoreValue) {
		t.Fatalf("err = %v, want ErrInvalidScoreValue", err)
	}
	got, _ := s.Get(ctx, "a1")
	if *got.Relevance != 40 || got.Vibe != nil {
		t.Fatalf("article mutated by rejected patch: %+v", got.Scores)
	}

	if _, err := s.Update(ctx, "missing", models.Patch{}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreConcurrentFieldMerge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Insert(ctx, newArticle("a1", "Merge me", time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	selected := models.StatusSelected
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.Update(ctx, "a1", models.Patch{Vibe: models.IntPtr(70)})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := s.Update(ctx, "a1", models.Patch{
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

	got, _ := s.Get(ctx, "a1")
	if got.Status != models.StatusSelected || got.Vibe == nil || *got.Vibe != 70 {
		t.Fatalf("lost update: status=%s vibe=%v", got.Status, got.Vibe)
	}
}

func TestBuildCandidateQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := buildCandidateQuery(since, []string{"faa", "fleet"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{
		"SELECT DISTINCT a.*",
		"FROM articles AS a",
		"JOIN article_blocking_keys AS k ON k.article_id = a.id",
		"k.token IN (?,?)",
		"a.ingested_at >= ?",
		"ORDER BY a.ingested_at ASC, a.id ASC",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q missing %q", query, want)
		}
	}
	if len(args) != 3 || args[0] != "faa" || args[1] != "fleet" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestChangedColumnsOnlyDiff(t *testing.T) {
	before := newArticle("a1", "Same", time.Now())
	after := before.Clone()
	after.Vibe = models.IntPtr(70)
	after.UpdatedAt = time.Now()

	cols, err := changedColumns(before, after)
	if err != nil {
		t.Fatalf("changedColumns: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("cols = %v, want only score_vibe and updated_at", cols)
	}
	if _, ok := cols["score_vibe"]; !ok {
		t.Fatalf("score_vibe missing: %v", cols)
	}
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background())
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second lock err = %v, want deadline exceeded", err)
	}

	unlock()
	unlock2, err := l.Lock(context.Background())
	if err != nil {
		t.Fatalf("lock after unlock: %v", err)
	}
	unlock2()
}

func TestChainLockerReleasesOnFailure(t *testing.T) {
	first := NewLocalLocker()
	second := NewLocalLocker()
	hold, _ := second.Lock(context.Background())
	defer hold()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := (ChainLocker{first, second}).Lock(ctx); err == nil {
		t.Fatalf("expected chain lock to fail while second is held")
	}

	unlock, err := first.Lock(context.Background())
	if err != nil {
		t.Fatalf("first locker should have been released: %v", err)
	}
	unlock()
}

func TestTruncateRunesDB(t *testing.T) {
	if got := truncateRunesDB("  你好世界  ", 2); got != "你好" {
		t.Fatalf("truncateRunesDB = %q", got)
	}
	if got := truncateRunesDB("abc", 0); got != "" {
		t.Fatalf("truncateRunesDB limit 0 = %q", got)
	}
}

// unreachableRedis 指向一个不会有服务监听的端口
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	var buf bytes.Buffer
	rdb := unreachableRedis()
	defer rdb.Close()

	l := NewRedisLocker(rdb, "test:lock", time.Minute, zerolog.New(&buf))
	l.release("token")

	out := buf.String()
	if !strings.Contains(out, "release lock failed") || !strings.Contains(out, `"key":"test:lock"`) {
		t.Fatalf("release failure not logged: %s", out)
	}
}

func TestListCacheKeyFollowsGeneration(t *testing.T) {
	if statusCacheKey(models.StatusNew, 1) == statusCacheKey(models.StatusNew, 2) {
		t.Fatalf("cache key must change with generation")
	}
	if statusCacheKey(models.StatusNew, 0) == statusCacheKey(models.StatusEdited, 0) {
		t.Fatalf("cache key must differ per status")
	}

	// 读不到代数时绕过缓存，而不是沿用可能过期的键
	var buf bytes.Buffer
	rdb := unreachableRedis()
	defer rdb.Close()
	s := &GormStore{Redis: rdb, log: zerolog.New(&buf)}
	if key := s.listCacheKey(context.Background(), models.StatusNew); key != "" {
		t.Fatalf("key = %q, want cache bypass", key)
	}
	if !strings.Contains(buf.String(), "read list cache generation failed") {
		t.Fatalf("generation failure not logged: %s", buf.String())
	}

	if key := (&GormStore{}).listCacheKey(context.Background(), models.StatusNew); key != "" {
		t.Fatalf("no redis should mean no cache key, got %q", key)
	}
}

func TestToArticleRejectsCorruptChannels(t *testing.T) {
	row := articleRow{ID: "a1", Status: string(models.StatusNew), TargetChannels: datatypes.JSON(`{"oops"`)}
	if _, err := row.toArticle(); err == nil || !strings.Contains(err.Error(), "a1") {
		t.Fatalf("err = %v, want decode error naming the article", err)
	}
	if _, err := toArticles([]articleRow{row}); err == nil {
		t.Fatalf("toArticles should surface the decode error")
	}

	row.TargetChannels = datatypes.JSON(`["slack","manual_review"]`)
	a, err := row.toArticle()
	if err != nil || len(a.TargetChannels) != 2 {
		t.Fatalf("valid channels: %+v err=%v", a.TargetChannels, err)
	}
}

func ids(list []models.Article) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}
