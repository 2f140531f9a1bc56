package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
)

// MemoryStore 进程内实现，带状态索引与分桶键索引
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]*models.Article
	byStatus map[models.Status]map[string]struct{}
	byKey    map[string]map[string]struct{}
	now      func() time.Time
}

var _ ArticleStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles: make(map[string]*models.Article),
		byStatus: make(map[models.Status]map[string]struct{}),
		byKey:    make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// WithClock 替换时钟，便于测试
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Insert(ctx context.Context, a models.Article) error {
	if a.ID == "" {
		return fmt.Errorf("insert: empty article id")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("insert %s: invalid status %q", a.ID, a.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[a.ID]; ok {
		return fmt.Errorf("insert %s: %w", a.ID, models.ErrDuplicateID)
	}
	c := a.Clone()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now()
	}
	s.articles[c.ID] = &c
	s.index(&c)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (models.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.articles[id]
	if !ok {
		return models.Article{}, fmt.Errorf("get %s: %w", id, models.ErrNotFound)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status models.Status) ([]models.Article, error) {
	return s.List(ctx, Filter{Status: status})
}

// List 按发布时间倒序
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]models.Article, error) {
	s.mu.RLock()
	out := make([]models.Article, 0)
	if f.Status != "" {
		for id := range s.byStatus[f.Status] {
			out = append(out, s.articles[id].Clone())
		}
	} else {
		for _, a := range s.articles {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListFingerprintCandidates 按入库时间升序返回
func (s *MemoryStore) ListFingerprintCandidates(ctx context.Context, since time.Time, keys []string) ([]models.Article, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	out := make([]models.Article, 0)
	for _, k := range keys {
		for id := range s.byKey[k] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			a := s.articles[id]
			if a.IngestedAt.Before(since) {
				continue
			}
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	sortByIngestion(out)
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, p models.Patch) (models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.articles[id]
	if !ok {
		return models.Article{}, fmt.Errorf("update %s: %w", id, models.ErrNotFound)
	}
	next := cur.Clone()
	if err := p.Apply(&next, s.now()); err != nil {
		return models.Article{}, err
	}

	s.unindex(cur)
	s.articles[id] = &next
	s.index(&next)
	return next.Clone(), nil
}

func (s *MemoryStore) index(a *models.Article) {
	if s.byStatus[a.Status] == nil {
		s.byStatus[a.Status] = make(map[string]struct{})
	}
	s.byStatus[a.Status][a.ID] = struct{}{}
	for _, k := range models.BlockingKeys(a.DedupFingerprint) {
		if s.byKey[k] == nil {
			s.byKey[k] = make(map[string]struct{})
		}
		s.byKey[k][a.ID] = struct{}{}
	}
}

func (s *MemoryStore) unindex(a *models.Article) {
	delete(s.byStatus[a.Status], a.ID)
	for _, k := range models.BlockingKeys(a.DedupFingerprint) {
		delete(s.byKey[k], a.ID)
	}
}

func sortByIngestion(list []models.Article) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].IngestedAt.Equal(list[j].IngestedAt) {
			return list[i].IngestedAt.Before(list[j].IngestedAt)
		}
		return list[i].ID < list[j].ID
	})
}
