package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/rs/zerolog"
)

const (
	hnBaseURL           = "https://hacker-news.firebaseio.com/v0"
	hnMaxItems          = 30
	hnMaxResponseBytes  = 1 << 20 // 1MB
	hnConcurrency       = 10
	hnClientTimeout     = 10 * time.Second
	hnItemClientTimeout = 5 * time.Second
)

// HackerNewsFetcher 通过官方 Firebase API 抓取 Hacker News 热门故事，可按关键词过滤
type HackerNewsFetcher struct {
	BaseURL string

	name     string
	limit    int
	keywords []string
	log      zerolog.Logger
}

func NewHackerNewsFetcher(name string, limit int, keywords []string, log zerolog.Logger) *HackerNewsFetcher {
	if name == "" {
		name = "Hacker News"
	}
	if limit <= 0 || limit > hnMaxItems {
		limit = hnMaxItems
	}
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return &HackerNewsFetcher{
		BaseURL:  hnBaseURL,
		name:     name,
		limit:    limit,
		keywords: kw,
		log:      log.With().Str("source", name).Logger(),
	}
}

func (h *HackerNewsFetcher) Name() string {
	return h.name
}

type hnItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Type        string `json:"type"`
}

func (h *HackerNewsFetcher) Fetch(ctx context.Context) ([]models.RawItem, error) {
	client := &http.Client{Timeout: hnClientTimeout}

	var ids []int
	if err := getJSON(ctx, client, h.BaseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("hackernews: fetch top stories: %w", err)
	}
	if len(ids) > h.limit {
		ids = ids[:h.limit]
	}

	var (
		wg         sync.WaitGroup
		sem        = make(chan struct{}, hnConcurrency)
		slots      = make([]*hnItem, len(ids))
		itemClient = &http.Client{Timeout: hnItemClientTimeout}
	)

	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx, id int) {
			defer wg.Done()
			defer func() { <-sem }()

			var it hnItem
			if err := getJSON(ctx, itemClient, fmt.Sprintf("%s/item/%d.json", h.BaseURL, id), &it); err != nil {
				h.log.Debug().Err(err).Int("hn_id", id).Msg("fetch item failed")
				return
			}
			if it.Title == "" || it.Type != "story" {
				return
			}
			slots[idx] = &it
		}(i, id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]models.RawItem, 0, len(ids))
	for _, it := range slots {
		if it == nil || !h.matches(it.Title) {
			continue
		}

		itemURL := it.URL
		if itemURL == "" {
			itemURL = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", it.ID)
		}

		results = append(results, models.RawItem{
			Title:       strings.TrimSpace(it.Title),
			Body:        CleanText(it.Text),
			Link:        itemURL,
			PublishedAt: time.Unix(it.Time, 0).UTC(),
			SourceName:  h.name,
		})
	}
	return results, nil
}

func (h *HackerNewsFetcher) matches(title string) bool {
	if len(h.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, k := range h.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, hnMaxResponseBytes)).Decode(v)
}
