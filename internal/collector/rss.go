package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/mmcdole/gofeed"
)

const rssMaxEntries = 20

// RSSFetcher 抓取单个 RSS/Atom 订阅源
type RSSFetcher struct {
	name   string
	url    string
	limit  int
	client *http.Client
}

func NewRSSFetcher(name, url string, limit int, client *http.Client) *RSSFetcher {
	if limit <= 0 {
		limit = rssMaxEntries
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RSSFetcher{name: name, url: url, limit: limit, client: client}
}

func (f *RSSFetcher) Name() string {
	return f.name
}

func (f *RSSFetcher) Fetch(ctx context.Context) ([]models.RawItem, error) {
	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = defaultUserAgent

	feed, err := parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss %s: %w", f.url, err)
	}

	source := f.name
	if source == "" {
		source = strings.TrimSpace(feed.Title)
	}

	entries := feed.Items
	if len(entries) > f.limit {
		entries = entries[:f.limit]
	}

	out := make([]models.RawItem, 0, len(entries))
	for _, it := range entries {
		// 正文优先取 content，没有再用 description
		body := it.Content
		if strings.TrimSpace(body) == "" {
			body = it.Description
		}

		var pub time.Time
		if it.PublishedParsed != nil {
			pub = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			pub = *it.UpdatedParsed
		}

		out = append(out, models.RawItem{
			Title:       CleanText(it.Title),
			Body:        CleanText(body),
			Link:        strings.TrimSpace(it.Link),
			PublishedAt: pub,
			SourceName:  source,
		})
	}
	return out, nil
}
