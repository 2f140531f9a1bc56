package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
)

const (
	newsDataBaseURL          = "https://newsdata.io/api/1/news"
	newsDataMaxResponseBytes = 2 << 20
	newsDataDateLayout       = "2006-01-02 15:04:05"
)

// NewsDataFetcher 通过 newsdata.io 检索接口拉取新闻
type NewsDataFetcher struct {
	BaseURL string

	name   string
	apiKey string
	query  string
	client *http.Client
}

func NewNewsDataFetcher(name, apiKey, query string, client *http.Client) *NewsDataFetcher {
	if query == "" {
		query = "aviation"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &NewsDataFetcher{
		BaseURL: newsDataBaseURL,
		name:    name,
		apiKey:  apiKey,
		query:   query,
		client:  client,
	}
}

func (f *NewsDataFetcher) Name() string {
	return f.name
}

type newsDataResponse struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results"`
}

type newsDataArticle struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	PubDate     string `json:"pubDate"`
	SourceID    string `json:"source_id"`
}

func (f *NewsDataFetcher) Fetch(ctx context.Context) ([]models.RawItem, error) {
	q := url.Values{}
	q.Set("apikey", f.apiKey)
	q.Set("q", f.query)
	q.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsdata: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsdata: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, newsDataMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("newsdata: read body: %w", err)
	}

	var r newsDataResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("newsdata: unmarshal: %w", err)
	}
	if r.Status != "success" {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(r.Results, &apiErr)
		return nil, fmt.Errorf("newsdata: api status %q: %s", r.Status, apiErr.Message)
	}

	var articles []newsDataArticle
	if err := json.Unmarshal(r.Results, &articles); err != nil {
		return nil, fmt.Errorf("newsdata: unmarshal results: %w", err)
	}

	out := make([]models.RawItem, 0, len(articles))
	for _, a := range articles {
		source := strings.TrimSpace(a.SourceID)
		if source == "" {
			source = f.name
		}
		var pub time.Time
		if a.PubDate != "" {
			if t, err := time.ParseInLocation(newsDataDateLayout, a.PubDate, time.UTC); err == nil {
				pub = t
			}
		}
		out = append(out, models.RawItem{
			Title:       CleanText(a.Title),
			Body:        CleanText(a.Description),
			Link:        strings.TrimSpace(a.Link),
			PublishedAt: pub,
			SourceName:  source,
		})
	}
	return out, nil
}
