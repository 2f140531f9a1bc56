package collector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/LJTian/NewsCurator/internal/config"
	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/rs/zerolog"
)

// Fetcher 抽象每一个数据源；数据源之间不共享状态
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]models.RawItem, error)
}

const defaultUserAgent = "NewsCuratorBot/1.0"

// Build 根据配置注册数据源适配器，kind 为封闭集合
func Build(sources []config.SourceConfig, newsDataKey string, log zerolog.Logger) ([]Fetcher, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	out := make([]Fetcher, 0, len(sources))
	for _, s := range sources {
		switch s.Kind {
		case "rss":
			out = append(out, NewRSSFetcher(s.Name, s.URL, s.Limit, client))
		case "newsdata":
			if newsDataKey == "" {
				log.Warn().Str("source", s.Name).Msg("NEWSDATA_API_KEY not set, skip source")
				continue
			}
			f := NewNewsDataFetcher(s.Name, newsDataKey, s.Query, client)
			if s.URL != "" {
				f.BaseURL = s.URL
			}
			out = append(out, f)
		case "page":
			f, err := NewPageFetcher(s.Name, s.URL, s.Selectors, s.DateLayout, s.Limit)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		case "hackernews":
			f := NewHackerNewsFetcher(s.Name, s.Limit, s.Keywords, log)
			if s.URL != "" {
				f.BaseURL = s.URL
			}
			out = append(out, f)
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
		}
	}
	return out, nil
}
