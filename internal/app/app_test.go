package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LJTian/NewsCurator/internal/config"
	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/rs/zerolog"
)

const feed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Feed</title>
<item><title>FAA Grounds Fleet After Incident</title><link>https://example.com/1</link><description>body</description></item>
<item><title>FAA grounds fleet after incident!!</title><link>https://example.com/2</link><description>body</description></item>
</channel></rss>`

func memoryConfig(url string) *config.Config {
	return &config.Config{
		StoreDriver: "memory",
		Dedup:       config.DedupConfig{Threshold: 85, Lookback: 24 * time.Hour},
		Ingest:      config.IngestConfig{Concurrency: 2, FetchTimeout: 5 * time.Second},
		Retry:       config.RetryConfig{MaxRetries: 0, InitialInterval: time.Millisecond},
		Sources:     []config.SourceConfig{{Name: "Test Feed", Kind: "rss", URL: url}},
	}
}

func TestNewMemoryAppRunsIngestion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	a, err := New(memoryConfig(srv.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := a.Pipeline.RunIngestionCycle(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Inserted != 1 || len(res.Skips) != 1 {
		t.Fatalf("inserted=%d skips=%+v", res.Inserted, res.Skips)
	}

	list, err := a.Store.ListByStatus(context.Background(), models.StatusNew)
	if err != nil || len(list) != 1 || list[0].SourceName != "Test Feed" {
		t.Fatalf("list = %+v err=%v", list, err)
	}
}

func TestNewRejectsUnknownSourceKind(t *testing.T) {
	cfg := memoryConfig("https://example.com/feed")
	cfg.Sources = append(cfg.Sources, config.SourceConfig{Name: "ftp", Kind: "ftp"})
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown source kind")
	}
}
