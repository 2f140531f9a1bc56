package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// articleRow 对应 articles 表
type articleRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	Title         string    `gorm:"size:512"`
	CustomTitle   *string   `gorm:"size:512"`
	Body          string    `gorm:"type:text"`
	CanonicalLink string    `gorm:"size:1024;index"`
	SourceName    string    `gorm:"size:128;index"`
	PublishedAt   time.Time `gorm:"index"`
	IngestedAt    time.Time `gorm:"index"`
	Status        string    `gorm:"size:16;index"`

	ScoreRelevance *int
	ScoreVibe      *int
	ScoreViral     *int

	TargetChannels datatypes.JSON `gorm:"type:jsonb"`
	AutoPost       bool
	Priority       string `gorm:"size:16"`

	DedupFingerprint string `gorm:"size:512;index"`
	UpdatedAt        time.Time
}

func (articleRow) TableName() string { return "articles" }

// blockingKeyRow 去重分桶索引：一篇文章对应多个 token
type blockingKeyRow struct {
	ArticleID string `gorm:"primaryKey;size:36"`
	Token     string `gorm:"primaryKey;size:128;index"`
}

func (blockingKeyRow) TableName() string { return "article_blocking_keys" }

// GormStore 基于 PostgreSQL 的 ArticleStore，按状态的列表用 Redis 做短期缓存
type GormStore struct {
	DB    *gorm.DB
	Redis *redis.Client
	log   zerolog.Logger
	now   func() time.Time
}

var _ ArticleStore = (*GormStore)(nil)

const listCacheTTL = 5 * time.Minute

// NewStore 连接 PostgreSQL 与 Redis 并完成建表
func NewStore(dsn, redisAddr string, log zerolog.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.AutoMigrate(&articleRow{}, &blockingKeyRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", redisAddr).Msg("redis ping failed, list cache may be unavailable")
		}
	}

	return &GormStore{
		DB:    db,
		Redis: rdb,
		log:   log.With().Str("component", "storage").Logger(),
		now:   time.Now,
	}, nil
}

func (s *GormStore) Insert(ctx context.Context, a models.Article) error {
	if a.ID == "" {
		return fmt.Errorf("insert: empty article id")
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = s.now()
	}
	row, err := rowFromArticle(a)
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return replaceBlockingKeys(tx, a.ID, a.DedupFingerprint)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("insert %s: %w", a.ID, models.ErrDuplicateID)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", a.ID, err)
	}
	s.invalidate(ctx, a.Status)
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (models.Article, error) {
	var row articleRow
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Article{}, fmt.Errorf("get %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Article{}, fmt.Errorf("get %s: %w", id, err)
	}
	return row.toArticle()
}

// ListByStatus 优先读 Redis 缓存，未命中再查库并回写。
// 缓存键带状态的代数：写入方递增代数，查询期间发生的写入只会让旧代数下的回写失效。
func (s *GormStore) ListByStatus(ctx context.Context, status models.Status) ([]models.Article, error) {
	cacheKey := s.listCacheKey(ctx, status)
	if cacheKey != "" {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []models.Article
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	list, err := s.List(ctx, Filter{Status: status})
	if err != nil {
		return nil, err
	}

	if cacheKey != "" && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return list, nil
}

// listCacheKey 读不到代数时返回空串，本次查询绕过缓存
func (s *GormStore) listCacheKey(ctx context.Context, status models.Status) string {
	if s.Redis == nil {
		return ""
	}
	gen, err := s.Redis.Get(ctx, statusGenKey(status)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("status", string(status)).Msg("read list cache generation failed")
		return ""
	}
	return statusCacheKey(status, gen)
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]models.Article, error) {
	db := s.DB.WithContext(ctx).Model(&articleRow{})
	if f.Status != "" {
		db = db.Where("status = ?", string(f.Status))
	}
	var rows []articleRow
	if err := db.Order("published_at DESC").Order("id ASC").Limit(normalizeLimit(f.Limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return toArticles(rows)
}

func (s *GormStore) ListFingerprintCandidates(ctx context.Context, since time.Time, keys []string) ([]models.Article, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query, args, err := buildCandidateQuery(since, keys)
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}
	var rows []articleRow
	if err := s.DB.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list fingerprint candidates: %w", err)
	}
	return toArticles(rows)
}

// Update 行锁内完成读-合并-写，只 UPDATE 变化的列，避免并发的打分与状态流转互相覆盖
func (s *GormStore) Update(ctx context.Context, id string, p models.Patch) (models.Article, error) {
	var before, after models.Article
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row articleRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("update %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if before, err = row.toArticle(); err != nil {
			return err
		}
		after = before.Clone()
		if err := p.Apply(&after, s.now()); err != nil {
			return err
		}

		cols, err := changedColumns(before, after)
		if err != nil {
			return err
		}
		if err := tx.Model(&articleRow{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return err
		}
		if before.DedupFingerprint != after.DedupFingerprint {
			return replaceBlockingKeys(tx, id, after.DedupFingerprint)
		}
		return nil
	})
	if err != nil {
		return models.Article{}, err
	}

	s.invalidate(ctx, before.Status, after.Status)
	return after, nil
}

func (s *GormStore) invalidate(ctx context.Context, statuses ...models.Status) {
	if s.Redis == nil {
		return
	}
	keys := make([]string, 0, len(statuses))
	pipe := s.Redis.Pipeline()
	for _, st := range statuses {
		key := statusGenKey(st)
		keys = append(keys, key)
		pipe.Incr(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Strs("keys", keys).Msg("invalidate list cache failed")
	}
}

func statusGenKey(status models.Status) string {
	return "articles:status:" + string(status) + ":gen"
}

func statusCacheKey(status models.Status, gen int64) string {
	return fmt.Sprintf("articles:status:%s:%d", status, gen)
}

func replaceBlockingKeys(tx *gorm.DB, id, fingerprint string) error {
	if err := tx.Where("article_id = ?", id).Delete(&blockingKeyRow{}).Error; err != nil {
		return err
	}
	keys := models.BlockingKeys(fingerprint)
	if len(keys) == 0 {
		return nil
	}
	rows := make([]blockingKeyRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, blockingKeyRow{ArticleID: id, Token: truncateRunesDB(k, 128)})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// changedColumns 只返回有变化的列
func changedColumns(before, after models.Article) (map[string]any, error) {
	cols := map[string]any{"updated_at": after.UpdatedAt}
	if before.Status != after.Status {
		cols["status"] = string(after.Status)
	}
	if before.Title != after.Title {
		cols["title"] = toValidUTF8(after.Title)
	}
	if !equalStringPtr(before.CustomTitle, after.CustomTitle) {
		cols["custom_title"] = after.CustomTitle
	}
	if before.Body != after.Body {
		cols["body"] = toValidUTF8(after.Body)
	}
	if before.DedupFingerprint != after.DedupFingerprint {
		cols["dedup_fingerprint"] = after.DedupFingerprint
	}
	if !equalIntPtr(before.Relevance, after.Relevance) {
		cols["score_relevance"] = after.Relevance
	}
	if !equalIntPtr(before.Vibe, after.Vibe) {
		cols["score_vibe"] = after.Vibe
	}
	if !equalIntPtr(before.Viral, after.Viral) {
		cols["score_viral"] = after.Viral
	}
	if !equalChannels(before.TargetChannels, after.TargetChannels) {
		bs, err := json.Marshal(after.TargetChannels)
		if err != nil {
			return nil, fmt.Errorf("marshal target channels: %w", err)
		}
		cols["target_channels"] = datatypes.JSON(bs)
	}
	if before.AutoPost != after.AutoPost {
		cols["auto_post"] = after.AutoPost
	}
	if before.Priority != after.Priority {
		cols["priority"] = string(after.Priority)
	}
	return cols, nil
}

func rowFromArticle(a models.Article) (articleRow, error) {
	channels, err := json.Marshal(a.TargetChannels)
	if err != nil {
		return articleRow{}, fmt.Errorf("marshal target channels: %w", err)
	}
	return articleRow{
		ID:               a.ID,
		Title:            toValidUTF8(a.Title),
		CustomTitle:      a.CustomTitle,
		Body:             toValidUTF8(a.Body),
		CanonicalLink:    truncateRunesDB(a.CanonicalLink, 1024),
		SourceName:       truncateRunesDB(a.SourceName, 128),
		PublishedAt:      a.PublishedAt,
		IngestedAt:       a.IngestedAt,
		Status:           string(a.Status),
		ScoreRelevance:   a.Relevance,
		ScoreVibe:        a.Vibe,
		ScoreViral:       a.Viral,
		TargetChannels:   datatypes.JSON(channels),
		AutoPost:         a.AutoPost,
		Priority:         string(a.Priority),
		DedupFingerprint: a.DedupFingerprint,
		UpdatedAt:        a.UpdatedAt,
	}, nil
}

func (r articleRow) toArticle() (models.Article, error) {
	a := models.Article{
		ID:               r.ID,
		Title:            r.Title,
		CustomTitle:      r.CustomTitle,
		Body:             r.Body,
		CanonicalLink:    r.CanonicalLink,
		SourceName:       r.SourceName,
		PublishedAt:      r.PublishedAt,
		IngestedAt:       r.IngestedAt,
		Status:           models.Status(r.Status),
		DedupFingerprint: r.DedupFingerprint,
		UpdatedAt:        r.UpdatedAt,
	}
	a.Relevance = r.ScoreRelevance
	a.Vibe = r.ScoreVibe
	a.Viral = r.ScoreViral
	a.AutoPost = r.AutoPost
	a.Priority = models.Priority(r.Priority)
	if len(r.TargetChannels) > 0 {
		if err := json.Unmarshal(r.TargetChannels, &a.TargetChannels); err != nil {
			return models.Article{}, fmt.Errorf("decode target_channels of %s: %w", r.ID, err)
		}
	}
	return a, nil
}

func toArticles(rows []articleRow) ([]models.Article, error) {
	out := make([]models.Article, 0, len(rows))
	for _, r := range rows {
		a, err := r.toArticle()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalChannels(a, b []models.Channel) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
