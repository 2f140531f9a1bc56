package storage

import (
	"context"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
)

// ArticleStore 文章的权威存储；文章只改状态，不做物理删除
type ArticleStore interface {
	// Insert id 已存在时返回 models.ErrDuplicateID
	Insert(ctx context.Context, a models.Article) error
	Get(ctx context.Context, id string) (models.Article, error)
	ListByStatus(ctx context.Context, status models.Status) ([]models.Article, error)
	List(ctx context.Context, f Filter) ([]models.Article, error)
	// ListFingerprintCandidates 返回 since 之后入库、且与 keys 至少共享一个分桶键的文章
	ListFingerprintCandidates(ctx context.Context, since time.Time, keys []string) ([]models.Article, error)
	// Update 对单篇文章做原子的读-合并-写，只写入发生变化的字段
	Update(ctx context.Context, id string, p models.Patch) (models.Article, error)
}

// Filter 列表查询条件，零值表示不过滤
type Filter struct {
	Status models.Status
	Limit  int
}

const defaultListLimit = 1000

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > defaultListLimit {
		return defaultListLimit
	}
	return limit
}
