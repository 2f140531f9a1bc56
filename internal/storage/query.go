package storage

import (
	"time"

	sq "github.com/Masterminds/squirrel"
)

// buildCandidateQuery 去重分桶查询：共享任一 token 且在回看窗口内的文章。
// 使用 ? 占位符，交给 gorm Raw 按方言转换。
func buildCandidateQuery(since time.Time, keys []string) (string, []any, error) {
	return sq.Select("a.*").
		Distinct().
		From("articles AS a").
		Join("article_blocking_keys AS k ON k.article_id = a.id").
		Where(sq.Eq{"k.token": keys}).
		Where(sq.GtOrEq{"a.ingested_at": since}).
		OrderBy("a.ingested_at ASC", "a.id ASC").
		ToSql()
}
