package dedup

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/agnivade/levenshtein"
)

// TokenSetRatio 0-100 的相似度，对词序与标点不敏感。
// 先取两边 token 的交集 t0，再分别拼上各自的差集得到 t1、t2，取两两比较的最大值。
func TokenSetRatio(a, b string) int {
	ta := tokenSet(models.Fingerprint(a))
	tb := tokenSet(models.Fingerprint(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, diffA, diffB []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter = append(inter, t)
		} else {
			diffA = append(diffA, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			diffB = append(diffB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(diffA)
	sort.Strings(diffB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(diffA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(diffB, " "))

	best := ratio(t1, t2)
	if t0 != "" {
		if r := ratio(t0, t1); r > best {
			best = r
		}
		if r := ratio(t0, t2); r > best {
			best = r
		}
	}
	return best
}

// ratio 基于编辑距离的归一化相似度
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(maxLen))))
}

func tokenSet(fp string) map[string]struct{} {
	fields := strings.Fields(fp)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
