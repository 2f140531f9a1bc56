package models

import (
	"strings"
	"unicode"
)

// Fingerprint 标题归一化：小写、去标点符号、合并空白
func Fingerprint(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	space := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			// 标点、符号与空白都视为分隔
			space = true
		}
	}
	return b.String()
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "after": {}, "over": {},
	"into": {}, "about": {}, "its": {}, "are": {}, "was": {}, "has": {}, "have": {},
	"new": {}, "this": {}, "that": {}, "but": {}, "not": {}, "you": {}, "out": {},
}

// BlockingKeys 用于去重分桶的廉价键：指纹中长度 >= 3 的非停用词
func BlockingKeys(fingerprint string) []string {
	tokens := strings.Fields(fingerprint)
	seen := make(map[string]struct{}, len(tokens))
	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len([]rune(t)) < 3 {
			continue
		}
		if _, ok := stopWords[t]; ok {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		keys = append(keys, t)
	}
	if len(keys) > 0 {
		return keys
	}
	// 全是短词或停用词时退化为全部 token
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		keys = append(keys, t)
	}
	return keys
}
