package knowledge

import (
	"regexp"
	"sort"
	"strings"
)

var tokenRe = regexp.MustCompile(`[a-zA-Z0-9_]+`)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "have": true, "has": true, "had": true,
	"was": true, "were": true, "are": true, "is": true, "been": true,
	"will": true, "would": true, "could": true, "should": true,
	"can": true, "may": true, "might": true, "must": true,
	"not": true, "but": true, "all": true, "any": true, "some": true,
	"into": true, "onto": true, "over": true, "under": true,
	"when": true, "where": true, "what": true, "which": true,
	"then": true, "than": true, "them": true, "they": true, "their": true,
	"there": true, "here": true, "about": true, "after": true,
	"before": true, "while": true, "during": true, "because": true,
	"does": true, "doing": true, "done": true, "being": true,
	"also": true, "only": true, "just": true, "very": true, "more": true,
	"most": true, "such": true, "each": true, "other": true, "these": true,
	"those": true, "your": true, "you": true,
}

const maxKeywords = 20

// ExtractKeywords tokenizes the text, drops stop words and short tokens,
// and returns the most frequent terms, capped at 20.
func ExtractKeywords(text string) []string {
	counts := make(map[string]int)
	for _, token := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(token) <= 3 || stopWords[token] {
			continue
		}
		counts[token]++
	}

	keywords := make([]string, 0, len(counts))
	for token := range counts {
		keywords = append(keywords, token)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// overlapRatio returns |a ∩ b| / |a| for non-empty a, else 0.
func overlapRatio(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	set := make(map[string]bool, len(b))
	for _, word := range b {
		set[word] = true
	}
	matched := 0
	for _, word := range a {
		if set[word] {
			matched++
		}
	}
	return float64(matched) / float64(len(a))
}

// sharedKeywords counts the intersection of two keyword lists.
func sharedKeywords(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, word := range a {
		set[word] = true
	}
	shared := 0
	for _, word := range b {
		if set[word] {
			shared++
			set[word] = false
		}
	}
	return shared
}

// SimilarityRatio computes a sequence similarity ratio in [0,1] using
// Ratcliff/Obershelp matching: twice the matched character count over
// the combined length.
func SimilarityRatio(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	matched := matchingBlocks(a, b)
	return 2 * float64(matched) / float64(total)
}

// matchingBlocks recursively counts characters in the longest common
// substring and the regions on either side of it.
func matchingBlocks(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	aStart, bStart, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingBlocks(a[:aStart], b[:bStart]) +
		matchingBlocks(a[aStart+size:], b[bStart+size:])
}

func longestCommonSubstring(a, b string) (aStart, bStart, size int) {
	// prev[j] holds the match length ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		current := make([]int, len(b)+1)
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				current[j] = prev[j-1] + 1
				if current[j] > size {
					size = current[j]
					aStart = i - size
					bStart = j - size
				}
			}
		}
		prev = current
	}
	return aStart, bStart, size
}
