package search

import "strings"

// tokenSet splits text on whitespace and returns the distinct lowercase words.
func tokenSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

// lexicalOverlap returns the fraction of distinct query words present in the
// passage, in [0, 1]. An empty query scores 0.
func lexicalOverlap(query, passage string) float32 {
	queryWords := tokenSet(query)
	if len(queryWords) == 0 {
		return 0
	}
	passageWords := tokenSet(passage)

	matched := 0
	for word := range queryWords {
		if _, ok := passageWords[word]; ok {
			matched++
		}
	}
	return float32(matched) / float32(len(queryWords))
}
